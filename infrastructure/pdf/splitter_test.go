package pdf

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal document with n blank pages and a correct
// cross-reference table.
func buildPDF(n int) []byte {
	var objects []string
	kids := ""
	for i := 0; i < n; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	objects = append(objects, "<< /Type /Catalog /Pages 2 0 R >>")
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, n))
	for i := 0; i < n; i++ {
		objects = append(objects, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestSplitter_SplitsEveryPage(t *testing.T) {
	s := NewSplitter(t.TempDir(), nil)

	pages, err := s.Split(context.Background(), buildPDF(3))
	require.NoError(t, err)
	require.Len(t, pages, 3)

	for _, page := range pages {
		n, err := api.PageCount(bytes.NewReader(page), relaxed())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
}

func TestSplitter_SinglePage(t *testing.T) {
	pages, err := NewSplitter(t.TempDir(), nil).Split(context.Background(), buildPDF(1))
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestSplitter_RejectsGarbage(t *testing.T) {
	_, err := NewSplitter(t.TempDir(), nil).Split(context.Background(), []byte("not a pdf"))
	assert.Error(t, err)
}

func TestTrimExt(t *testing.T) {
	assert.Equal(t, "prepared", trimExt("prepared.pdf"))
	assert.Equal(t, "source", trimExt("source"))
}
