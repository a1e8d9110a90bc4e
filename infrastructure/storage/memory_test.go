package storage

import (
	"context"
	"testing"
	"time"

	"github.com/cavepedia/cavepedia/domain/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ObjectLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("http://objects.test")

	require.NoError(t, m.Put(ctx, "import", "vpi/a.pdf", []byte("%PDF")))
	require.NoError(t, m.Put(ctx, "import", "vpi/", nil))

	keys, err := m.List(ctx, "import")
	require.NoError(t, err)
	assert.Equal(t, []string{"vpi/a.pdf"}, keys)

	require.NoError(t, m.Copy(ctx, "import", "vpi/a.pdf", "files", "vpi/a.pdf"))
	require.NoError(t, m.Delete(ctx, "import", "vpi/a.pdf"))

	assert.False(t, m.Has("import", "vpi/a.pdf"))
	data, err := m.Get(ctx, "files", "vpi/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)

	_, err = m.Get(ctx, "import", "vpi/a.pdf")
	assert.ErrorIs(t, err, document.ErrStorage)
}

func TestMemory_SignedURL(t *testing.T) {
	u, err := NewMemory("http://objects.test").SignedURL(context.Background(), "pages", "vpi/a.pdf/page-1.pdf", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "http://objects.test/pages/vpi%2Fa.pdf%2Fpage-1.pdf?expires=3600", u)
}

func TestMemory_ContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", contentType("a/B.PDF"))
	assert.Equal(t, "application/octet-stream", contentType("notes.txt"))
}
