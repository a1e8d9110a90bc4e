package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cavepedia/cavepedia/domain/document"
)

// fakeGCSServer answers the JSON API calls the store makes against an
// emulator.
func fakeGCSServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/storage/v1/b/import/o":
			_, _ = w.Write([]byte(`{"kind":"storage#objects","items":[` +
				`{"kind":"storage#object","bucket":"import","name":"vpi/"},` +
				`{"kind":"storage#object","bucket":"import","name":"vpi/trog/2021.pdf"},` +
				`{"kind":"storage#object","bucket":"import","name":"nss/news.pdf"}]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/storage/v1/b/locked/o":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"caller does not have storage.objects.list access"}}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"No such object"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newEmulatorGCS(t *testing.T, host string) *GCS {
	t.Helper()
	// NewGCS exports the host for the client; restore it afterwards.
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	store, err := NewGCS(context.Background(), GCSConfig{EmulatorHost: host}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGCS_ListSkipsDirectoryMarkers(t *testing.T) {
	store := newEmulatorGCS(t, fakeGCSServer(t).URL)

	keys, err := store.List(context.Background(), "import")
	require.NoError(t, err)
	assert.Equal(t, []string{"vpi/trog/2021.pdf", "nss/news.pdf"}, keys)
}

func TestGCS_ListFailureIsStorageError(t *testing.T) {
	store := newEmulatorGCS(t, fakeGCSServer(t).URL)

	_, err := store.List(context.Background(), "locked")
	require.ErrorIs(t, err, document.ErrStorage)
	assert.Contains(t, err.Error(), "gs://locked/")
}

func TestGCS_DeleteMissingObject(t *testing.T) {
	store := newEmulatorGCS(t, fakeGCSServer(t).URL)

	assert.NoError(t, store.Delete(context.Background(), "import", "vpi/gone.pdf"))
}

func TestGCS_EmulatorSignedURL(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"bare host", "localhost:4443", "http://localhost:4443"},
		{"http scheme", "http://gcs:4443/", "http://gcs:4443"},
		{"https scheme", "https://gcs.test", "https://gcs.test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newEmulatorGCS(t, tt.host)

			u, err := store.SignedURL(context.Background(), "pages", "vpi/a.pdf/page-1.pdf", time.Hour)
			require.NoError(t, err)
			assert.Equal(t, tt.want+"/storage/v1/b/pages/o/vpi%2Fa.pdf%2Fpage-1.pdf?alt=media", u)
		})
	}
}

func TestGCS_ContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", contentType("vpi/A.PDF"))
	assert.Equal(t, "application/octet-stream", contentType("vpi/notes.txt"))
}
