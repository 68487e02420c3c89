package memory

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncc/internal/blobstore"
	"ncc/pkg/platform/sentinel"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New("http://localhost:8080/files")

	fileID, err := s.Upload(ctx, "payments", blobstore.File{
		Name: "transfer.png", ContentType: "image/png", Body: bytes.NewReader([]byte("png-bytes")),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Uploads())

	u, err := s.PreviewURL(ctx, "payments", fileID, blobstore.PreviewOptions{Inline: true})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/payments/"+fileID+"?disposition=inline", u)

	_, err = s.PreviewURL(ctx, "student-ids", fileID, blobstore.PreviewOptions{})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	t.Run("serves stored files", func(t *testing.T) {
		r := chi.NewRouter()
		s.Register(r)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, strings.TrimPrefix(u, "http://localhost:8080"), nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "inline"))
		assert.Equal(t, "png-bytes", rec.Body.String())

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/payments/missing", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	require.NoError(t, s.Delete(ctx, "payments", fileID))
	assert.ErrorIs(t, s.Delete(ctx, "payments", fileID), sentinel.ErrNotFound)
}
