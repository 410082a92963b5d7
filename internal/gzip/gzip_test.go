package gzip

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func echo(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Write(body)
}

func TestGzipMiddleware(t *testing.T) {
	h := GzipMiddleware(echo)
	payload := `{"login":"ana","password":"123"}`

	t.Run("compressed request", func(t *testing.T) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, err := zw.Write([]byte(payload))
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		r := httptest.NewRequest(http.MethodPost, "/", &buf)
		r.Header.Set("Content-Encoding", "gzip")
		w := httptest.NewRecorder()
		h(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, payload, w.Body.String())
	})

	t.Run("compressed response", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(payload))
		r.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		h(w, r)

		require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
		zr, err := gzip.NewReader(w.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(zr)
		require.NoError(t, err)
		require.Equal(t, payload, string(body))
	})

	t.Run("broken request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("plain"))
		r.Header.Set("Content-Encoding", "gzip")
		w := httptest.NewRecorder()
		h(w, r)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}
