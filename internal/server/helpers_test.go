package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/MeKo-Tech/pocrop/internal/testutil"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Editor.TempDir = t.TempDir()
	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// documentPNG renders the default test sheet and returns its encoded bytes.
func documentPNG(t *testing.T) []byte {
	t.Helper()
	path := testutil.WriteDocument(t, t.TempDir(), "doc.png", testutil.DefaultDocumentConfig())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// multipartRequest builds a POST with an optional "image" file and form fields.
func multipartRequest(t *testing.T, target, filename string, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
