package upload

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khata-app/khata_backend/internal/fault"
)

func newSaver(t *testing.T) *Saver {
	t.Helper()
	s, err := NewSaver(t.TempDir(), 1<<20)
	require.NoError(t, err)
	return s
}

func TestCheck(t *testing.T) {
	s := newSaver(t)

	assert.NoError(t, s.Check("receipt.png", 100))
	assert.NoError(t, s.Check("RECEIPT.JPG", 100))
	assert.NoError(t, s.Check("photo.jpeg", 100))
	assert.NoError(t, s.Check("scan.gif", 100))

	assert.ErrorIs(t, s.Check("receipt.pdf", 100), fault.ErrInvalid)
	assert.ErrorIs(t, s.Check("receipt", 100), fault.ErrInvalid)
	assert.ErrorIs(t, s.Check("receipt.png", 0), fault.ErrInvalid)
	assert.ErrorIs(t, s.Check("receipt.png", 2<<20), fault.ErrInvalid)
}

func multipartFile(t *testing.T, field, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File[field][0]
}

func TestSave(t *testing.T) {
	s := newSaver(t)

	fh := multipartFile(t, "receipt", "bill.png", []byte("fake png bytes"))
	url, err := s.Save(fh)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, URLPrefix+"/"), "url %q", url)
	assert.Equal(t, ".png", filepath.Ext(url))

	// two saves of the same file land under distinct names
	url2, err := s.Save(fh)
	require.NoError(t, err)
	assert.NotEqual(t, url, url2)
}

func TestSaveRejectsBadExtension(t *testing.T) {
	s := newSaver(t)
	fh := multipartFile(t, "receipt", "notes.txt", []byte("text"))
	_, err := s.Save(fh)
	assert.ErrorIs(t, err, fault.ErrInvalid)
}
