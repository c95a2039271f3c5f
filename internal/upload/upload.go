// Package upload stores receipt images on disk and hands back the
// server-relative URL a transaction row references.
package upload

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/khata-app/khata_backend/internal/fault"
)

// URLPrefix is where the boundary serves stored receipts from.
const URLPrefix = "/uploads"

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// Saver writes receipt files into a single directory. Filenames embed a
// random identifier so concurrent uploads cannot collide.
type Saver struct {
	dir      string
	maxBytes int64
}

// NewSaver creates the upload directory if needed and returns a Saver.
func NewSaver(dir string, maxBytes int64) (*Saver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Saver{dir: dir, maxBytes: maxBytes}, nil
}

// Check validates a receipt's filename and size without touching the bytes.
func (s *Saver) Check(filename string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return fmt.Errorf("%w: receipt must be png, jpg, jpeg or gif", fault.ErrInvalid)
	}
	if size <= 0 {
		return fmt.Errorf("%w: empty receipt upload", fault.ErrInvalid)
	}
	if size > s.maxBytes {
		return fmt.Errorf("%w: receipt exceeds %d bytes", fault.ErrInvalid, s.maxBytes)
	}
	return nil
}

// Save validates and stores the uploaded receipt, returning its URL.
func (s *Saver) Save(fh *multipart.FileHeader) (string, error) {
	if err := s.Check(fh.Filename, fh.Size); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	name := uuid.NewString() + ext

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open upload: %v", fault.ErrInvalid, err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("%w: store receipt: %v", fault.ErrUnavailable, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, s.maxBytes+1)); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("%w: store receipt: %v", fault.ErrUnavailable, err)
	}

	return URLPrefix + "/" + name, nil
}

// Dir returns the directory served under URLPrefix.
func (s *Saver) Dir() string {
	return s.dir
}
