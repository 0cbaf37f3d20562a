package core

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var allowedImageExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// SaveUploadedImage stores a multipart image under cfg.UploadDir and returns
// the stored filename (relative to the upload dir): field name, timestamp,
// random suffix, client extension. The suffix keeps concurrent uploads in
// the same millisecond from colliding.
func SaveUploadedImage(cfg Config, fileHeader *multipart.FileHeader, field string) (string, error) {
	if fileHeader.Size > cfg.MaxUploadBytes {
		return "", fmt.Errorf("file too large (max %d bytes)", cfg.MaxUploadBytes)
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if _, ok := allowedImageExts[ext]; !ok {
		return "", errors.New("unsupported image type")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%d-%s%s", field, time.Now().UnixMilli(), randomHex(4), ext)
	dstPath := filepath.Join(cfg.UploadDir, name)
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, cfg.MaxUploadBytes+1)); err != nil {
		_ = os.Remove(dstPath)
		return "", err
	}
	return name, nil
}

// RemoveUploadedImage deletes a stored image; a missing file is not an error.
func RemoveUploadedImage(cfg Config, name string) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	// Never follow path components out of the upload dir.
	base := filepath.Base(name)
	err := os.Remove(filepath.Join(cfg.UploadDir, base))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
