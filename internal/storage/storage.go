package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"ktu-bizconnect/internal/config"
	"ktu-bizconnect/internal/logger"
)

// Uploader stores an object under key and returns the public URL it can be fetched from.
// Delete of a missing key is not an error.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, content []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// NewUploader picks S3 when a bucket is configured and the local directory otherwise.
func NewUploader(ctx context.Context, cfg config.StorageConfig, publicBaseURL string, log *logger.Logger) (Uploader, error) {
	if cfg.S3Bucket != "" {
		up, err := NewS3Uploader(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Info("STORAGE", fmt.Sprintf("Uploading images to S3 bucket %s", cfg.S3Bucket))
		return up, nil
	}

	up, err := NewLocalUploader(cfg.LocalDir, strings.TrimRight(publicBaseURL, "/")+"/uploads")
	if err != nil {
		return nil, err
	}
	log.Warn("STORAGE", fmt.Sprintf("S3 not configured, storing images in %s", cfg.LocalDir))
	return up, nil
}

// LocalUploader writes objects below Dir. The router serves Dir at /uploads.
type LocalUploader struct {
	Dir     string
	BaseURL *url.URL
}

func NewLocalUploader(dir, baseURL string) (*LocalUploader, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upload base URL: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalUploader{Dir: dir, BaseURL: u}, nil
}

func (l *LocalUploader) Upload(_ context.Context, key, _ string, content []byte) (string, error) {
	clean, dest, err := l.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}

	uri := *l.BaseURL
	uri.Path = path.Join(uri.Path, clean)
	return uri.String(), nil
}

func (l *LocalUploader) Delete(_ context.Context, key string) error {
	_, dest, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// resolve keeps key inside Dir.
func (l *LocalUploader) resolve(key string) (clean, dest string, err error) {
	clean = path.Clean("/" + key)
	if clean == "/" {
		return "", "", fmt.Errorf("invalid object key %q", key)
	}
	return clean, filepath.Join(l.Dir, filepath.FromSlash(clean)), nil
}
