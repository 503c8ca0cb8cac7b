// Package gcp uploads exported course artifacts to Google Cloud Storage (or
// a fake-gcs emulator).
package gcp

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/platform/logger"
)

type ExportStore interface {
	// Upload writes r to key and returns the object's public URL.
	Upload(dbc dbctx.Context, key string, r io.Reader) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	PublicURL(key string) string
}

type exportStore struct {
	log    *logger.Logger
	client *storage.Client
	cfg    ExportStoreConfig
}

// NewExportStore returns nil, nil when no bucket is configured.
func NewExportStore(log *logger.Logger) (ExportStore, error) {
	cfg, err := ResolveExportStoreConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve export store config: %w", err)
	}
	if !cfg.Enabled() {
		return nil, nil
	}
	return NewExportStoreWithConfig(log, cfg)
}

func NewExportStoreWithConfig(log *logger.Logger, cfg ExportStoreConfig) (ExportStore, error) {
	if err := ValidateExportStoreConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate export store config: %w", err)
	}
	client, err := newStorageClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog := log.With("service", "ExportStore")
	serviceLog.Info("Export store initialized", "mode", cfg.Mode, "bucket", cfg.Bucket, "emulator_host", cfg.EmulatorHost)
	return &exportStore{log: serviceLog, client: client, cfg: cfg}, nil
}

func newStorageClient(ctx context.Context, cfg ExportStoreConfig) (*storage.Client, error) {
	if cfg.IsEmulatorMode() {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	return storage.NewClient(ctx, opts...)
}

func (s *exportStore) objectKey(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if s.cfg.Prefix == "" {
		return key
	}
	return path.Join(s.cfg.Prefix, key)
}

func (s *exportStore) Upload(dbc dbctx.Context, key string, r io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(dbc.Ctx, 2*time.Minute)
	defer cancel()
	name := s.objectKey(key)
	w := s.client.Bucket(s.cfg.Bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentTypeForKey(name)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	s.log.Info("Export uploaded", "bucket", s.cfg.Bucket, "key", name)
	return s.PublicURL(key), nil
}

// Download keeps its context alive until the reader is closed.
func (s *exportStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := s.client.Bucket(s.cfg.Bucket).Object(s.objectKey(key)).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (s *exportStore) PublicURL(key string) string {
	return publicURL(s.cfg, s.objectKey(key))
}

func publicURL(cfg ExportStoreConfig, name string) string {
	switch {
	case cfg.PublicBaseURL != "":
		return fmt.Sprintf("%s/%s/%s", cfg.PublicBaseURL, cfg.Bucket, name)
	case cfg.IsEmulatorMode():
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", cfg.EmulatorHost, url.PathEscape(cfg.Bucket), url.PathEscape(name))
	default:
		return fmt.Sprintf("https://storage.googleapis.com/%s/%s", cfg.Bucket, name)
	}
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(key)
	switch {
	case strings.HasSuffix(s, ".xml"):
		return "application/xml"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".tar.gz"), strings.HasSuffix(s, ".tgz"):
		return "application/gzip"
	default:
		return "application/octet-stream"
	}
}

type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}
