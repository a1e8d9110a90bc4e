// Package storage implements the object store used for imported files and
// split pages.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/cavepedia/cavepedia/domain/document"
)

// GCSConfig configures a GCS-backed store.
type GCSConfig struct {
	// EmulatorHost points the client at a fake-gcs-server style emulator.
	// Authentication is disabled and signed URLs become plain media URLs.
	EmulatorHost string
	// CredentialsFile is a service account JSON key. When empty, application
	// default credentials are used.
	CredentialsFile string
}

// GCS implements document.ObjectStore on Google Cloud Storage.
type GCS struct {
	client       *gcs.Client
	emulatorHost string
	logger       *slog.Logger
}

// NewGCS creates a client for cfg.
func NewGCS(ctx context.Context, cfg GCSConfig, logger *slog.Logger) (*GCS, error) {
	if logger == nil {
		logger = slog.Default()
	}

	emulator := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	var opts []option.ClientOption
	switch {
	case emulator != "":
		if err := os.Setenv("STORAGE_EMULATOR_HOST", emulator); err != nil {
			return nil, fmt.Errorf("set emulator host: %w", err)
		}
		opts = append(opts, option.WithoutAuthentication())
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile), option.WithScopes(gcs.ScopeReadWrite))
	default:
		opts = append(opts, option.WithScopes(gcs.ScopeReadWrite))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Join(document.ErrStorage, fmt.Errorf("create gcs client: %w", err))
	}

	logger.Info("object storage ready", "emulator", emulator != "")
	return &GCS{client: client, emulatorHost: emulatorBaseURL(emulator), logger: logger}, nil
}

// emulatorBaseURL accepts STORAGE_EMULATOR_HOST with or without a scheme,
// as the GCS client does, and defaults to plain http.
func emulatorBaseURL(host string) string {
	if host == "" || strings.Contains(host, "://") {
		return host
	}
	return "http://" + host
}

func storageErr(op, bucket, key string, err error) error {
	return fmt.Errorf("%w: %s gs://%s/%s: %w", document.ErrStorage, op, bucket, key, err)
}

// Put writes data to bucket/key, replacing any existing object.
func (s *GCS) Put(ctx context.Context, bucket, key string, data []byte) error {
	w := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType(key)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return storageErr("write", bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return storageErr("finalize", bucket, key, err)
	}
	return nil
}

// Get reads bucket/key fully.
func (s *GCS) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, storageErr("open", bucket, key, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, storageErr("read", bucket, key, err)
	}
	return data, nil
}

// Copy duplicates an object server-side.
func (s *GCS) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	src := s.client.Bucket(srcBucket).Object(srcKey)
	dst := s.client.Bucket(dstBucket).Object(dstKey)
	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		return storageErr("copy to "+dstBucket+"/"+dstKey+" from", srcBucket, srcKey, err)
	}
	return nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *GCS) Delete(ctx context.Context, bucket, key string) error {
	err := s.client.Bucket(bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return storageErr("delete", bucket, key, err)
	}
	return nil
}

// List returns every object key in bucket, skipping directory markers.
func (s *GCS) List(ctx context.Context, bucket string) ([]string, error) {
	it := s.client.Bucket(bucket).Objects(ctx, &gcs.Query{Projection: gcs.ProjectionNoACL})
	keys := []string{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, storageErr("list", bucket, "", err)
		}
		if document.IsDirectoryMarker(attrs.Name) {
			continue
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// SignedURL returns a V4 signed GET URL valid for ttl. Against an emulator
// the object's media URL is returned instead.
func (s *GCS) SignedURL(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if s.emulatorHost != "" {
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
			s.emulatorHost, url.PathEscape(bucket), url.PathEscape(key)), nil
	}
	u, err := s.client.Bucket(bucket).SignedURL(key, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", storageErr("sign", bucket, key, err)
	}
	return u, nil
}

// Close releases the underlying client.
func (s *GCS) Close() error {
	return s.client.Close()
}

func contentType(key string) string {
	if strings.HasSuffix(strings.ToLower(key), ".pdf") {
		return "application/pdf"
	}
	return "application/octet-stream"
}
