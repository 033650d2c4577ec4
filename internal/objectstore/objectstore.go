// Package objectstore stores user photos and generated try-on images in an
// S3-compatible bucket (DigitalOcean Spaces in production).
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"fitstogo/internal/config"
	"fitstogo/internal/services"
)

const (
	defaultPresignExpiry = time.Hour
	maxFetchBytes        = 20 << 20
)

// ErrNotConfigured is returned when storage credentials are missing.
var ErrNotConfigured = errors.New("object storage not configured")

// Store uploads and removes objects in one bucket.
type Store struct {
	client     *minio.Client
	bucket     string
	publicBase string
	expiry     time.Duration
	httpClient *http.Client
}

// New connects to the configured endpoint. An endpoint without a scheme uses
// https when use_ssl is set.
func New(cfg *config.Config) (*Store, error) {
	if !cfg.StorageConfigured() {
		return nil, ErrNotConfigured
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Storage.Endpoint), "/")
	if !strings.Contains(endpoint, "://") {
		scheme := "http"
		if cfg.Storage.UseSSL {
			scheme = "https"
		}
		endpoint = scheme + "://" + endpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("parse storage endpoint %q: host required", cfg.Storage.Endpoint)
	}
	secure := parsed.Scheme == "https"
	client, err := minio.New(parsed.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: secure,
		Region: cfg.Storage.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	expiry := cfg.PresignExpiry()
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &Store{
		client:     client,
		bucket:     cfg.Storage.Bucket,
		publicBase: endpoint + "/" + cfg.Storage.Bucket,
		expiry:     expiry,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// PublicURL returns the public URL of key.
func (s *Store) PublicURL(key string) string {
	return s.publicBase + "/" + strings.TrimLeft(key, "/")
}

// Upload writes body as a public-read object and returns its public URL.
func (s *Store) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"x-amz-acl": "public-read"},
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "storage", "upload", key, err)
	}
	return s.PublicURL(key), nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return services.Wrap(services.ErrExternalTool, "storage", "delete", key, err)
	}
	return nil
}

// PresignedUploadURL returns a URL a client can PUT key to directly.
func (s *Store) PresignedUploadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = s.expiry
	}
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, expiry)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "storage", "presign upload", key, err)
	}
	return u.String(), nil
}

// PresignedDownloadURL returns a time-limited GET URL for key.
func (s *Store) PresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = s.expiry
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "storage", "presign download", key, err)
	}
	return u.String(), nil
}

// KeyFromURL recovers the object key from a public URL. URLs outside the
// bucket fall back to the last two path segments.
func (s *Store) KeyFromURL(raw string) string {
	if s != nil && strings.HasPrefix(raw, s.publicBase+"/") {
		return strings.TrimPrefix(raw, s.publicBase+"/")
	}
	return KeyFromURL(raw)
}

// KeyFromURL returns the last two path segments of raw joined by "/".
func KeyFromURL(raw string) string {
	p := raw
	if parsed, err := url.Parse(raw); err == nil && parsed.Path != "" {
		p = parsed.Path
	}
	segments := strings.Split(strings.Trim(p, "/"), "/")
	if len(segments) > 2 {
		segments = segments[len(segments)-2:]
	}
	return strings.Join(segments, "/")
}

// PhotoKey builds photos/<user>/<unix ms>.<ext>.
func PhotoKey(userID, filename string, now time.Time) string {
	ext := filename[strings.LastIndex(filename, ".")+1:]
	return fmt.Sprintf("photos/%s/%d.%s", userID, now.UnixMilli(), ext)
}

// TryOnKey builds tryon/<session>.png.
func TryOnKey(sessionID string) string {
	return "tryon/" + sessionID + ".png"
}

// Fetch downloads an image and returns its bytes and content type.
func Fetch(ctx context.Context, client *http.Client, rawURL string) ([]byte, string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", services.Wrap(services.ErrExternalTool, "storage", "fetch", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", services.Wrap(services.ErrExternalTool, "storage", "fetch", fmt.Sprintf("%s: http %d", rawURL, resp.StatusCode), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// Fetch downloads rawURL with the store's HTTP client.
func (s *Store) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	return Fetch(ctx, s.httpClient, rawURL)
}
