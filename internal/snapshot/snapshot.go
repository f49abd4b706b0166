// Package snapshot writes failure/error HTML+screenshot pairs to an
// S3-compatible object store, keyed by domain and timestamp (SPEC_FULL.md
// §4.2/§6). No S3 client library appears anywhere in the retrieved
// example corpus; minio-go is the standard idiomatic Go client for this
// and is wired here as an out-of-pack ecosystem dependency (see
// DESIGN.md).
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store writes HTML+PNG pairs under errors/ or schema/ prefixes.
type Store struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

// New connects to an S3-compatible endpoint.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool, ttlDays int) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store: %w", err)
	}
	return &Store{client: client, bucket: bucket, ttl: time.Duration(ttlDays) * 24 * time.Hour}, nil
}

// Prefix selects the errors/ or schema/ namespace a snapshot is saved under.
type Prefix string

const (
	PrefixErrors Prefix = "errors"
	PrefixSchema Prefix = "schema"
)

// Save writes html+png under "<prefix>/<domain>/<UTC-YYYYMMDDTHHMMSS>-<uuid>.{html,png}".
func (s *Store) Save(ctx context.Context, prefix Prefix, pageURL string, html []byte, png []byte) error {
	if s == nil || s.client == nil {
		return nil
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("parse snapshot url: %w", err)
	}
	stamp := time.Now().UTC().Format("20060102T150405")
	base := fmt.Sprintf("%s/%s/%s-%s", prefix, u.Hostname(), stamp, uuid.NewString())

	if _, err := s.client.PutObject(ctx, s.bucket, base+".html", bytes.NewReader(html), int64(len(html)),
		minio.PutObjectOptions{ContentType: "text/html", Expires: time.Now().Add(s.ttl)}); err != nil {
		return fmt.Errorf("put html snapshot: %w", err)
	}
	if _, err := s.client.PutObject(ctx, s.bucket, base+".png", bytes.NewReader(png), int64(len(png)),
		minio.PutObjectOptions{ContentType: "image/png", Expires: time.Now().Add(s.ttl)}); err != nil {
		return fmt.Errorf("put screenshot snapshot: %w", err)
	}
	return nil
}
