package store

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

const objectStoreCredentialPrefix = "credentials"

// ObjectStoreConfig captures configuration for the object storage-backed store.
type ObjectStoreConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
	UseSSL    bool
	PathStyle bool
}

// ObjectStore writes each record as a JSON object in an S3-compatible bucket.
type ObjectStore struct {
	client *minio.Client
	cfg    ObjectStoreConfig

	mu          sync.Mutex
	bucketReady bool
}

// NewObjectStore initializes an object storage backed store. No request is made until
// the first Save.
func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.AccessKey = strings.TrimSpace(cfg.AccessKey)
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store: bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("object store: access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("object store: secret key is required")
	}

	options := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("object store: create client: %w", err)
	}
	return &ObjectStore{client: client, cfg: cfg}, nil
}

// Save uploads rec under <prefix>/credentials/<id> and returns the object key.
func (s *ObjectStore) Save(ctx context.Context, rec *Record) (string, error) {
	id, err := checkRecord(rec)
	if err != nil {
		return "", err
	}
	data, err := rec.Storage.Metadata(rec.Extra)
	if err != nil {
		return "", fmt.Errorf("object store: %w", err)
	}
	if err = s.ensureBucket(ctx); err != nil {
		return "", err
	}
	key := s.prefixedKey(objectStoreCredentialPrefix + "/" + id)
	if err = s.putObject(ctx, key, data, "application/json"); err != nil {
		return "", err
	}
	log.WithField("store", "object").Debugf("credential uploaded to %s/%s", s.cfg.Bucket, key)
	return key, nil
}

// Close is a no-op; the minio client holds no resources that need releasing.
func (s *ObjectStore) Close() error { return nil }

func (s *ObjectStore) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bucketReady {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("object store: check bucket: %w", err)
	}
	if !exists {
		if err = s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil && !isBucketOwned(err) {
			return fmt.Errorf("object store: create bucket: %w", err)
		}
	}
	s.bucketReady = true
	return nil
}

func (s *ObjectStore) putObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("object store: put object %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) prefixedKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.cfg.Prefix == "" {
		return key
	}
	return strings.TrimLeft(s.cfg.Prefix+"/"+key, "/")
}

// isBucketOwned reports a lost create race against ourselves.
func isBucketOwned(err error) bool {
	return minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou"
}
