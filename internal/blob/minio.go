package blob

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the connection settings of a MinIO or S3 endpoint.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	// Prefix is prepended to every key, letting several stores share a bucket.
	Prefix string
}

// Validate checks that the required connection settings are present.
func (c MinioConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "endpoint")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		missing = append(missing, "access_key")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		missing = append(missing, "secret_key")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		missing = append(missing, "bucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("minio config missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MinioStore stores objects in a bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioClient builds a client for cfg.
func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

// NewMinioStore connects to the endpoint and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := NewMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}
	return NewMinioStoreWithClient(client, cfg.Bucket, cfg.Prefix)
}

// NewMinioStoreWithClient wraps an existing client.
func NewMinioStoreWithClient(client *minio.Client, bucket, prefix string) (*MinioStore, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &MinioStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *MinioStore) objectName(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return s.prefix + key, nil
}

// Put implements Store.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	opts := minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: normalizeMetadata(metadata),
	}
	if _, err := s.client.PutObject(ctx, s.bucket, name, r, size, opts); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Get implements Store.
func (s *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	obj, err := s.Stat(ctx, key)
	if err != nil {
		return nil, Object{}, err
	}
	name, _ := s.objectName(key)
	rc, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, Object{}, mapMinioError(key, err)
	}
	return rc, obj, nil
}

// Stat implements Store.
func (s *MinioStore) Stat(ctx context.Context, key string) (Object, error) {
	name, err := s.objectName(key)
	if err != nil {
		return Object{}, err
	}
	info, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return Object{}, mapMinioError(key, err)
	}
	return Object{
		Key:      key,
		Size:     info.Size,
		Modified: info.LastModified,
		Metadata: normalizeMetadata(info.UserMetadata),
	}, nil
}

// List implements Store. Metadata is not returned.
func (s *MinioStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	opts := minio.ListObjectsOptions{Prefix: s.prefix + prefix, Recursive: true}
	for info := range s.client.ListObjects(ctx, s.bucket, opts) {
		if info.Err != nil {
			return nil, fmt.Errorf("list objects with prefix %q: %w", prefix, info.Err)
		}
		out = append(out, Object{
			Key:      strings.TrimPrefix(info.Key, s.prefix),
			Size:     info.Size,
			Modified: info.LastModified,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete implements Store.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return mapMinioError(key, err)
	}
	return nil
}

func mapMinioError(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", key, err)
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
