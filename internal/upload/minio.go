package upload

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chatterbox/internal/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const objectPrefix = "images/"

// MinIOStore keeps images in a bucket; URLs are publicURL/bucket/images/name.
type MinIOStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

type MinIOOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL defaults to the endpoint URL.
	PublicURL string
}

// NewMinIOStore connects and creates the bucket when it does not exist yet.
func NewMinIOStore(ctx context.Context, opts MinIOOptions) (*MinIOStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
		logger.Infof("upload: created bucket %s", opts.Bucket)
	}
	public := opts.PublicURL
	if public == "" {
		public = client.EndpointURL().String()
	}
	return &MinIOStore{client: client, bucket: opts.Bucket, publicURL: strings.TrimSuffix(public, "/")}, nil
}

func (s *MinIOStore) urlPrefix() string {
	return s.publicURL + "/" + s.bucket + "/"
}

func (s *MinIOStore) Put(ctx context.Context, name, contentType string, r io.Reader, size int64) (string, error) {
	defer logger.DeferLogDuration("upload.MinIOPut", time.Now())()
	object := objectPrefix + name
	_, err := s.client.PutObject(ctx, s.bucket, object, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload.MinIOPut: %w", err)
	}
	return s.urlPrefix() + object, nil
}

func (s *MinIOStore) Remove(ctx context.Context, url string) error {
	defer logger.DeferLogDuration("upload.MinIORemove", time.Now())()
	object, ok := strings.CutPrefix(url, s.urlPrefix())
	if !ok {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("upload.MinIORemove: %w", err)
	}
	return nil
}
