package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures an S3Fetcher.
type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	MaxBytes  int64
}

// S3Fetcher downloads s3://bucket/key locators through minio-go.
type S3Fetcher struct {
	client   *minio.Client
	maxBytes int64
}

// NewS3Fetcher creates an S3Fetcher. Anonymous access is used when no keys are set.
func NewS3Fetcher(opts S3Options) (*S3Fetcher, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		region = "us-east-1"
	}
	var creds *credentials.Credentials
	access, secret := strings.TrimSpace(opts.AccessKey), strings.TrimSpace(opts.SecretKey)
	switch {
	case access != "" && secret != "":
		creds = credentials.NewStaticV4(access, secret, "")
	case access == "" && secret == "":
		creds = credentials.NewStatic("", "", "", credentials.SignatureAnonymous)
	default:
		return nil, fmt.Errorf("s3 access key and secret key must be set together")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: opts.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Fetcher{client: client, maxBytes: opts.MaxBytes}, nil
}

// ParseS3Locator splits s3://bucket/key.
func ParseS3Locator(locator string) (bucket, key string, err error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 locator %q needs a bucket and a key", locator)
	}
	return bucket, key, nil
}

// Fetch downloads the object into destPath.
func (f *S3Fetcher) Fetch(ctx context.Context, locator, destPath string) error {
	bucket, key, err := ParseS3Locator(locator)
	if err != nil {
		return &FetchError{Locator: locator, Wrapped: err}
	}
	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return s3Error(locator, err)
	}
	defer func() { _ = obj.Close() }()

	info, err := obj.Stat()
	if err != nil {
		return s3Error(locator, err)
	}
	if f.maxBytes > 0 && info.Size > f.maxBytes {
		return &FetchError{Locator: locator, Wrapped: fmt.Errorf("%w (%d > %d bytes)", ErrTooLarge, info.Size, f.maxBytes)}
	}
	if err := writeStream(ctx, obj, destPath, f.maxBytes); err != nil {
		return s3Error(locator, err)
	}
	return nil
}

func s3Error(locator string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 {
		return &FetchError{Locator: locator, StatusCode: resp.StatusCode, Wrapped: err}
	}
	return newError(locator, err)
}
