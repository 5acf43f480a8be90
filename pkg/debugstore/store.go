// Package debugstore persists proof requests and responses for later
// inspection. It is never on the proving path: callers log and ignore its
// errors.
package debugstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store writes v as JSON under a slash-separated name.
type Store interface {
	Put(ctx context.Context, name string, v any) error
}

func cleanName(name string) (string, error) {
	clean := path.Clean("/" + name)[1:]
	if clean == "" || strings.HasSuffix(name, "/") {
		return "", fmt.Errorf("invalid debug store path %q", name)
	}
	return clean, nil
}

// FileStore writes below Root.
type FileStore struct {
	Root string
}

func (s *FileStore) Put(_ context.Context, name string, v any) error {
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	full := filepath.Join(s.Root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, body, 0o644)
}

// S3API is the subset of the s3 client S3Store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes objects to Bucket under Prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3StoreFromEnv builds the client from the default AWS credential chain.
func NewS3StoreFromEnv(ctx context.Context, region, bucket, prefix string) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Store(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func (s *S3Store) Put(ctx context.Context, name string, v any) error {
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key := clean
	if s.prefix != "" {
		key = s.prefix + "/" + clean
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	return err
}

// Nop discards everything.
type Nop struct{}

func (Nop) Put(context.Context, string, any) error { return nil }
