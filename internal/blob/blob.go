// Package blob reads named content files (markdown docs, the assistant
// system prompt) from a local directory or a MinIO bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned when the named object does not exist.
var ErrNotFound = errors.New("blob not found")

type Store interface {
	Get(ctx context.Context, name string) ([]byte, error)
}

// validName rejects anything that could leave the content root.
func validName(name string) bool {
	return name != "" && !strings.Contains(name, "/") && !strings.Contains(name, `\`) && name != "." && name != ".."
}

// Dir serves files from a directory on disk.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Get(_ context.Context, name string) ([]byte, error) {
	if !validName(name) {
		return nil, fmt.Errorf("read %q: %w", name, ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(d.root, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}
	return data, nil
}

type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Prefix is prepended to every object name.
	Prefix string
}

// Minio serves objects from one bucket.
type Minio struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinio(opts MinioOptions) (*Minio, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Minio{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func (m *Minio) Get(ctx context.Context, name string) ([]byte, error) {
	if !validName(name) {
		return nil, fmt.Errorf("get object %q: %w", name, ErrNotFound)
	}
	object, err := m.client.GetObject(ctx, m.bucket, m.prefix+name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", name, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("get object %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("read object %q: %w", name, err)
	}
	return data, nil
}

// Put uploads an object; used by the CLI to publish docs.
func (m *Minio) Put(ctx context.Context, name string, data []byte, contentType string) error {
	if !validName(name) {
		return fmt.Errorf("put object %q: invalid name", name)
	}
	_, err := m.client.PutObject(ctx, m.bucket, m.prefix+name, strings.NewReader(string(data)), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", name, err)
	}
	return nil
}

// EnsureBucket creates the bucket when it does not exist.
func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}
