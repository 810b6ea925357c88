package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Access   string
	Secret   string
	Bucket   string
	Endpoint string
	Region   string
	// objects are stored as Prefix/<name>
	Prefix string
	// use http instead of https e.g. for local minio
	Insecure     bool
	RequestTrace io.Writer
}

// S3 stores snapshots in S3-compatible storage
type S3 struct {
	Client *minio.Client
	config *S3Config
}

var _ Target = &S3{}

// NewS3 creates S3 target. It doesn't talk to the server.
func NewS3(config *S3Config) (*S3, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: must provide S3Config", ErrMissingConfig)
	}
	c := config
	var missing []string
	if c.Access == "" {
		missing = append(missing, "Access")
	}
	if c.Secret == "" {
		missing = append(missing, "Secret")
	}
	if c.Bucket == "" {
		missing = append(missing, "Bucket")
	}
	if c.Endpoint == "" {
		missing = append(missing, "Endpoint")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	if c.RequestTrace != nil {
		mc.TraceOn(c.RequestTrace)
	}
	return &S3{
		Client: mc,
		config: config,
	}, nil
}

func (s *S3) Name() string {
	return "s3:" + path.Join(s.config.Bucket, s.config.Prefix)
}

func (s *S3) objectName(name string) string {
	return path.Join(s.config.Prefix, name)
}

func (s *S3) Put(ctx context.Context, name string, data []byte) error {
	opts := minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}
	r := bytes.NewReader(data)
	_, err := s.Client.PutObject(ctx, s.config.Bucket, s.objectName(name), r, int64(len(data)), opts)
	return err
}

func (s *S3) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.Client.GetObject(ctx, s.config.Bucket, s.objectName(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}
