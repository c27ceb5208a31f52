package slice

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dar-go/dar/pkg/errs"
)

// S3Config describes where an S3-backed slice set lives. A destination
// basename of the form "s3://bucket/prefix" is routed to this backend by
// cmd/dar's openStore, generalizing the teacher's per-layer S3 writer
// (pkg/v2/s3_writer.go) into a slice.Store.
type S3Config struct {
	Bucket         string
	Prefix         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// S3Store implements Store over S3 objects named
// <prefix>.<index>.<extension>, one PutObject per slice.
type S3Store struct {
	cfg       S3Config
	extension string
	client    *s3.Client
}

// NewS3Store builds an S3Store from cfg, loading AWS credentials the same
// way the teacher's clip v2 writer does: static keys plus an optional
// path-style/custom-endpoint override for S3-compatible stores (MinIO, R2).
func NewS3Store(ctx context.Context, cfg S3Config, extension string) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
	)
	if err != nil {
		return nil, errs.New(errs.KindHardware, "slice.NewS3Store", fmt.Errorf("loading aws config: %w", err))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Store{cfg: cfg, extension: extension, client: client}, nil
}

func (s *S3Store) Name() string { return fmt.Sprintf("s3://%s/%s", s.cfg.Bucket, s.cfg.Prefix) }

func (s *S3Store) key(idx int) string {
	return fmt.Sprintf("%s.%d.%s", s.cfg.Prefix, idx, s.extension)
}

func (s *S3Store) Exists(idx int) bool {
	_, err := s.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(idx)),
	})
	return err == nil
}

func (s *S3Store) ReadSlice(idx int) (io.ReadCloser, error) {
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(idx)),
	})
	if err != nil {
		return nil, errs.New(errs.KindHardware, "slice.S3Store.ReadSlice", err)
	}
	return out.Body, nil
}

func (s *S3Store) WriteSlice(idx int, content []byte) error {
	uploader := manager.NewUploader(s.client)
	_, err := uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(idx)),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return errs.New(errs.KindHardware, "slice.S3Store.WriteSlice", fmt.Errorf("uploading %s: %w", s.key(idx), err))
	}
	return nil
}
