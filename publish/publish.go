// Package publish uploads rendered quilts to S3-compatible object storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/dustin/go-humanize"

	"github.com/stevecastle/lkgquilt/appconfig"
)

// Target is a bucket and key prefix parsed from s3://bucket/prefix.
type Target struct {
	Bucket string
	Prefix string
}

// ParseS3URL parses an s3://bucket[/prefix] destination.
func ParseS3URL(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("invalid upload destination %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return Target{}, fmt.Errorf("upload destination %q must start with s3://", raw)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("upload destination %q has no bucket", raw)
	}
	return Target{Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
}

// Key is the object key file is stored under.
func (t Target) Key(file string) string {
	name := filepath.Base(file)
	if t.Prefix == "" {
		return name
	}
	return path.Join(t.Prefix, name)
}

// URL is the s3:// address of key.
func (t Target) URL(key string) string {
	return "s3://" + t.Bucket + "/" + key
}

// PutObjectAPI is the part of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader puts files into a bucket.
type Uploader struct {
	client PutObjectAPI
	logger *slog.Logger
}

// NewUploader builds an S3 client from the default AWS chain, with region,
// static credentials and a custom endpoint taken from cfg when set.
func NewUploader(ctx context.Context, cfg appconfig.S3Config, logger *slog.Logger) (*Uploader, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewUploaderWithClient(client, logger), nil
}

// NewUploaderWithClient wraps an existing client.
func NewUploaderWithClient(client PutObjectAPI, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{client: client, logger: logger}
}

// Upload stores file under t and returns its s3:// URL.
func (u *Uploader) Upload(ctx context.Context, t Target, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	key := t.Key(file)
	dest := t.URL(key)
	u.logger.Debug("uploading", "file", file, "dest", dest, "size", humanize.IBytes(uint64(info.Size())))

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(file)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("upload to %s rejected (%s: %s): %w", dest, apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
		}
		return "", fmt.Errorf("upload to %s failed: %w", dest, err)
	}
	return dest, nil
}

func contentType(file string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(file))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
