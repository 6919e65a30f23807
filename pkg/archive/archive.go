// Package archive uploads exported report workbooks to S3 or an
// S3-compatible store.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// XLSXContentType - MIME тип книги Excel
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Config - параметры бакета. Пустые ключи = цепочка учетных данных AWS по умолчанию.
type Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"` // MinIO и прочие S3-совместимые
	UsePathStyle    bool   `yaml:"use_path_style,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// Validate проверяет обязательные поля включенного архива
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Bucket == "" {
		return errors.New("archive.bucket is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("archive access_key_id and secret_access_key must be set together")
	}
	return nil
}

// uploader is the part of manager.Uploader the archive uses.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Archive кладет объекты в один бакет под общим префиксом
type Archive struct {
	cfg Config
	up  uploader
}

// New loads AWS configuration and builds a multipart uploader.
func New(ctx context.Context, cfg Config) (*Archive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newWithUploader(cfg, manager.NewUploader(client)), nil
}

func newWithUploader(cfg Config, up uploader) *Archive {
	return &Archive{cfg: cfg, up: up}
}

// Put uploads body under key (relative to the configured prefix) and returns
// the object location.
func (a *Archive) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	full := path.Join(a.cfg.Prefix, key)
	out, err := a.up.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(full),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", a.cfg.Bucket, full, err)
	}
	if out.Location != "" {
		return out.Location, nil
	}
	return fmt.Sprintf("s3://%s/%s", a.cfg.Bucket, full), nil
}

var unsafeKeyChars = regexp.MustCompile(`[^a-z0-9]+`)

// ReportKey: report-<id>/<slug>-<UTC timestamp>.xlsx
func ReportKey(reportID int64, reportName string, at time.Time) string {
	slug := strings.Trim(unsafeKeyChars.ReplaceAllString(strings.ToLower(reportName), "-"), "-")
	if slug == "" {
		slug = "report"
	}
	return fmt.Sprintf("report-%d/%s-%s.xlsx", reportID, slug, at.UTC().Format("20060102T150405Z"))
}
