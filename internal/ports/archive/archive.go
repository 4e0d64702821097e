// Package archive uploads finished match summaries to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"

	"spikeline/internal/domain"
	"spikeline/internal/ports"
)

// putter is the part of the S3 client the uploader needs.
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configure an S3 or R2 bucket.
type Options struct {
	Bucket    string
	Endpoint  string // empty uses AWS
	Region    string
	AccessKey string
	SecretKey string
}

// Uploader stores match summaries as JSON objects.
type Uploader struct {
	client putter
	bucket string
}

// New builds an uploader with static credentials.
func New(ctx context.Context, opts Options) (*Uploader, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = "auto"
	}
	loaders := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newUploader(client, opts.Bucket), nil
}

func newUploader(client putter, bucket string) *Uploader {
	return &Uploader{client: client, bucket: bucket}
}

// Key is the object key for a summary: matches/<yyyy>/<mm>/<dd>/<mode>-<map>-<id>.json.
func Key(summary domain.MatchSummary) string {
	name := slug.Make(fmt.Sprintf("%s %s %s", summary.Mode, summary.Map, summary.MatchID))
	return path.Join("matches", summary.EndedAt.UTC().Format("2006/01/02"), name+".json")
}

// Archive uploads the summary and returns its key.
func (u *Uploader) Archive(ctx context.Context, summary domain.MatchSummary) (string, error) {
	body, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	key := Key(summary)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return key, nil
}

var _ ports.Archive = (*Uploader)(nil)
