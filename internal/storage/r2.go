// Package storage provides the optional R2 upload fallback for files
// that exceed the chat attachment limit.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2 uploads artifacts to Cloudflare R2 and serves them via public URL.
type R2 struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

// NewR2 creates a new R2 storage client.
func NewR2(ctx context.Context, accountID, accessKeyID, secretAccessKey, bucket, publicURL string) (*R2, error) {
	if accountID == "" || accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("R2 credentials not configured")
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	return &R2{client: client, bucket: bucket, publicURL: publicURL}, nil
}

// Upload uploads a file to R2 and returns its public URL.
func (r *R2) Upload(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	key := fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(filePath))

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(detectContentType(filePath)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	slog.Info("Uploaded oversize artifact", "key", key, "bucket", r.bucket)

	if r.publicURL != "" {
		return fmt.Sprintf("%s/%s", r.publicURL, key), nil
	}
	return fmt.Sprintf("https://%s.r2.dev/%s", r.bucket, key), nil
}

// DeleteOlderThan removes uploaded objects past the given age so links
// expire instead of accumulating storage cost.
func (r *R2) DeleteOlderThan(ctx context.Context, age time.Duration) (int, error) {
	threshold := time.Now().Add(-age)
	deleted := 0

	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.LastModified == nil || obj.LastModified.After(threshold) {
				continue
			}
			_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(r.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				slog.Warn("Failed to delete R2 object", "key", aws.ToString(obj.Key), "error", err)
				continue
			}
			deleted++
		}
	}

	return deleted, nil
}

// detectContentType returns MIME type based on file extension.
func detectContentType(filePath string) string {
	switch filepath.Ext(filePath) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
