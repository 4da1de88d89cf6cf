package resume

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectAPI is the subset of the S3 client the archive uses. *s3.Client
// satisfies it.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// R2Config addresses a Cloudflare R2 bucket.
type R2Config struct {
	AccountID string
	AccessKey string
	SecretKey string
	Bucket    string

	// Endpoint overrides the derived https://<account>.r2.cloudflarestorage.com
	// endpoint, for MinIO or another S3-compatible server.
	Endpoint string
}

// Archive stores resume uploads and interview transcripts as objects.
type Archive struct {
	client ObjectAPI
	bucket string
}

// NewArchive wraps an existing client.
func NewArchive(client ObjectAPI, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// NewR2Archive builds an S3 client for an R2 bucket with static credentials.
func NewR2Archive(ctx context.Context, cfg R2Config) (*Archive, error) {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("resume: r2 bucket and credentials are required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.AccountID == "" {
			return nil, errors.New("resume: r2 account id or endpoint is required")
		}
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("resume: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = cfg.Endpoint != ""
	})
	return NewArchive(client, cfg.Bucket), nil
}

// ResumeKey returns the object key of an uploaded resume.
func ResumeKey(userID, trackID, filename string) string {
	return path.Join("resumes", safeSegment(userID), safeSegment(trackID), safeSegment(path.Base(filename)))
}

// TranscriptKey returns the object key of an archived interview transcript.
func TranscriptKey(userID, sessionID string) string {
	return path.Join("transcripts", safeSegment(userID), safeSegment(sessionID)+".txt")
}

// Put uploads data under key.
func (a *Archive) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("resume: put %s: %w", key, err)
	}
	return nil
}

// Get downloads the object stored under key.
func (a *Archive) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("resume: get %s: %w", key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, out.Body); err != nil {
		return nil, fmt.Errorf("resume: read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

// Ping checks that the bucket is reachable.
func (a *Archive) Ping(ctx context.Context) error {
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("resume: head bucket: %w", err)
	}
	return nil
}

func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return strings.NewReplacer("/", "_", "\\", "_").Replace(s)
}
