package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// PutObjectAPI is the part of *s3.Client used by S3Notifier.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options describes an S3-compatible endpoint (AWS or MinIO).
type S3Options struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// NewS3Client builds an S3 client with static credentials and path-style
// addressing, as required by MinIO.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

// S3Notifier archives every promotion event as a JSON object.
type S3Notifier struct {
	client PutObjectAPI
	bucket string
}

func NewS3Notifier(client PutObjectAPI, bucket string) *S3Notifier {
	return &S3Notifier{client: client, bucket: bucket}
}

type eventDocument struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	NewTier    string    `json:"new_tier"`
	PromotedAt time.Time `json:"promoted_at"`
}

// ObjectKey returns the key the event is stored under:
// promotions/YYYY/MM/DD/<event id>.json.
func ObjectKey(ev Event) string {
	d := ev.PromotedAt
	return fmt.Sprintf("promotions/%04d/%02d/%02d/%s.json", d.Year(), int(d.Month()), d.Day(), ev.EventID)
}

func (n *S3Notifier) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(eventDocument{
		EventID:    ev.EventID.String(),
		UserID:     ev.UserID,
		Name:       ev.Name,
		NewTier:    ev.NewTier.String(),
		PromotedAt: ev.PromotedAt,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = n.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(n.bucket),
		Key:         aws.String(ObjectKey(ev)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", n.bucket, ObjectKey(ev), err)
	}
	return nil
}
