package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Presigner issues presigned object URLs for a bucket.
type S3Presigner struct {
	presigner *s3.PresignClient
}

func NewS3Presigner(cfg sdkaws.Config) *S3Presigner {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// LocalStack serves buckets on the path, not as subdomains.
		o.UsePathStyle = usesCustomEndpoint(cfg)
	})
	return &S3Presigner{presigner: s3.NewPresignClient(client)}
}

// PresignGet returns a time-limited GET URL for bucket/key.
func (p *S3Presigner) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	req, err := p.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: sdkaws.String(bucket),
		Key:    sdkaws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign get object: %w", err)
	}
	return req.URL, nil
}
