// Package media turns stored media references into links a chat client can
// open. s3://bucket/key references become presigned GET URLs; anything else
// is passed through.
package media

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/config"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const DefaultURLTTL = 24 * time.Hour

// Presigner signs object GETs.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (string, error)
}

type Resolver struct {
	presigner Presigner
	ttl       time.Duration
}

var _ engine.MediaResolver = (*Resolver)(nil)

func NewResolver(presigner Presigner, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return &Resolver{presigner: presigner, ttl: ttl}
}

// NewS3Resolver builds a resolver from config. Without static credentials
// s3:// references cannot be signed and fail to resolve.
func NewS3Resolver(cfg config.MediaConfig) *Resolver {
	if cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "" {
		return NewResolver(nil, cfg.URLTTL)
	}

	client := s3.New(s3.Options{
		Region: cfg.S3Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		),
	})
	return NewResolver(&s3Presigner{client: s3.NewPresignClient(client)}, cfg.URLTTL)
}

func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	bucket, key, ok := ParseS3Ref(ref)
	if !ok {
		return ref, nil
	}
	if r.presigner == nil {
		return "", errx.New("s3 media storage is not configured", errx.TypeValidation).
			WithDetail("ref", ref)
	}

	signed, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return "", errx.Wrap(err, "failed to presign media reference", errx.TypeExternal).
			WithDetail("ref", ref)
	}
	return signed, nil
}

// ParseS3Ref splits s3://bucket/key. ok is false for any other scheme.
func ParseS3Ref(ref string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(strings.ToLower(ref), "s3://") {
		return "", "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", false
	}
	return u.Host, key, true
}

type s3Presigner struct {
	client *s3.PresignClient
}

func (p *s3Presigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (string, error) {
	req, err := p.client.PresignGetObject(ctx, params, optFns...)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", aws.ToString(params.Key), err)
	}
	return req.URL, nil
}
