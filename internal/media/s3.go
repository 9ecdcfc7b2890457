package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/velstore/accounts-api/internal/config"
)

// Asset identifies a stored image: the object key and the public URL it
// is served from.
type Asset struct {
	PublicID string
	URL      string
}

// Store is the image-host surface the handlers depend on.
type Store interface {
	Upload(ctx context.Context, payload string) (*Asset, error)
	Delete(ctx context.Context, publicID string) error
}

// objectAPI is the slice of the S3 client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps avatars in an S3-compatible bucket (MinIO in dev).
type S3Store struct {
	client objectAPI
	cfg    config.MediaConfig
}

var _ Store = (*S3Store)(nil)

// NewS3Store builds the S3 client with static credentials and a custom
// endpoint, MinIO style.
func NewS3Store(ctx context.Context, cfg config.MediaConfig) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &S3Store{client: client, cfg: cfg}, nil
}

// newS3StoreWithClient is used by tests to inject a fake client.
func newS3StoreWithClient(client objectAPI, cfg config.MediaConfig) *S3Store {
	return &S3Store{client: client, cfg: cfg}
}

// Upload decodes an inline image payload (raw or data-URL base64) and
// stores it under the avatar folder. The fixed width and crop mode are
// recorded as object metadata.
func (s *S3Store) Upload(ctx context.Context, payload string) (*Asset, error) {
	data, contentType, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s", s.cfg.AvatarFolder, uuid.New())

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"width": strconv.Itoa(s.cfg.AvatarWidth),
			"crop":  s.cfg.AvatarCrop,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}

	return &Asset{PublicID: key, URL: s.publicURL(key)}, nil
}

// Delete removes a stored image by its object key.
func (s *S3Store) Delete(ctx context.Context, publicID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}

	return nil
}

func (s *S3Store) publicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.PublicURL, "/"), s.cfg.Bucket, key)
}

// decodePayload accepts either a bare base64 string or a data URL
// (data:image/png;base64,...) and returns the bytes plus content type.
func decodePayload(payload string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, "", fmt.Errorf("empty image payload")
	}

	contentType := ""
	if strings.HasPrefix(payload, "data:") {
		header, rest, ok := strings.Cut(payload, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("malformed data URL")
		}
		contentType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		payload = rest
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image payload: %w", err)
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return data, contentType, nil
}
