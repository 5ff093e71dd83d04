package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/whisper/internal/common"
	sc "github.com/dmitrijs2005/whisper/internal/server/config"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// MediaService hands out presigned URLs so clients move attachment bytes
// straight to and from object storage. The chat core only ever sees the key.
type MediaService struct {
	config *sc.Config
}

func NewMediaService(config *sc.Config) *MediaService {
	return &MediaService{config: config}
}

// NewStorageKey returns a fresh, date-partitioned object key for userID. ext,
// when set, includes the leading dot.
func NewStorageKey(userID int64, ext string) string {
	d := time.Now().UTC()
	return fmt.Sprintf("media/%d/%d/%d/%d/%v%s", userID, d.Year(), d.Month(), d.Day(), uuid.New(), ext)
}

// extensionFor resolves a MIME type such as "image/png" to its file
// extension. An empty contentType yields no extension.
func extensionFor(contentType string) (string, error) {
	if contentType == "" {
		return "", nil
	}
	m := mimetype.Lookup(contentType)
	if m == nil {
		return "", fmt.Errorf("%w: unsupported content type %q", common.ErrValidation, contentType)
	}
	return m.Extension(), nil
}

func (s *MediaService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// UploadURL reserves a new key for userID and returns it with a presigned PUT
// URL. A non-empty contentType is signed into the request and picks the key's
// extension.
func (s *MediaService) UploadURL(ctx context.Context, userID int64, contentType string) (string, string, error) {
	ext, err := extensionFor(contentType)
	if err != nil {
		return "", "", err
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := NewStorageKey(userID, ext)

	in := &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	req, err := presignPutObject(presignClient, ctx, in, s3.WithPresignExpires(s.config.PresignValidity))
	if err != nil {
		return "", "", err
	}

	return key, req.URL, nil
}

// DownloadURL presigns a GET for a key previously issued by UploadURL.
func (s *MediaService) DownloadURL(ctx context.Context, key string) (string, error) {
	if key == "" || !strings.HasPrefix(key, "media/") || strings.Contains(key, "..") {
		return "", common.ErrValidation
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.config.PresignValidity))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
