package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/beunreal/story-service/internal/domain"
	"go.uber.org/zap"
)

type S3Config struct {
	Region     string
	Bucket     string
	Endpoint   string // MinIO or other S3-compatible host; enables path-style URLs
	KeyPrefix  string
	PublicRead bool
	PresignTTL time.Duration
	Thumbnails bool
	Timeout    time.Duration // per upload, thumbnail included
}

type putter interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type deleter interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Uploader writes story media to an S3 bucket.
type S3Uploader struct {
	cfg     S3Config
	put     putter
	del     deleter
	presign func(ctx context.Context, key string) (string, error)
	log     *zap.Logger
}

func NewS3Uploader(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket not configured")
	}
	awsConf, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	u := &S3Uploader{
		cfg: cfg,
		put: manager.NewUploader(client),
		del: client,
		log: logger,
	}
	pc := s3.NewPresignClient(client)
	u.presign = func(ctx context.Context, key string) (string, error) {
		req, err := pc.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(cfg.Bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(cfg.PresignTTL))
		if err != nil {
			return "", err
		}
		return req.URL, nil
	}
	return u, nil
}

func (u *S3Uploader) Upload(ctx context.Context, ownerID string, f File) (Stored, error) {
	if u.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.Timeout)
		defer cancel()
	}
	key := objectKey(u.cfg.KeyPrefix, ownerID, f.Name, f.ContentType)
	link, err := u.putObject(ctx, key, f.ContentType, f.Data)
	if err != nil {
		return Stored{}, fmt.Errorf("upload %s: %w", key, err)
	}
	out := Stored{URL: link, Key: key}

	if u.cfg.Thumbnails && f.Kind == domain.MediaImage {
		out.ThumbnailURL, out.ThumbnailKey = u.uploadThumbnail(ctx, key, f.Data)
	}
	return out, nil
}

// uploadThumbnail is best effort; a story without a preview is still valid.
func (u *S3Uploader) uploadThumbnail(ctx context.Context, key string, data []byte) (string, string) {
	thumb, err := Thumbnail(data)
	if err != nil {
		u.log.Debug("thumbnail skipped", zap.String("key", key), zap.Error(err))
		return "", ""
	}
	tk := thumbKey(key)
	link, err := u.putObject(ctx, tk, "image/jpeg", thumb)
	if err != nil {
		u.log.Warn("thumbnail upload failed", zap.String("key", tk), zap.Error(err))
		return "", ""
	}
	return link, tk
}

func (u *S3Uploader) putObject(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := u.put.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	if !u.cfg.PublicRead && u.presign != nil {
		return u.presign(ctx, key)
	}
	return u.publicURL(key), nil
}

func (u *S3Uploader) publicURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if u.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(u.cfg.Endpoint, "/"), u.cfg.Bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, escaped)
}

func (u *S3Uploader) Delete(ctx context.Context, s Stored) error {
	var errs []error
	for _, key := range []string{s.Key, s.ThumbnailKey} {
		if key == "" {
			continue
		}
		_, err := u.del.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(u.cfg.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
