package mediasvc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/content"
)

// s3API is the part of *s3.Client used by S3Storage.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Storage struct {
	client  s3API
	bucket  string
	baseURL string
}

var _ content.Media = (*S3Storage)(nil)

// NewS3Storage loads the AWS configuration (static keys when set, else the default chain).
// Objects are linked through media.baseUrl when absolute, else through the bucket URL.
func NewS3Storage(ctx context.Context, conf *core.Config) (*S3Storage, error) {
	mc := conf.Media
	if mc.S3Bucket == "" {
		return nil, errors.New("media.s3Bucket is required by the s3 backend")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(mc.S3Region)}
	if mc.S3AccessKey != "" && mc.S3SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(mc.S3AccessKey, mc.S3SecretKey, ""),
		))
	}
	awsConf, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}

	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if mc.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(mc.S3Endpoint)
		}
		o.UsePathStyle = mc.S3UsePathStyle
	})
	return newS3Storage(client, conf), nil
}

func newS3Storage(client s3API, conf *core.Config) *S3Storage {
	mc := conf.Media
	baseURL := mc.BaseURL
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		switch {
		case mc.S3Endpoint != "":
			baseURL = joinURL(mc.S3Endpoint, mc.S3Bucket)
		default:
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", mc.S3Bucket, mc.S3Region)
		}
	}
	return &S3Storage{client: client, bucket: mc.S3Bucket, baseURL: baseURL}
}

func (s *S3Storage) Save(ctx context.Context, prefix, filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, "reading upload")
	}

	key := newKey(prefix, filename)
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", errors.Wrap(err, "uploading to s3")
	}
	return key, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrap(err, "deleting from s3")
}

func (s *S3Storage) URL(key string) string { return joinURL(s.baseURL, key) }
