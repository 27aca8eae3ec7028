package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/snarg/call-engine/internal/model"
)

// S3Config configures the S3-compatible audio object store.
type S3Config struct {
	Endpoint  string // empty for real AWS
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
}

// S3Source fetches audio objects from an S3-compatible store into
// temporary files for the transcription providers.
type S3Source struct {
	client *s3.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewS3Source creates an S3 audio source from config.
func NewS3Source(cfg S3Config, log zerolog.Logger) (*S3Source, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Source{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.With().Str("component", "s3-audio").Logger(),
	}, nil
}

// HeadBucket checks that the bucket exists and credentials are valid.
func (s *S3Source) HeadBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: &s.bucket,
	})
	return err
}

// Fetch downloads the object to a temp file. A missing key is a
// content-class error; anything else is transport and retryable.
func (s *S3Source) Fetch(ctx context.Context, audioKey string) (string, func(), error) {
	noop := func() {}
	objKey := s.objectKey(audioKey)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objKey,
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", noop, model.Contentf("s3", fmt.Errorf("audio object not found: %s", objKey))
		}
		return "", noop, model.Transportf("s3", err)
	}
	defer out.Body.Close()

	tmp, err := os.CreateTemp("", "call-engine-audio-*"+filepath.Ext(audioKey))
	if err != nil {
		return "", noop, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, out.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", noop, model.Transportf("s3", fmt.Errorf("download object: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", noop, fmt.Errorf("close temp file: %w", err)
	}

	path := tmp.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("failed to remove temp audio")
		}
	}
	return path, cleanup, nil
}

func (s *S3Source) objectKey(key string) string {
	if s.prefix != "" {
		return s.prefix + "/audio/" + key
	}
	return "audio/" + key
}
