package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/v2/log"
)

// S3Params ...
type S3Params struct {
	Bucket          string
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Sink uploads objects to an S3 (or S3 compatible) bucket.
type S3Sink struct {
	uploader s3Uploader
	bucket   string
}

var s3AccessDeniedCodes = map[string]bool{
	"AccessDenied":          true,
	"AllAccessDisabled":     true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
	"InvalidToken":          true,
}

// NewS3 creates an S3 sink. Static credentials are used when both keys are given,
// otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, params S3Params, logger log.Logger) (*S3Sink, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}

	cfg, err := loadAWSCredentials(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey, logger)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}

	client := s3.NewFromConfig(*cfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
		}
		o.UsePathStyle = params.UsePathStyle
	})

	return &S3Sink{
		uploader: manager.NewUploader(client),
		bucket:   params.Bucket,
	}, nil
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}

// Put ...
func (s *S3Sink) Put(ctx context.Context, key string, data []byte, contentType string, acl ACL) error {
	cannedACL := types.ObjectCannedACLPublicRead
	if acl == Private {
		cannedACL = types.ObjectCannedACLPrivate
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Body:          bytes.NewReader(data),
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		ACL:           cannedACL,
	})
	if err != nil {
		return classifyS3Error(fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err))
	}

	return nil
}

func classifyS3Error(err error) error {
	var apiError smithy.APIError
	if errors.As(err, &apiError) && s3AccessDeniedCodes[apiError.ErrorCode()] {
		return accessDenied(err)
	}
	return err
}
