package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSParams ...
type GCSParams struct {
	Bucket          string
	CredentialsFile string
}

// GCSSink uploads objects to a Google Cloud Storage bucket.
type GCSSink struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a GCS sink. Without a credentials file the application default
// credentials are used.
func NewGCS(ctx context.Context, params GCSParams) (*GCSSink, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}

	var clientOpts []option.ClientOption
	if params.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(params.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &GCSSink{client: client, bucket: params.Bucket}, nil
}

// Put ...
func (s *GCSSink) Put(ctx context.Context, key string, data []byte, contentType string, acl ACL) error {
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	writer.PredefinedACL = gcsPredefinedACL(acl)
	// Tiles are small; send each in a single request.
	writer.ChunkSize = 0

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return classifyGCSError(fmt.Errorf("write gs://%s/%s: %w", s.bucket, key, err))
	}

	if err := writer.Close(); err != nil {
		return classifyGCSError(fmt.Errorf("close writer for gs://%s/%s: %w", s.bucket, key, err))
	}

	return nil
}

// Close releases the underlying client.
func (s *GCSSink) Close() error {
	return s.client.Close()
}

func gcsPredefinedACL(acl ACL) string {
	if acl == Private {
		return "private"
	}
	return "publicRead"
}

func classifyGCSError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
		return accessDenied(err)
	}
	return err
}
