package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/bitrise-io/go-utils/v2/log"
)

// AzureParams ...
type AzureParams struct {
	// Container is the blob container receiving the tiles.
	Container string
	// AccountURL is the blob service endpoint, e.g. https://account.blob.core.windows.net/
	AccountURL  string
	AccountName string
	AccountKey  string
}

// AzureSink uploads objects to an Azure Blob Storage container.
type AzureSink struct {
	client    *azblob.Client
	container string
	logger    log.Logger
}

// NewAzure creates an Azure sink using a shared key when one is configured and
// the default Azure credential chain otherwise.
func NewAzure(params AzureParams, logger log.Logger) (*AzureSink, error) {
	if params.Container == "" {
		return nil, fmt.Errorf("container must not be empty")
	}
	if params.AccountURL == "" {
		return nil, fmt.Errorf("account url is required")
	}

	var client *azblob.Client
	if params.AccountName != "" && params.AccountKey != "" {
		cred, err := azblob.NewSharedKeyCredential(params.AccountName, params.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("create shared key credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(params.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("create blob client: %w", err)
		}
	} else {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("create default azure credential: %w", err)
		}
		client, err = azblob.NewClient(params.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("create blob client: %w", err)
		}
	}

	logger.Debugf("Azure containers control read access; object ACLs are not applied")

	return &AzureSink{client: client, container: params.Container, logger: logger}, nil
}

// Put ...
func (s *AzureSink) Put(ctx context.Context, key string, data []byte, contentType string, _ ACL) error {
	_, err := s.client.UploadBuffer(ctx, s.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(contentType),
		},
	})
	if err != nil {
		return classifyAzureError(fmt.Errorf("upload blob %s/%s: %w", s.container, key, err))
	}
	return nil
}

func classifyAzureError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && (respErr.StatusCode == http.StatusUnauthorized || respErr.StatusCode == http.StatusForbidden) {
		return accessDenied(err)
	}
	return err
}
