package sink

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestClassifyGCSError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantDenied bool
	}{
		{name: "forbidden", err: &googleapi.Error{Code: http.StatusForbidden, Message: "forbidden"}, wantDenied: true},
		{name: "unauthorized", err: &googleapi.Error{Code: http.StatusUnauthorized, Message: "unauthorized"}, wantDenied: true},
		{name: "server error", err: &googleapi.Error{Code: http.StatusServiceUnavailable, Message: "unavailable"}, wantDenied: false},
		{name: "plain", err: errors.New("boom"), wantDenied: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyGCSError(fmt.Errorf("write gs://b/k: %w", tt.err))
			assert.Equal(t, tt.wantDenied, errors.Is(err, ErrAccessDenied))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestGCSPredefinedACL(t *testing.T) {
	assert.Equal(t, "publicRead", gcsPredefinedACL(PublicRead))
	assert.Equal(t, "private", gcsPredefinedACL(Private))
}

func TestClassifyAzureError(t *testing.T) {
	responseError := func(status int) *azcore.ResponseError {
		return &azcore.ResponseError{
			StatusCode: status,
			RawResponse: &http.Response{
				StatusCode: status,
				Request:    httptest.NewRequest(http.MethodPut, "https://acct.blob.core.windows.net/tiles/a", nil),
			},
		}
	}

	assert.True(t, errors.Is(classifyAzureError(responseError(http.StatusForbidden)), ErrAccessDenied))
	assert.True(t, errors.Is(classifyAzureError(responseError(http.StatusUnauthorized)), ErrAccessDenied))
	assert.False(t, errors.Is(classifyAzureError(responseError(http.StatusInternalServerError)), ErrAccessDenied))
	assert.False(t, errors.Is(classifyAzureError(errors.New("dial tcp: timeout")), ErrAccessDenied))
}

func TestNewAzure_Validation(t *testing.T) {
	_, err := NewAzure(AzureParams{AccountURL: "https://acct.blob.core.windows.net/"}, nil)
	assert.EqualError(t, err, "container must not be empty")

	_, err = NewAzure(AzureParams{Container: "tiles"}, nil)
	assert.EqualError(t, err, "account url is required")
}
