package sink

import (
	"context"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	logger := log.NewLogger()

	s, err := New(context.Background(), Config{Provider: ProviderDryRun}, logger)
	require.NoError(t, err)
	assert.IsType(t, &DryRun{}, s)

	s, err = New(context.Background(), Config{Provider: ProviderDryRun, Retries: 2}, logger)
	require.NoError(t, err)
	assert.IsType(t, &RetryingSink{}, s)

	s, err = New(context.Background(), Config{Provider: ProviderHTTP, Endpoint: "https://tiles.example.com"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &HTTPSink{}, s)
}

func TestNew_Errors(t *testing.T) {
	logger := log.NewLogger()

	_, err := New(context.Background(), Config{Provider: "ftp"}, logger)
	assert.ErrorContains(t, err, `unknown sink provider "ftp"`)

	_, err = New(context.Background(), Config{Provider: ProviderS3, Region: "us-east-1"}, logger)
	assert.ErrorContains(t, err, "bucket must not be empty")

	_, err = New(context.Background(), Config{Provider: ProviderHTTP, Endpoint: "tiles.example.com"}, logger)
	assert.ErrorContains(t, err, "create http sink")
}

func TestDryRun(t *testing.T) {
	d := NewDryRun(log.NewLogger())

	require.NoError(t, d.Put(context.Background(), "a", []byte("12345"), "image/png", PublicRead))
	require.NoError(t, d.Put(context.Background(), "b", []byte("123"), "image/png", PublicRead))

	assert.Equal(t, int64(2), d.Count())
	assert.Equal(t, int64(8), d.Bytes())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Put(ctx, "c", nil, "", PublicRead), context.Canceled)
}

func TestParseACL(t *testing.T) {
	acl, err := ParseACL("")
	require.NoError(t, err)
	assert.Equal(t, PublicRead, acl)

	acl, err = ParseACL("private")
	require.NoError(t, err)
	assert.Equal(t, Private, acl)

	_, err = ParseACL("authenticated-read")
	assert.Error(t, err)
}
