package gcs

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "media"})
	require.EqualError(t, err, "storage client is required")

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{})
	require.EqualError(t, err, "bucket name is required")
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "media", Prefix: "/uploads/"})
	require.NoError(t, err)
	assert.Equal(t, "uploads/nicmusic/song.mp3", store.ObjectName("/nicmusic/song.mp3"))

	bare, err := New(client, Config{Bucket: "media"})
	require.NoError(t, err)
	assert.Equal(t, "nicmusic/song.mp3", bare.ObjectName("nicmusic/song.mp3"))
}

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestExists(t *testing.T) {
	t.Parallel()

	client, err := storage.NewClient(
		context.Background(),
		option.WithoutAuthentication(),
		option.WithHTTPClient(&http.Client{
			Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
				status, body := http.StatusNotFound, `{"error":{"code":404,"message":"No such object"}}`
				if strings.HasSuffix(r.URL.Path, "present.mp3") {
					status, body = http.StatusOK, `{"name":"media/present.mp3","bucket":"bucket"}`
				}
				return &http.Response{
					StatusCode: status,
					Body:       io.NopCloser(strings.NewReader(body)),
					Header:     http.Header{"Content-Type": {"application/json"}},
					Request:    r,
				}, nil
			}),
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "bucket", Prefix: "media"})
	require.NoError(t, err)

	ok, err := store.Exists(context.Background(), "present.mp3")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(context.Background(), "missing.mp3")
	require.NoError(t, err)
	assert.False(t, ok)
}
