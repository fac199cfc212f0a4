// Package recordings fetches call audio objects from S3 for the API's
// streaming endpoint.
package recordings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("recording not found")

// objectGetter is the slice of the S3 client the fetcher uses.
type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher streams recording playlists and segments from a bucket.
type Fetcher struct {
	client objectGetter
	bucket string
}

func NewFetcher(ctx context.Context, bucket, region string) (*Fetcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newFetcher(s3.NewFromConfig(cfg), bucket), nil
}

func newFetcher(client objectGetter, bucket string) *Fetcher {
	return &Fetcher{client: client, bucket: bucket}
}

// Object holds a recording object's body and content type. The caller must
// close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
}

// Audio fetches the rendered mp3 for a finished call.
func (f *Fetcher) Audio(ctx context.Context, callID string) (Object, error) {
	if strings.Contains(callID, "/") || strings.Contains(callID, "..") {
		return Object{}, fmt.Errorf("invalid call id %q", callID)
	}
	obj, err := f.get(ctx, "mp3/"+callID+".mp3")
	if err != nil {
		return Object{}, err
	}
	if obj.ContentType == "" {
		obj.ContentType = "audio/mpeg"
	}
	return obj, nil
}

// Playlist fetches the HLS playlist for a room's recording.
func (f *Fetcher) Playlist(ctx context.Context, roomName string) (Object, error) {
	return f.get(ctx, roomName+"-playlist.m3u8")
}

// Segment fetches one media segment referenced by a playlist. The key is
// validated to stay inside the bucket's flat namespace.
func (f *Fetcher) Segment(ctx context.Context, key string) (Object, error) {
	if strings.Contains(key, "/") || strings.Contains(key, "..") {
		return Object{}, fmt.Errorf("invalid segment key %q", key)
	}
	return f.get(ctx, key)
}

func (f *Fetcher) get(ctx context.Context, key string) (Object, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return Object{}, fmt.Errorf("object %s: %w", key, ErrNotFound)
		}
		return Object{}, fmt.Errorf("get object %s: %w", key, err)
	}
	return Object{Body: out.Body, ContentType: aws.ToString(out.ContentType)}, nil
}
