package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/deltasync/internal/domain"
)

// Reader implements domain.BlobReader for one bucket.
type Reader struct {
	client *s3.Client
	bucket string
}

// NewReader creates a Reader over the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// Get opens the object at key. The caller closes the body. A missing object
// yields domain.ErrNotFound.
func (r *Reader) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: get %s/%s: %w", r.bucket, key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: get %s/%s: %w", r.bucket, key, err)
	}
	return out.Body, nil
}

// Folders returns the first-level "directories" of the bucket, without the
// trailing slash. Quote files are stored one folder per trading date.
func (r *Reader) Folders(ctx context.Context) ([]string, error) {
	var out []string

	pages := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucket),
		Delimiter: aws.String("/"),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list folders of %s: %w", r.bucket, err)
		}
		for _, p := range page.CommonPrefixes {
			out = append(out, strings.TrimSuffix(aws.ToString(p.Prefix), "/"))
		}
	}
	return out, nil
}

// Exists reports whether key is present. Errors other than not-found are
// returned.
func (r *Reader) Exists(ctx context.Context, key string) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3blob: head %s/%s: %w", r.bucket, key, err)
	}
	return true, nil
}

// isNotFound recognises the typed NoSuchKey / NotFound errors and a bare 404
// from providers that return neither.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	type httpResponseError interface {
		HTTPStatusCode() int
	}
	var httpErr httpResponseError
	return errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404
}
