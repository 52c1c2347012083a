// Package gcs fetches statement files from Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const scheme = "gs://"

// Location is a parsed gs:// URI. An empty or slash-terminated Object is a
// prefix covering every object below it.
type Location struct {
	Bucket string
	Object string
}

// IsPrefix reports whether the location names a folder rather than one object.
func (l Location) IsPrefix() bool {
	return l.Object == "" || strings.HasSuffix(l.Object, "/")
}

func (l Location) String() string {
	return scheme + l.Bucket + "/" + l.Object
}

// IsURI reports whether s looks like a gs:// URI.
func IsURI(s string) bool {
	return strings.HasPrefix(s, scheme)
}

// ParseURI splits gs://bucket/object into its parts.
func ParseURI(uri string) (Location, error) {
	if !IsURI(uri) {
		return Location{}, fmt.Errorf("not a gs:// URI: %q", uri)
	}
	rest := strings.TrimPrefix(uri, scheme)
	bucket, object, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("missing bucket in %q", uri)
	}
	return Location{Bucket: bucket, Object: object}, nil
}

// Client reads statement objects.
type Client struct {
	storage *storage.Client
}

// NewClient creates a storage client using Application Default Credentials
// unless opts say otherwise.
func NewClient(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Client{storage: c}, nil
}

// Close releases the storage client.
func (c *Client) Close() error {
	return c.storage.Close()
}

// Open returns a reader for one object. The caller closes it.
func (c *Client) Open(ctx context.Context, loc Location) (io.ReadCloser, error) {
	if loc.IsPrefix() {
		return nil, fmt.Errorf("%s is a prefix, not an object", loc)
	}
	r, err := c.storage.Bucket(loc.Bucket).Object(loc.Object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader for %s: %w", loc, err)
	}
	return r, nil
}

// List returns the objects below a prefix location, skipping folder
// placeholders. Objects come back in lexical order.
func (c *Client) List(ctx context.Context, loc Location) ([]Location, error) {
	it := c.storage.Bucket(loc.Bucket).Objects(ctx, &storage.Query{Prefix: loc.Object})

	var objects []Location
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", loc, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		objects = append(objects, Location{Bucket: loc.Bucket, Object: attrs.Name})
	}
	return objects, nil
}
