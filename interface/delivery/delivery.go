package delivery

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Fetcher fetches the objects delivered in a bucket
type Fetcher interface {
	// Fetch downloads all the objects of the location into dstDir and returns the local files
	Fetch(ctx context.Context, loc Location, dstDir string) ([]string, error)
}

// Location of delivered objects: gs://bucket/prefix or s3://bucket/prefix
type Location struct {
	Scheme string
	Bucket string
	Prefix string
}

func (l Location) String() string {
	return l.Scheme + "://" + l.Bucket + "/" + l.Prefix
}

// ParseLocation parses a uri such as gs://bucket/prefix
func ParseLocation(uri string) (Location, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("ParseLocation: %w", err)
	}
	switch u.Scheme {
	case "gs", "s3":
	default:
		return Location{}, fmt.Errorf("ParseLocation[%s]: unsupported scheme (expecting gs:// or s3://)", uri)
	}
	if u.Host == "" {
		return Location{}, fmt.Errorf("ParseLocation[%s]: missing bucket", uri)
	}
	return Location{Scheme: u.Scheme, Bucket: u.Host, Prefix: strings.TrimPrefix(u.Path, "/")}, nil
}

// Join returns the location of a sub-prefix
func (l Location) Join(elems ...string) Location {
	parts := append([]string{strings.TrimSuffix(l.Prefix, "/")}, elems...)
	l.Prefix = strings.TrimPrefix(strings.Join(parts, "/"), "/")
	return l
}

// localPath returns the local path of an object, relative to the prefix of the location.
// Returns "" for directory placeholders.
func localPath(prefix, key, dstDir string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
	if rel == "" || strings.HasSuffix(rel, "/") {
		return ""
	}
	return filepath.Join(dstDir, filepath.FromSlash(rel))
}

// NewFetcher returns the fetcher handling the scheme of the location
func NewFetcher(ctx context.Context, loc Location, s3cfg S3Config) (Fetcher, error) {
	switch loc.Scheme {
	case "gs":
		return NewGCSFetcher(ctx)
	case "s3":
		return NewS3Fetcher(ctx, s3cfg)
	}
	return nil, fmt.Errorf("NewFetcher: unsupported scheme %s", loc.Scheme)
}
