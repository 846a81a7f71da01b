package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"parent-bridge/api/internal/util"
)

const DefaultBucket = "reports"

var (
	ErrNotFound = errors.New("object not found")
	ErrExists   = errors.New("object already exists")
)

// StoreError wraps a failed storage operation.
type StoreError struct {
	Op     string
	Bucket string
	Name   string
	Err    error
}

func (e *StoreError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("store %s %s/%s: %v", e.Op, e.Bucket, e.Name, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Object is one listing entry.
type Object struct {
	Name string `json:"name"`
}

// StoredImage is an uploaded image and its derived public URL.
type StoredImage struct {
	Name      string `json:"name"`
	PublicURL string `json:"publicUrl"`
}

// Store is the object storage the images live in. An empty bucket means DefaultBucket.
type Store interface {
	Upload(ctx context.Context, data []byte, name, contentType, bucket string) (StoredImage, error)
	// List returns visible image objects sorted by name.
	List(ctx context.Context, bucket string) ([]Object, error)
	Delete(ctx context.Context, name, bucket string) (bool, error)
	Download(ctx context.Context, name, bucket string) ([]byte, string, error)
	PublicURL(name, bucket string) string
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// IsVisibleImage reports whether a listing entry should be shown: not hidden
// and carrying one of the image extensions.
func IsVisibleImage(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return imageExts[strings.ToLower(path.Ext(name))]
}

// FilterImages drops hidden and non-image names and sorts the rest ascending.
func FilterImages(names []string) []Object {
	out := make([]Object, 0, len(names))
	for _, n := range names {
		if IsVisibleImage(n) {
			out = append(out, Object{Name: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PublicURL builds base/bucket/name without touching the network.
func PublicURL(base, bucket, name string) string {
	return strings.TrimRight(base, "/") + "/" + BucketOrDefault(bucket) + "/" + url.PathEscape(name)
}

func BucketOrDefault(bucket string) string {
	if b := strings.TrimSpace(bucket); b != "" {
		return b
	}
	return DefaultBucket
}

// NewImageName follows the assignment-<timestamp>.<ext> convention.
func NewImageName(t time.Time, mime string) string {
	return "assignment-" + t.UTC().Format("2006-01-02-15-04-05") + "." + util.ExtForMIME(mime)
}

// ValidName rejects names that would escape the bucket or hide the object.
func ValidName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("name is required")
	case strings.HasPrefix(name, "."):
		return errors.New("name must not start with '.'")
	case strings.ContainsAny(name, `/\`) || strings.Contains(name, ".."):
		return errors.New("name must be a plain file name")
	}
	return nil
}
