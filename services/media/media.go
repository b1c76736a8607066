// Package mediasvc stores uploaded images on the local disk or in an S3 bucket.
package mediasvc

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsite/core"
	"github.com/trezcool/schoolsite/core/content"
)

var errInvalidKey = errors.New("invalid media key")

// New returns the storage selected by conf.Media.Backend.
func New(ctx context.Context, conf *core.Config) (content.Media, error) {
	switch conf.Media.Backend {
	case "", "local":
		return NewLocalStorage(conf.Media.Dir, conf.Media.BaseURL)
	case "s3":
		return NewS3Storage(ctx, conf)
	}
	return nil, errors.Errorf("unknown media backend %q", conf.Media.Backend)
}

// newKey names a new object under prefix, keeping the lowered extension of filename.
func newKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	return path.Join(cleanPrefix(prefix), uuid.NewString()+ext)
}

func cleanPrefix(prefix string) string {
	prefix = strings.Trim(path.Clean("/"+prefix), "/")
	if prefix == "" || prefix == "." {
		return "misc"
	}
	return prefix
}

// checkKey rejects keys escaping the storage root.
func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return errInvalidKey
	}
	if cleaned := path.Clean(key); cleaned != key || strings.HasPrefix(cleaned, "..") {
		return errInvalidKey
	}
	return nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
