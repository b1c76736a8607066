package mediasvc

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolsite/core/content"
)

// LocalStorage writes files under dir; they are served under baseURL by the API server.
type LocalStorage struct {
	dir     string
	baseURL string
}

var _ content.Media = (*LocalStorage)(nil)

func NewLocalStorage(dir, baseURL string) (*LocalStorage, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(err, "resolving media dir")
	}
	if err = os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating media dir")
	}
	return &LocalStorage{dir: abs, baseURL: baseURL}, nil
}

func (s *LocalStorage) Dir() string { return s.dir }

func (s *LocalStorage) Save(ctx context.Context, prefix, filename string, r io.Reader) (string, error) {
	key := newKey(prefix, filename)
	fp := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return "", errors.Wrap(err, "creating media dir")
	}

	tmp, err := os.CreateTemp(filepath.Dir(fp), ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, "creating temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err = io.Copy(tmp, ctxReader{ctx: ctx, r: r}); err != nil {
		_ = tmp.Close()
		return "", errors.Wrap(err, "writing upload")
	}
	if err = tmp.Close(); err != nil {
		return "", errors.Wrap(err, "closing upload")
	}
	if err = os.Rename(tmp.Name(), fp); err != nil {
		return "", errors.Wrap(err, "moving upload")
	}
	return key, nil
}

func (s *LocalStorage) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(key)))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing media")
	}
	return nil
}

func (s *LocalStorage) URL(key string) string { return joinURL(s.baseURL, key) }

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
