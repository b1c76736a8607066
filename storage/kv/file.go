package kv

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileStore keeps every key in one JSON document. The document is read on every
// access so that writes from other processes are seen, and replaced atomically
// on every write. A corrupt document is replaced on the next write.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "creating store directory")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading store")
	}
	doc := map[string]string{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err = json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", s.path)
	}
	return doc, nil
}

func (s *FileStore) write(doc map[string]string) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding store")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".kv-*")
	if err != nil {
		return errors.Wrap(err, "writing store")
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "writing store")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "writing store")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "writing store")
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	v, ok := doc[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(v), nil
}

func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	return s.update(ctx, func(doc map[string]string) { doc[key] = string(value) })
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	return s.update(ctx, func(doc map[string]string) { delete(doc, key) })
}

func (s *FileStore) update(ctx context.Context, fn func(map[string]string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &syntaxErr) && !errors.As(err, &typeErr) {
			return err
		}
		doc = map[string]string{}
	}
	fn(doc)
	return s.write(doc)
}
