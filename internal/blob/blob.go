// Package blob provides object storage for datasets, model artifacts, and
// prediction outputs. Objects live on the local filesystem under a single
// root directory, keyed by slash-separated object keys, with signed URL
// tokens for direct upload and download.
package blob

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Store is a filesystem-backed object store. Object keys use forward
// slashes and map directly onto paths below the root directory.
type Store struct {
	root   string
	bucket string
}

// NewStore creates a blob store rooted at dir. The bucket name is
// advertised in API responses so clients can echo it back on registration.
func NewStore(dir, bucket string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: dir, bucket: bucket}, nil
}

// Bucket returns the advertised bucket name.
func (s *Store) Bucket() string {
	return s.bucket
}

// resolve maps an object key onto a filesystem path below the root.
// Keys that escape the root after cleaning are rejected.
func (s *Store) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("empty object key")
	}
	full := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	if !strings.HasPrefix(full, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("object key %q escapes store root", key)
	}
	return full, nil
}

// Put writes the object under key, replacing any existing object.
// The write goes through a temp file and rename so readers never observe
// a partially written object.
func (s *Store) Put(key string, r io.Reader) (int64, error) {
	full, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return 0, fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write object %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return 0, fmt.Errorf("finalize object %q: %w", key, err)
	}
	return n, nil
}

// Open returns a reader over the object stored under key.
// The caller owns the returned ReadCloser.
func (s *Store) Open(key string) (io.ReadCloser, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open object %q: %w", key, err)
	}
	return f, nil
}

// Path returns the filesystem path that backs key, creating parent
// directories so the caller can hand the path to tools that write in
// place (such as the warehouse CSV reader).
func (s *Store) Path(key string) (string, error) {
	full, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}
	return full, nil
}

// Exists reports whether an object is stored under key.
func (s *Store) Exists(key string) bool {
	full, err := s.resolve(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && !info.IsDir()
}

// Delete removes the object stored under key. Deleting a missing object
// is not an error.
func (s *Store) Delete(key string) error {
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

// List returns all object keys under the given prefix, sorted.
func (s *Store) List(prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
