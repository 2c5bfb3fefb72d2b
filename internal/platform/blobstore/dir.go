package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirStore keeps each bucket as a directory under root. Content type is
// derived from the key's extension on read.
type DirStore struct {
	root string
}

func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) path(bucket, key string) string {
	return filepath.Join(s.root, bucket, filepath.FromSlash(key))
}

func (s *DirStore) Put(_ context.Context, bucket, key, contentType string, content io.Reader) (*Object, error) {
	if err := ValidateKey(bucket, key); err != nil {
		return nil, err
	}
	data, hash, err := readLimited(content)
	if err != nil {
		return nil, err
	}

	p := s.path(bucket, key)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return nil, fmt.Errorf("create bucket dir: %w", err)
	}

	// write then rename so readers never see a partial object
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("commit object: %w", err)
	}

	obj, err := s.Stat(context.Background(), bucket, key)
	if err != nil {
		return nil, err
	}
	obj.Hash = hash
	if contentType != "" {
		obj.ContentType = contentType
	}
	return obj, nil
}

func (s *DirStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, *Object, error) {
	obj, err := s.Stat(ctx, bucket, key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.path(bucket, key))
	if err != nil {
		return nil, nil, fmt.Errorf("open object: %w", err)
	}
	return f, obj, nil
}

func (s *DirStore) Stat(_ context.Context, bucket, key string) (*Object, error) {
	if err := ValidateKey(bucket, key); err != nil {
		return nil, err
	}
	fi, err := os.Stat(s.path(bucket, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat object: %w", err)
	}
	if fi.IsDir() {
		return nil, ErrNotFound
	}
	return &Object{
		Bucket:      bucket,
		Key:         key,
		ContentType: contentTypeFor(key),
		Size:        fi.Size(),
		CreatedAt:   fi.ModTime().UTC(),
	}, nil
}

func (s *DirStore) Delete(_ context.Context, bucket, key string) error {
	if err := ValidateKey(bucket, key); err != nil {
		return err
	}
	err := os.Remove(s.path(bucket, key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func (s *DirStore) List(ctx context.Context, bucket, prefix string) ([]*Object, error) {
	dir := filepath.Join(s.root, bucket)
	var out []*Object
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		obj, err := s.Stat(ctx, bucket, key)
		if err != nil {
			return err
		}
		out = append(out, obj)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list bucket %s: %w", bucket, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func contentTypeFor(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
