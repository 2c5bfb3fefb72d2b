// Package blobstore stores sample images and report files in named buckets
// and serves them back under stable public URLs.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound    = errors.New("object not found")
	ErrTooLarge    = errors.New("object exceeds maximum allowed size")
	ErrInvalidKey  = errors.New("invalid object key")
	ErrEmptyObject = errors.New("object is empty")
)

const (
	BucketTestImages   = "malaria-tests"
	BucketSampleImages = "malaria-images"
	BucketReports      = "reports"
)

// MaxObjectSize bounds a single upload (50 MB).
const MaxObjectSize = 50 * 1024 * 1024

type Object struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store interface {
	Put(ctx context.Context, bucket, key, contentType string, content io.Reader) (*Object, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, *Object, error)
	Stat(ctx context.Context, bucket, key string) (*Object, error)
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket, prefix string) ([]*Object, error)
}

// ValidateKey rejects keys that would escape their bucket.
func ValidateKey(bucket, key string) error {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return fmt.Errorf("%w: bucket %q", ErrInvalidKey, bucket)
	}
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// PublicURL is where the storage handler serves bucket/key.
func PublicURL(baseURL, bucket, key string) string {
	return strings.TrimRight(baseURL, "/") + "/storage/" + bucket + "/" + key
}

// readLimited reads content fully, enforcing MaxObjectSize, and returns the
// data with its SHA-256.
func readLimited(content io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxObjectSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxObjectSize {
		return nil, "", ErrTooLarge
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyObject
	}
	return data, fmt.Sprintf("%x", sha256.Sum256(data)), nil
}

type memObject struct {
	meta Object
	data []byte
}

// MemoryStore keeps objects in process memory. Used in tests and by the
// detect command.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*memObject)}
}

func memKey(bucket, key string) string { return bucket + "/" + key }

func (s *MemoryStore) Put(_ context.Context, bucket, key, contentType string, content io.Reader) (*Object, error) {
	if err := ValidateKey(bucket, key); err != nil {
		return nil, err
	}
	data, hash, err := readLimited(content)
	if err != nil {
		return nil, err
	}

	meta := Object{
		Bucket:      bucket,
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        hash,
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.objects[memKey(bucket, key)] = &memObject{meta: meta, data: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, *Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[memKey(bucket, key)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	meta := obj.meta
	return io.NopCloser(bytes.NewReader(obj.data)), &meta, nil
}

func (s *MemoryStore) Stat(_ context.Context, bucket, key string) (*Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[memKey(bucket, key)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	meta := obj.meta
	return &meta, nil
}

func (s *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memKey(bucket, key)
	if _, ok := s.objects[k]; !ok {
		return ErrNotFound
	}
	delete(s.objects, k)
	return nil
}

func (s *MemoryStore) List(_ context.Context, bucket, prefix string) ([]*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Object
	for _, obj := range s.objects {
		if obj.meta.Bucket != bucket || !strings.HasPrefix(obj.meta.Key, prefix) {
			continue
		}
		m := obj.meta
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// TimestampedKey builds "<dir>/<stem>-<unix ms>.<ext>", taking ext from
// fileName. dir may be empty.
func TimestampedKey(dir, stem, fileName string, at time.Time) string {
	ext := strings.TrimPrefix(path.Ext(fileName), ".")
	if ext == "" {
		ext = "bin"
	}
	key := fmt.Sprintf("%s-%d.%s", stem, at.UnixMilli(), strings.ToLower(ext))
	if dir != "" {
		key = dir + "/" + key
	}
	return key
}
