package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	dir, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"dir":    dir,
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			obj, err := s.Put(ctx, BucketTestImages, "test-images/t1-1700000000.png", "image/png", strings.NewReader("png-bytes"))
			require.NoError(t, err)
			assert.Equal(t, int64(9), obj.Size)
			assert.Equal(t, "image/png", obj.ContentType)
			assert.Len(t, obj.Hash, 64)

			rc, meta, err := s.Get(ctx, BucketTestImages, "test-images/t1-1700000000.png")
			require.NoError(t, err)
			data, _ := io.ReadAll(rc)
			rc.Close()
			assert.Equal(t, "png-bytes", string(data))
			assert.Equal(t, "image/png", meta.ContentType)

			require.NoError(t, s.Delete(ctx, BucketTestImages, "test-images/t1-1700000000.png"))
			_, err = s.Stat(ctx, BucketTestImages, "test-images/t1-1700000000.png")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, BucketTestImages, "test-images/t1-1700000000.png"), ErrNotFound)
		})
	}
}

func TestStore_List(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []string{"blood-samples/b.jpg", "blood-samples/a.jpg", "other/c.jpg"} {
				_, err := s.Put(ctx, BucketSampleImages, k, "image/jpeg", strings.NewReader("x"))
				require.NoError(t, err)
			}

			objs, err := s.List(ctx, BucketSampleImages, "blood-samples/")
			require.NoError(t, err)
			require.Len(t, objs, 2)
			assert.Equal(t, "blood-samples/a.jpg", objs[0].Key)

			empty, err := s.List(ctx, "nothing-here", "")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestStore_RejectsBadInput(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, key := range []string{"", "/abs.png", "../escape.png", "a/../../b.png", `a\b.png`} {
				_, err := s.Put(ctx, BucketReports, key, "application/pdf", strings.NewReader("x"))
				assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
			}
			_, err := s.Put(ctx, "../etc", "x.pdf", "application/pdf", strings.NewReader("x"))
			assert.ErrorIs(t, err, ErrInvalidKey)

			_, err = s.Put(ctx, BucketReports, "empty.pdf", "application/pdf", strings.NewReader(""))
			assert.ErrorIs(t, err, ErrEmptyObject)
		})
	}
}

func TestMemoryStore_TooLarge(t *testing.T) {
	s := NewMemoryStore()
	big := bytes.NewReader(make([]byte, MaxObjectSize+1))
	_, err := s.Put(context.Background(), BucketReports, "big.pdf", "application/pdf", big)
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestMemoryStore_ConcurrentPuts(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Put(context.Background(), BucketReports, fmt.Sprintf("r-%d.pdf", i), "application/pdf", strings.NewReader("x"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	objs, err := s.List(context.Background(), BucketReports, "")
	require.NoError(t, err)
	assert.Len(t, objs, 50)
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080/storage/reports/p1-d1-1.pdf",
		PublicURL("http://localhost:8080/", BucketReports, "p1-d1-1.pdf"))
}

func TestTimestampedKey(t *testing.T) {
	at := time.UnixMilli(1709301900000)
	assert.Equal(t, "test-images/t1-1709301900000.png", TimestampedKey("test-images", "t1", "Slide.PNG", at))
	assert.Equal(t, "p1-d1-1709301900000.bin", TimestampedKey("", "p1-d1", "noext", at))
	require.NoError(t, ValidateKey(BucketTestImages, TimestampedKey("test-images", "t1", "a.jpg", at)))
}

func TestHandler_ServesObject(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Put(context.Background(), BucketReports, "p1-d1-1.pdf", "application/pdf", strings.NewReader("%PDF-1.3"))
	require.NoError(t, err)

	e := echo.New()
	NewHandler(s).RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/storage/reports/p1-d1-1.pdf", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "%PDF-1.3", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/storage/reports/missing.pdf", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
