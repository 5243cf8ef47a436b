package uploader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func imageHost(t *testing.T, status int, response string, got *[]byte) string {
	t.Helper()
	e := echo.New()
	e.HideBanner = true
	e.POST("/upload", func(c echo.Context) error {
		if c.Request().Header.Get("Authorization") != "Bearer token" {
			return c.String(http.StatusUnauthorized, "no token")
		}
		fh, err := c.FormFile("image")
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		f, err := fh.Open()
		if err != nil {
			return err
		}
		defer f.Close()
		b, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		*got = b
		return c.String(status, response)
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv.URL + "/upload"
}

func TestHTTPUpload(t *testing.T) {
	var got []byte
	endpoint := imageHost(t, http.StatusOK, `{"code":0,"data":{"url":"https://cdn.example/a.jpg"}}`, &got)

	u := NewHTTP(HTTPConfig{
		Endpoint: endpoint,
		Field:    "image",
		URLPath:  "data.url",
		Headers:  map[string]string{"Authorization": "Bearer token"},
	})

	url, err := u.Upload(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://cdn.example/a.jpg" {
		t.Fatalf("unexpected url %q", url)
	}
	if !bytes.Equal(got, []byte("jpeg-bytes")) {
		t.Fatalf("server got %q", got)
	}
}

func TestHTTPUploadMissingURL(t *testing.T) {
	var got []byte
	endpoint := imageHost(t, http.StatusOK, `{"code":0}`, &got)
	u := NewHTTP(HTTPConfig{Endpoint: endpoint, Field: "image", Headers: map[string]string{"Authorization": "Bearer token"}})

	if _, err := u.Upload(context.Background(), []byte("x")); !errors.Is(err, ErrNoURL) {
		t.Fatalf("expected ErrNoURL, got %v", err)
	}
}

func TestHTTPUploadStatus(t *testing.T) {
	var got []byte
	endpoint := imageHost(t, http.StatusForbidden, `{}`, &got)
	u := NewHTTP(HTTPConfig{Endpoint: endpoint, Field: "image", Headers: map[string]string{"Authorization": "Bearer token"}})

	if _, err := u.Upload(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected error")
	}
}

type countingUploader struct {
	calls int
}

func (c *countingUploader) Upload(context.Context, []byte) (string, error) {
	c.calls++
	return "https://cdn.example/b.jpg", nil
}

func TestCachedFallsThroughWhenRedisIsDown(t *testing.T) {
	rds := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rds.Close()

	next := &countingUploader{}
	c := NewCached(next, rds, time.Minute, zap.NewNop())

	url, err := c.Upload(context.Background(), []byte("artifact"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://cdn.example/b.jpg" || next.calls != 1 {
		t.Fatalf("expected a real upload, got url=%q calls=%d", url, next.calls)
	}
}

func TestCachedKeyIsMD5(t *testing.T) {
	c := NewCached(&countingUploader{}, nil, 0, nil)
	if got := c.key([]byte("hello")); got != "wxci:qrcode:5d41402abc4b2a76b9719d911017c592" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestCachedHitSkipsUpload(t *testing.T) {
	mr := miniredis.RunT(t)
	rds := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rds.Close()

	next := &countingUploader{}
	c := NewCached(next, rds, time.Hour, zap.NewNop())
	ctx := context.Background()

	// miss: real upload, url stored under the md5 key with the ttl
	url, err := c.Upload(ctx, []byte("artifact"))
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	key := c.key([]byte("artifact"))
	if got, err := mr.Get(key); err != nil || got != url {
		t.Fatalf("expected %q cached under %s, got %q (%v)", url, key, got, err)
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}

	// hit: same bytes, no second upload
	again, err := c.Upload(ctx, []byte("artifact"))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if again != url || next.calls != 1 {
		t.Fatalf("expected cache hit, got url=%q calls=%d", again, next.calls)
	}

	// different bytes miss again
	if _, err := c.Upload(ctx, []byte("other artifact")); err != nil {
		t.Fatalf("third upload: %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("expected a second real upload, got %d", next.calls)
	}
}

func TestCachedReturnsStoredURL(t *testing.T) {
	mr := miniredis.RunT(t)
	rds := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rds.Close()

	next := &countingUploader{}
	c := NewCached(next, rds, time.Hour, zap.NewNop())
	if err := mr.Set(c.key([]byte("artifact")), "https://cdn.example/cached.jpg"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	url, err := c.Upload(context.Background(), []byte("artifact"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://cdn.example/cached.jpg" || next.calls != 0 {
		t.Fatalf("expected stored url without upload, got url=%q calls=%d", url, next.calls)
	}
}
