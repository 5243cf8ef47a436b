package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var ErrNoURL = errors.New("upload response has no url")

// HTTPConfig describes a plain multipart image host.
type HTTPConfig struct {
	Endpoint string
	Field    string            // form field name, default "file"
	FileName string            // default "qrcode.jpg"
	URLPath  string            // gjson path of the url in the response, default "url"
	Headers  map[string]string // e.g. Authorization
	Timeout  time.Duration
}

// HTTP uploads the artifact as multipart/form-data and reads the hosted url
// from the JSON response.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.Field == "" {
		cfg.Field = "file"
	}
	if cfg.FileName == "" {
		cfg.FileName = "qrcode.jpg"
	}
	if cfg.URLPath == "" {
		cfg.URLPath = "url"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTP{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (u *HTTP) Upload(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(u.cfg.Field, u.cfg.FileName)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.Endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range u.cfg.Headers {
		req.Header.Set(k, v)
	}

	res, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload qr code: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if res.StatusCode/100 != 2 {
		return "", fmt.Errorf("upload endpoint=%s status=%d", u.cfg.Endpoint, res.StatusCode)
	}

	url := strings.TrimSpace(gjson.GetBytes(raw, u.cfg.URLPath).String())
	if url == "" {
		return "", fmt.Errorf("%w at path %q", ErrNoURL, u.cfg.URLPath)
	}
	return url, nil
}
