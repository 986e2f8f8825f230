package face

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HTTPClient fronts a face-recognition sidecar over plain HTTP: multipart
// probe/reference pairs in, verified flag and distance out.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type compareResponse struct {
	Verified bool    `json:"verified"`
	Distance float64 `json:"distance"`
	Error    string  `json:"error"`
}

type detectResponse struct {
	HasFace bool   `json:"has_face"`
	Error   string `json:"error"`
}

func (c *HTTPClient) Compare(ctx context.Context, probePath string, reference []byte) (Result, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := attachFile(w, "probe", probePath); err != nil {
		return Result{}, err
	}

	part, err := w.CreateFormFile("reference", "reference.jpg")

	if err != nil {
		return Result{}, err
	}

	if _, err := part.Write(reference); err != nil {
		return Result{}, err
	}

	if err := w.Close(); err != nil {
		return Result{}, err
	}

	var out compareResponse

	if err := c.post(ctx, "/verify", w.FormDataContentType(), &body, &out); err != nil {
		return Result{}, err
	}

	if out.Error == "no_face" {
		return Result{}, ErrNoFace
	}

	if out.Error != "" {
		return Result{}, fmt.Errorf("comparator: %s", out.Error)
	}

	return Result{Verified: out.Verified, Distance: out.Distance}, nil
}

func (c *HTTPClient) Detect(ctx context.Context, probePath string) (bool, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := attachFile(w, "probe", probePath); err != nil {
		return false, err
	}

	if err := w.Close(); err != nil {
		return false, err
	}

	var out detectResponse

	if err := c.post(ctx, "/detect", w.FormDataContentType(), &body, &out); err != nil {
		return false, err
	}

	if out.Error != "" {
		return false, fmt.Errorf("comparator: %s", out.Error)
	}

	return out.HasFace, nil
}

func (c *HTTPClient) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)

	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)

	if err != nil {
		return fmt.Errorf("comparator call: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("comparator: unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func attachFile(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)

	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	defer f.Close()

	part, err := w.CreateFormFile(field, filepath.Base(path))

	if err != nil {
		return err
	}

	_, err = io.Copy(part, f)
	return err
}
