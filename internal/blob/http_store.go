package blob

import (
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

// HTTPStore talks to a Cloudinary-style media host: multipart upload into a
// folder, fetch by the returned URL, destroy by public id.
type HTTPStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPStore(baseURL, apiKey string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
}

func (s *HTTPStore) Upload(ctx context.Context, localPath, folder string) (string, error) {
	f, err := os.Open(localPath)

	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}

	defer f.Close()

	var body strings.Builder
	w := multipart.NewWriter(&body)

	if err := w.WriteField("folder", folder); err != nil {
		return "", err
	}

	part, err := w.CreateFormFile("file", filepath.Base(localPath))

	if err != nil {
		return "", err
	}

	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}

	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/upload", strings.NewReader(body.String()))

	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", w.FormDataContentType())
	s.authorize(req)

	resp, err := s.client.Do(req)

	if err != nil {
		return "", fmt.Errorf("blob upload: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("blob upload: unexpected status %d", resp.StatusCode)
	}

	var out uploadResponse

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("blob upload: decode response: %w", err)
	}

	if out.SecureURL == "" {
		return "", fmt.Errorf("blob upload: empty ref in response")
	}

	return out.SecureURL, nil
}

func (s *HTTPStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)

	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)

	if err != nil {
		return nil, fmt.Errorf("blob fetch: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blob fetch: unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (s *HTTPStore) Delete(ctx context.Context, ref string) error {
	body := strings.NewReader("public_id=" + PublicID(ref))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/destroy", body)

	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.authorize(req)

	resp, err := s.client.Do(req)

	if err != nil {
		return fmt.Errorf("blob delete: %w", err)
	}

	defer resp.Body.Close()

	// a blob that is already gone counts as deleted
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound {
		return nil
	}

	return fmt.Errorf("blob delete: unexpected status %d", resp.StatusCode)
}

func (s *HTTPStore) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

// PublicID derives the host-side id from a blob URL: last folder plus
// filename, extension stripped.
func PublicID(ref string) string {
	parts := strings.Split(ref, "/")

	if len(parts) >= 2 {
		parts = parts[len(parts)-2:]
	}

	id := strings.Join(parts, "/")

	if dot := strings.LastIndex(id, "."); dot > strings.LastIndex(id, "/") {
		id = id[:dot]
	}

	return id
}
