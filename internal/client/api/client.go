// Package api is the HTTP client for the hibana server. Downloads are
// decrypted locally: the key material never leaves the process, and the
// URL fragment that carries it is stripped before any request is sent.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hibana-share/hibana/internal/common"
	"github.com/hibana-share/hibana/internal/cryptox"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// UploadResult mirrors the server's upload response.
type UploadResult struct {
	FileID       string     `json:"file_id"`
	DownloadURL  string     `json:"download_url"`
	Fragment     string     `json:"fragment"`
	ExpiresAt    *time.Time `json:"expires_at"`
	MaxDownloads *int32     `json:"max_downloads"`
}

// FileInfo mirrors the server's info response.
type FileInfo struct {
	FileID             string     `json:"file_id"`
	SizeBytes          int64      `json:"size_bytes"`
	EncryptedSize      int64      `json:"encrypted_size"`
	ContentType        string     `json:"content_type"`
	OriginalFilename   string     `json:"original_filename"`
	CreatedAt          time.Time  `json:"created_at"`
	ExpiresAt          *time.Time `json:"expires_at"`
	MaxDownloads       *int32     `json:"max_downloads"`
	DownloadsRemaining *int32     `json:"downloads_remaining"`
	Status             string     `json:"status"`
}

// Upload sends the file at path. expiresIn and maxDownloads are optional
// (zero = server default, i.e. no bound).
func (c *Client) Upload(ctx context.Context, path string, expiresIn time.Duration, maxDownloads int32) (*UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	endpoint, err := url.Parse(c.baseURL + "/api/upload")
	if err != nil {
		return nil, err
	}
	q := endpoint.Query()
	if expiresIn > 0 {
		hours := int64(expiresIn.Hours())
		if hours < 1 {
			hours = 1
		}
		q.Set("expires_in_hours", strconv.FormatInt(hours, 10))
	}
	if maxDownloads > 0 {
		q.Set("max_downloads", strconv.FormatInt(int64(maxDownloads), 10))
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, responseError(resp)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &result, nil
}

// Download fetches and decrypts a shared file. shareURL must carry the key
// material in its fragment. Returns the server-reported filename and the
// plaintext.
func (c *Client) Download(ctx context.Context, shareURL string) (string, []byte, error) {
	endpoint, fragment, err := splitShareURL(shareURL)
	if err != nil {
		return "", nil, err
	}

	key, nonce, err := cryptox.DecodeKeyMaterial(fragment)
	if err != nil {
		return "", nil, err
	}
	defer cryptox.Zero(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, responseError(resp)
	}

	ciphertext, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, err
	}

	plaintext, err := cryptox.Decrypt(ciphertext, key, nonce)
	if err != nil {
		return "", nil, err
	}

	return resp.Header.Get("X-Filename"), plaintext, nil
}

// Info fetches metadata without consuming a download unit. The fragment, if
// present, is discarded unused.
func (c *Client) Info(ctx context.Context, shareURL string) (*FileInfo, error) {
	endpoint, _, err := splitShareURL(shareURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/info", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var info FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode info response: %w", err)
	}
	return &info, nil
}

// splitShareURL separates the request URL from the key fragment. The
// request URL keeps no trace of the fragment.
func splitShareURL(shareURL string) (endpoint, fragment string, err error) {
	u, err := url.Parse(shareURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: bad share url", common.ErrValidation)
	}
	fragment = u.Fragment
	u.Fragment = ""
	return u.String(), fragment, nil
}

func responseError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("server: %s (status %d)", body.Error, resp.StatusCode)
	}
	return fmt.Errorf("server: status %d", resp.StatusCode)
}
