package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
)

// IndexPath is the repository index, relative to the repository URL.
const IndexPath = "repodata/repomd.xml"

// HTTPDownloader probes and fetches rpm-md repositories over HTTP. The
// reference of a repository is the sha256 of its index.
type HTTPDownloader struct {
	options Options
	client  *resty.Client
}

// NewHTTPDownloader creates a new HTTPDownloader with the given options.
// Transport errors, 429 and 5xx responses are retried.
func NewHTTPDownloader(opts Options) *HTTPDownloader {
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryAttempts).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
		})
	if opts.RetryDelay > 0 {
		client.SetRetryWaitTime(opts.RetryDelay).SetRetryMaxWaitTime(opts.RetryDelay)
	}
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}

	return &HTTPDownloader{options: opts, client: client}
}

// Type returns the downloader type.
func (h *HTTPDownloader) Type() string {
	return "http"
}

// Probe downloads the repository index and returns its hash.
func (h *HTTPDownloader) Probe(ctx context.Context, source string) (string, error) {
	body, err := h.get(ctx, indexURL(source))
	if err != nil {
		return "", err
	}
	return digest(body), nil
}

// Fetch stores the repository index under destination. Nothing is written
// when the download fails.
func (h *HTTPDownloader) Fetch(ctx context.Context, source, destination string) (string, error) {
	body, err := h.get(ctx, indexURL(source))
	if err != nil {
		return "", err
	}

	target := filepath.Join(destination, filepath.FromSlash(IndexPath))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(target, body, 0644); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return digest(body), nil
}

func (h *HTTPDownloader) get(ctx context.Context, source string) ([]byte, error) {
	resp, err := h.client.R().SetContext(ctx).Get(source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("download failed after %d attempts: %w", attempts(resp, h.options.RetryAttempts), err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("download failed after %d attempts: HTTP %s", attempts(resp, h.options.RetryAttempts), resp.Status())
	}
	return resp.Body(), nil
}

func attempts(resp *resty.Response, retries int) int {
	if resp != nil && resp.Request != nil && resp.Request.Attempt > 0 {
		return resp.Request.Attempt
	}
	return retries + 1
}

func digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func indexURL(source string) string {
	return strings.TrimSuffix(source, "/") + "/" + IndexPath
}
