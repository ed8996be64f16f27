package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/octa-computer/transfer-manager/internal/constants"
)

// PartETag is the per-part receipt returned by the R2 worker. The full set,
// sorted by part number, is required to complete a multipart upload.
type PartETag struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

// R2Client talks to the R2 worker, the HTTP front for the render-farm
// object storage. Control-plane calls (create/complete/abort/delete) go
// through bounded-retry clients; data-plane calls (part upload, single
// upload, object get) are single-attempt and rely on the worker loop for
// retry, because a transport-level replay would double-count progress.
type R2Client struct {
	endpoint string
	control  *http.Client
	complete *http.Client
	data     *http.Client
	log      zerolog.Logger
}

// NewR2Client creates a client for the given worker endpoint.
func NewR2Client(endpoint string, log zerolog.Logger) *R2Client {
	log = log.With().Str("component", "r2").Logger()
	return &R2Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		control:  newControlClient(constants.ControlRetryMax, log),
		complete: newControlClient(constants.CompleteRetryMax, log),
		data:     newDataClient(),
		log:      log,
	}
}

// Endpoint returns the worker base URL.
func (c *R2Client) Endpoint() string {
	return c.endpoint
}

// ObjectURL returns the absolute URL for an object key.
func (c *R2Client) ObjectURL(key string) string {
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	return c.endpoint + key
}

func (c *R2Client) newRequest(ctx context.Context, ud UserData, method, rawURL string, query url.Values, body io.Reader) (*http.Request, error) {
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("authentication", ud.APIToken)
	return req, nil
}

// do runs the request and enforces a 2xx response, draining the body into
// the error on failure.
func (c *R2Client) do(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return resp, nil
}

// CreateMultipartUpload starts a multipart upload for key and returns the
// uploadId handle.
func (c *R2Client) CreateMultipartUpload(ctx context.Context, ud UserData, key string) (string, error) {
	req, err := c.newRequest(ctx, ud, http.MethodPost, c.ObjectURL(key), url.Values{
		"action": {"mpu-create"},
	}, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.do(c.control, req)
	if err != nil {
		return "", fmt.Errorf("mpu-create for %s failed: %w", key, err)
	}
	defer resp.Body.Close()

	var info struct {
		UploadID string `json:"uploadId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("mpu-create for %s returned bad body: %w", key, err)
	}
	if info.UploadID == "" {
		return "", fmt.Errorf("mpu-create for %s returned no uploadId", key)
	}
	return info.UploadID, nil
}

// CompleteMultipartUpload finishes a multipart upload. Parts may arrive in
// any order from the workers; the worker endpoint wants them ascending by
// part number, so they are sorted here.
func (c *R2Client) CompleteMultipartUpload(ctx context.Context, ud UserData, key, uploadID string, parts []PartETag) error {
	sorted := make([]PartETag, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PartNumber < sorted[j].PartNumber
	})

	payload, err := json.Marshal(map[string][]PartETag{"parts": sorted})
	if err != nil {
		return fmt.Errorf("failed to marshal parts: %w", err)
	}

	req, err := c.newRequest(ctx, ud, http.MethodPost, c.ObjectURL(key), url.Values{
		"action":   {"mpu-complete"},
		"uploadId": {uploadID},
	}, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(c.complete, req)
	if err != nil {
		return fmt.Errorf("mpu-complete for %s failed: %w", key, err)
	}
	resp.Body.Close()
	return nil
}

// AbortMultipartUpload discards a multipart upload and its parts.
func (c *R2Client) AbortMultipartUpload(ctx context.Context, ud UserData, key, uploadID string) error {
	req, err := c.newRequest(ctx, ud, http.MethodDelete, c.ObjectURL(key), url.Values{
		"action":   {"mpu-abort"},
		"uploadId": {uploadID},
	}, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(c.control, req)
	if err != nil {
		return fmt.Errorf("mpu-abort for %s failed: %w", key, err)
	}
	resp.Body.Close()
	return nil
}

// UploadPart streams one part body. size must match the number of bytes
// the reader will produce; it becomes the Content-Length.
func (c *R2Client) UploadPart(ctx context.Context, ud UserData, key, uploadID string, partNumber int, body io.Reader, size int64) (PartETag, error) {
	req, err := c.newRequest(ctx, ud, http.MethodPut, c.ObjectURL(key), url.Values{
		"action":     {"mpu-uploadpart"},
		"uploadId":   {uploadID},
		"partNumber": {strconv.Itoa(partNumber)},
	}, body)
	if err != nil {
		return PartETag{}, err
	}
	req.ContentLength = size

	resp, err := c.do(c.data, req)
	if err != nil {
		return PartETag{}, fmt.Errorf("part %d upload for %s failed: %w", partNumber, key, err)
	}
	defer resp.Body.Close()

	var part PartETag
	if err := json.NewDecoder(resp.Body).Decode(&part); err != nil {
		return PartETag{}, fmt.Errorf("part %d upload for %s returned bad body: %w", partNumber, key, err)
	}
	return part, nil
}

// UploadSingle streams a whole object in one shot, for archives below the
// multipart threshold.
func (c *R2Client) UploadSingle(ctx context.Context, ud UserData, key string, body io.Reader, size int64) error {
	req, err := c.newRequest(ctx, ud, http.MethodPut, c.ObjectURL(key), url.Values{
		"action": {"single-upload"},
	}, body)
	if err != nil {
		return err
	}
	req.ContentLength = size

	resp, err := c.do(c.data, req)
	if err != nil {
		return fmt.Errorf("single upload for %s failed: %w", key, err)
	}
	resp.Body.Close()
	return nil
}

// Get streams an object. The caller owns the response body. rawURL is the
// absolute object URL (download work orders carry it precomputed).
func (c *R2Client) Get(ctx context.Context, ud UserData, rawURL string) (*http.Response, error) {
	req, err := c.newRequest(ctx, ud, http.MethodGet, rawURL, url.Values{
		"action": {"get"},
	}, nil)
	if err != nil {
		return nil, err
	}
	return c.do(c.data, req)
}

// DeleteObject removes an object.
func (c *R2Client) DeleteObject(ctx context.Context, ud UserData, key string) error {
	req, err := c.newRequest(ctx, ud, http.MethodDelete, c.ObjectURL(key), url.Values{
		"action": {"delete"},
	}, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(c.control, req)
	if err != nil {
		return fmt.Errorf("delete of %s failed: %w", key, err)
	}
	resp.Body.Close()
	return nil
}
