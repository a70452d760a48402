package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"

	"reel/internal/faults"
)

const (
	defaultArchiveTimeout   = 30 * time.Second
	defaultArchiveAttempts  = 4
	defaultRetryBaseDelay   = 500 * time.Millisecond
	defaultRetryMaxDelay    = 10 * time.Second
	maxMetadataPayloadBytes = 16 << 20
)

// Archive resolves downloadable files through the archive metadata API.
type Archive struct {
	baseURL     string
	extensions  []string
	maxItemSize int64
	httpClient  *http.Client
	// streamClient has no overall timeout; downloads are bounded by the caller's context.
	streamClient *http.Client
	attempts     int
	baseDelay    time.Duration
	maxDelay     time.Duration
}

// ArchiveOption configures an Archive.
type ArchiveOption func(*Archive)

// WithHTTPClient overrides the client used for metadata requests and downloads.
func WithHTTPClient(client *http.Client) ArchiveOption {
	return func(a *Archive) {
		if client != nil {
			a.httpClient = client
			a.streamClient = client
		}
	}
}

// WithRequestTimeout bounds each metadata request.
func WithRequestTimeout(timeout time.Duration) ArchiveOption {
	return func(a *Archive) {
		if timeout > 0 {
			a.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithRetry overrides the attempt count and backoff bounds.
func WithRetry(attempts int, baseDelay, maxDelay time.Duration) ArchiveOption {
	return func(a *Archive) {
		if attempts > 0 {
			a.attempts = attempts
		}
		if baseDelay >= 0 {
			a.baseDelay = baseDelay
		}
		if maxDelay > 0 {
			a.maxDelay = maxDelay
		}
	}
}

// NewArchive builds a resolver for baseURL. Only files whose name ends in one
// of extensions and whose size does not exceed maxItemSize are eligible.
func NewArchive(baseURL string, extensions []string, maxItemSize int64, opts ...ArchiveOption) (*Archive, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("archive base url required")
	}
	if len(extensions) == 0 {
		extensions = []string{".mp4"}
	}
	a := &Archive{
		baseURL:      baseURL,
		extensions:   extensions,
		maxItemSize:  maxItemSize,
		httpClient:   &http.Client{Timeout: defaultArchiveTimeout},
		streamClient: &http.Client{},
		attempts:     defaultArchiveAttempts,
		baseDelay:    defaultRetryBaseDelay,
		maxDelay:     defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

type archiveMetadata struct {
	Metadata struct {
		Identifier string          `json:"identifier"`
		Title      json.RawMessage `json:"title"`
	} `json:"metadata"`
	Files []archiveFile `json:"files"`
}

type archiveFile struct {
	Name   string    `json:"name"`
	Format string    `json:"format"`
	Size   flexInt64 `json:"size"`
	Source string    `json:"source"`
}

// flexInt64 accepts sizes encoded either as JSON numbers or numeric strings.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt64(v)
	return nil
}

func (m archiveMetadata) title() string {
	raw := bytes.TrimSpace(m.Metadata.Title)
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return strings.TrimSpace(many[0])
	}
	return ""
}

// Resolve picks the smallest eligible file for identifier and opens it.
func (a *Archive) Resolve(ctx context.Context, identifier string) (*Download, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, faults.Wrap(faults.ErrValidation, "catalog", "resolve", "empty identifier", nil)
	}

	var meta archiveMetadata
	err := a.withRetry(ctx, func() error {
		var fetchErr error
		meta, fetchErr = a.fetchMetadata(ctx, identifier)
		return fetchErr
	})
	if err != nil {
		return nil, classify(err, "resolve metadata", identifier)
	}
	if meta.Metadata.Identifier == "" && len(meta.Files) == 0 {
		return nil, faults.Wrap(faults.ErrNotFound, "catalog", "resolve", identifier, nil)
	}

	file, ok := a.pickFile(meta.Files)
	if !ok {
		return nil, faults.Wrap(faults.ErrNoEligibleFile, "catalog", "resolve",
			fmt.Sprintf("%s: no %s file within %d bytes", identifier, strings.Join(a.extensions, "/"), a.maxItemSize), nil)
	}

	var body io.ReadCloser
	var contentLength int64
	err = a.withRetry(ctx, func() error {
		var openErr error
		body, contentLength, openErr = a.open(ctx, identifier, file.Name)
		return openErr
	})
	if err != nil {
		return nil, classify(err, "open download", identifier)
	}

	declared := int64(file.Size)
	if declared <= 0 && contentLength > 0 {
		declared = contentLength
	}
	return &Download{
		Identifier:   identifier,
		Title:        meta.title(),
		FileName:     file.Name,
		DeclaredSize: declared,
		Body:         body,
	}, nil
}

func (a *Archive) pickFile(files []archiveFile) (archiveFile, bool) {
	var best archiveFile
	found := false
	for _, f := range files {
		if !a.eligibleName(f.Name) || f.Size <= 0 {
			continue
		}
		if a.maxItemSize > 0 && int64(f.Size) > a.maxItemSize {
			continue
		}
		if !found || f.Size < best.Size {
			best = f
			found = true
		}
	}
	return best, found
}

func (a *Archive) eligibleName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range a.extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (a *Archive) fetchMetadata(ctx context.Context, identifier string) (archiveMetadata, error) {
	endpoint := a.baseURL + "/metadata/" + url.PathEscape(identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return archiveMetadata{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := a.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return archiveMetadata{}, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return archiveMetadata{}, &statusError{StatusCode: resp.StatusCode, Op: "metadata"}
	}

	var meta archiveMetadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataPayloadBytes)).Decode(&meta); err != nil {
		return archiveMetadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

func (a *Archive) open(ctx context.Context, identifier, name string) (io.ReadCloser, int64, error) {
	endpoint := a.baseURL + "/download/" + url.PathEscape(identifier) + "/" + escapeFilePath(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := a.streamClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute download request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, 0, &statusError{StatusCode: resp.StatusCode, Op: "download"}
	}
	return resp.Body, resp.ContentLength, nil
}

func escapeFilePath(name string) string {
	parts := strings.Split(path.Clean("/" + name)[1:], "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

type statusError struct {
	StatusCode int
	Op         string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("archive %s returned %d", e.Op, e.StatusCode)
}

func (a *Archive) withRetry(ctx context.Context, op func() error) error {
	b := &backoff.Backoff{Min: a.baseDelay, Max: a.maxDelay, Factor: 2}
	var lastErr error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt == a.attempts || !retryable(ctx, lastErr) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return lastErr
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func classify(err error, op, identifier string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusNotFound, http.StatusGone, http.StatusForbidden:
			return faults.Wrap(faults.ErrNotFound, "catalog", op, identifier, err)
		}
	}
	return faults.Wrap(faults.ErrCatalogUnreachable, "catalog", op, identifier, err)
}
