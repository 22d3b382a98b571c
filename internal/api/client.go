// Package api is the client for the ingestion backend's HTTP surface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	nethttp "net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ragdesk/ragdesk/internal/config"
	"github.com/ragdesk/ragdesk/internal/constants"
	"github.com/ragdesk/ragdesk/internal/http"
	"github.com/ragdesk/ragdesk/internal/logging"
	"github.com/ragdesk/ragdesk/internal/models"
	"github.com/ragdesk/ragdesk/internal/ratelimit"
	"github.com/ragdesk/ragdesk/internal/util/buffers"
	"github.com/ragdesk/ragdesk/internal/validation"
)

// maxErrorBody bounds how much of an error response is kept in a StatusError.
const maxErrorBody = 512

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not all info
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// apiMetrics tracks API usage statistics
type apiMetrics struct {
	sync.Mutex
	totalCalls  int64
	callsByPath map[string]int64
}

// Client talks to the ingestion backend.
type Client struct {
	httpClient   *nethttp.Client // retrying client for JSON endpoints
	uploadClient *nethttp.Client // streaming client for multipart uploads
	config       *config.Config
	baseURL      string
	limiter      *ratelimit.RateLimiter
	logger       *logging.Logger
	metrics      *apiMetrics
}

// NewClient creates a new API client. A nil logger discards output.
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("API base URL is empty")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	httpClient, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	uploadClient, err := http.CreateTransferClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure transfer client: %w", err)
	}

	rate, burst := cfg.RatePerSec, cfg.Burst
	if rate <= 0 {
		rate = constants.DefaultRatePerSec
	}
	if burst < 1 {
		burst = constants.DefaultBurst
	}

	c := &Client{
		uploadClient: uploadClient,
		config:       cfg,
		baseURL:      strings.TrimSuffix(cfg.APIBaseURL, "/"),
		limiter:      ratelimit.NewRateLimiter(rate, burst),
		logger:       logger.Component("api"),
		metrics:      &apiMetrics{callsByPath: make(map[string]int64)},
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = cfg.APIRetryMax
	retryClient.RetryWaitMin = constants.APIRetryWaitMin
	retryClient.RetryWaitMax = constants.APIRetryWaitMax
	retryClient.Logger = &retryLogger{logger: c.logger}
	retryClient.CheckRetry = c.checkRetry
	// Hand the final response back so callers can build a StatusError.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c.httpClient = retryClient.StandardClient()
	return c, nil
}

// GetConfig returns the configuration used by this API client
func (c *Client) GetConfig() *config.Config {
	return c.config
}

// checkRetry applies the default retry policy and feeds 429s back into the
// shared limiter so concurrent callers back off together.
func (c *Client) checkRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == nethttp.StatusTooManyRequests {
		c.limiter.Drain()
		if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
			c.limiter.SetCooldown(time.Duration(secs) * time.Second)
		}
		c.logger.Warn().
			Str("path", resp.Request.URL.Path).
			Str("retry_after", resp.Header.Get("Retry-After")).
			Msg("throttled by backend")
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// doRequest performs a JSON request with rate limiting
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*nethttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	c.metrics.Lock()
	c.metrics.totalCalls++
	c.metrics.callsByPath[method+" "+routeOf(path)]++
	c.metrics.Unlock()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("API call failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// routeOf strips user-specific path segments so metrics group by endpoint.
func routeOf(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return "/" + trimmed[:i]
	}
	return path
}

// CallCounts returns the number of JSON calls made per endpoint.
func (c *Client) CallCounts() map[string]int64 {
	c.metrics.Lock()
	defer c.metrics.Unlock()
	out := make(map[string]int64, len(c.metrics.callsByPath))
	for k, v := range c.metrics.callsByPath {
		out[k] = v
	}
	return out
}

// checkStatus turns a non-2xx response into a *StatusError. The body is
// consumed in that case.
func checkStatus(resp *nethttp.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// ListUserFiles returns the canonical list of ingested files for userID.
func (c *Client) ListUserFiles(ctx context.Context, userID string) ([]models.ServerFile, error) {
	resp, err := c.doRequest(ctx, "GET", "/get_user_files/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "list user files"); err != nil {
		return nil, err
	}

	var result models.FileListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode file list: %w", err)
	}

	return result.Files, nil
}

// ProcessFiles submits the manifest of transferred files for ingestion.
func (c *Client) ProcessFiles(ctx context.Context, userID string, entries []models.ManifestEntry) error {
	resp, err := c.doRequest(ctx, "POST", "/process_files", models.ProcessRequest{
		UserID: userID,
		Files:  entries,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "process files"); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// GetProgress returns the backend's ingestion percentage for userID, clamped
// to 0..100.
func (c *Client) GetProgress(ctx context.Context, userID string) (int, error) {
	resp, err := c.doRequest(ctx, "GET", "/progress/"+url.PathEscape(userID), nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "get progress"); err != nil {
		return 0, err
	}

	var result models.ProgressResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode progress: %w", err)
	}

	p := int(math.Round(result.Progress))
	if p < 0 {
		p = 0
	}
	if p > constants.MaxPercent {
		p = constants.MaxPercent
	}
	return p, nil
}

// DeleteUserFile deletes one ingested file.
func (c *Client) DeleteUserFile(ctx context.Context, userID, filename string) error {
	if err := validation.ValidateFilename(filename); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	path := fmt.Sprintf("/delete_user_file/%s/%s", url.PathEscape(userID), url.PathEscape(filename))

	resp, err := c.doRequest(ctx, "DELETE", path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "delete file"); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// UpdateCategory sets or, with a nil category, clears a file's category label.
func (c *Client) UpdateCategory(ctx context.Context, userID, filename string, category *string) error {
	resp, err := c.doRequest(ctx, "POST", "/update_category", models.CategoryUpdate{
		UserID:   userID,
		Filename: filename,
		Category: category,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "update category"); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// ListCategories returns the category labels known to the backend.
func (c *Client) ListCategories(ctx context.Context, userID string) ([]string, error) {
	resp, err := c.doRequest(ctx, "GET", "/get_category/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "list categories"); err != nil {
		return nil, err
	}

	var result models.CategoryListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}

	return result.Categories, nil
}

// UploadRequest describes one file to upload.
type UploadRequest struct {
	Filename    string
	ContentType string
	Size        int64 // used for progress; <= 0 reports only completion
	Body        io.Reader
}

// UploadFile streams one file to POST /upload_files as multipart form data
// (fields "file" and "user_id"). onProgress, if set, receives the raw
// percentage of file bytes sent, 0..100, and is called from the goroutine
// writing the body.
func (c *Client) UploadFile(ctx context.Context, userID string, req UploadRequest, onProgress func(percent int)) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter cancelled: %w", err)
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadBody(mw, userID, req, onProgress))
	}()

	httpReq, err := nethttp.NewRequestWithContext(ctx, "POST", c.baseURL+"/upload_files", pr)
	if err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.uploadClient.Do(httpReq)
	if err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "upload file"); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug().Str("file", req.Filename).Int64("size", req.Size).Msg("upload complete")
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeUploadBody(mw *multipart.Writer, userID string, req UploadRequest, onProgress func(int)) error {
	if err := mw.WriteField("user_id", userID); err != nil {
		return err
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(req.Filename)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	src := &progressReader{r: req.Body, total: req.Size, last: -1, onProgress: onProgress}

	buf := buffers.GetCopyBuffer()
	defer buffers.PutCopyBuffer(buf)

	if _, err := io.CopyBuffer(part, src, *buf); err != nil {
		return fmt.Errorf("failed to stream %s: %w", req.Filename, err)
	}
	src.report(constants.MaxPercent)

	return mw.Close()
}

// progressReader reports the percentage of bytes read, once per change.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	last       int
	onProgress func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 && n > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > constants.MaxPercent {
			pct = constants.MaxPercent
		}
		p.report(pct)
	}
	return n, err
}

func (p *progressReader) report(pct int) {
	if p.onProgress == nil || pct <= p.last {
		return
	}
	p.last = pct
	p.onProgress(pct)
}
