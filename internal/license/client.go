package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	licerr "cicadagallery/internal/errors"
	"cicadagallery/pkg/contracts/domain"
)

// IssuePath is the issuance service endpoint.
const IssuePath = "/issue-license"

const maxResponseSize = 64 << 10

// IssuanceClient exchanges purchase details for a signed license string.
// Implementations return errors matching licerr.ErrNetworkError for
// transport problems and *ServiceRejectedError when the service refuses.
type IssuanceClient interface {
	IssueLicense(ctx context.Context, req domain.IssueLicenseRequest) (*domain.IssueLicenseResponse, error)
}

// ServiceRejectedError carries the issuance service's reason for refusing
// an activation. It matches licerr.ErrServiceRejected with errors.Is.
type ServiceRejectedError struct {
	Message    string
	StatusCode int
}

func (e *ServiceRejectedError) Error() string {
	if e.Message == "" {
		return licerr.ErrServiceRejected.Error()
	}
	return fmt.Sprintf("%s: %s", licerr.ErrServiceRejected, e.Message)
}

func (e *ServiceRejectedError) Unwrap() error {
	return licerr.ErrServiceRejected
}

func networkError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", licerr.ErrNetworkError, fmt.Sprintf(format, args...))
}

// HTTPIssuanceClient calls POST {baseURL}/issue-license.
type HTTPIssuanceClient struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// NewIssuanceClient creates a client with the given per-request timeout.
func NewIssuanceClient(baseURL string, timeout time.Duration) *HTTPIssuanceClient {
	return &HTTPIssuanceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "CicadaGallery/" + VersionTag,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *HTTPIssuanceClient) WithHTTPClient(hc *http.Client) *HTTPIssuanceClient {
	c.httpClient = hc
	return c
}

// IssueLicense performs one request. It never retries.
func (c *HTTPIssuanceClient) IssueLicense(ctx context.Context, req domain.IssueLicenseRequest) (*domain.IssueLicenseResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode issue request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+IssuePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build issue request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.Lang != "" {
		httpReq.Header.Set("Accept-Language", req.Lang)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logWarn(ctx, "issue_request", "Issuance service unreachable",
			slog.String("url", c.baseURL+IssuePath),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", licerr.ErrNetworkError, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", licerr.ErrNetworkError, err)
	}

	logDebug(ctx, "issue_request", "Issuance service responded",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, networkError("issuance service returned %d", resp.StatusCode)
	}

	var out domain.IssueLicenseResponse
	if err := json.Unmarshal(data, &out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &ServiceRejectedError{Message: http.StatusText(resp.StatusCode), StatusCode: resp.StatusCode}
		}
		return nil, networkError("invalid response from issuance service: %v", err)
	}

	if !out.Success || resp.StatusCode >= http.StatusBadRequest {
		msg := out.Error
		if msg == "" && resp.StatusCode >= http.StatusBadRequest {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &ServiceRejectedError{Message: msg, StatusCode: resp.StatusCode}
	}

	return &out, nil
}
