package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/page"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// HTTPClient talks to the batch endpoint of a w3a11y server
type HTTPClient struct {
	endpoint string
	nonce    string
	http     *http.Client
}

// NewHTTPClient builds a client for endpoint (the endpoint_url of the bulk
// configuration). nonce is sent on every request.
func NewHTTPClient(endpoint, nonce string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		nonce:    nonce,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) StartRun(ctx context.Context, req models.StartRunRequest) (models.StartRunResponse, error) {
	var resp models.StartRunResponse
	err := c.post(ctx, "bulk.start_run", c.endpoint+"/runs", req, &resp)
	return resp, err
}

func (c *HTTPClient) ProcessBatch(ctx context.Context, req models.BatchRequest) (models.BatchResponse, error) {
	var resp models.BatchResponse
	err := c.post(ctx, "bulk.process_batch", c.endpoint+"/runs/"+url.PathEscape(req.RunID)+"/batch", req, &resp)
	return resp, err
}

func (c *HTTPClient) CancelRun(ctx context.Context, runID string) error {
	return c.post(ctx, "bulk.cancel_run", c.endpoint+"/runs/"+url.PathEscape(runID)+"/cancel", struct{}{}, nil)
}

func (c *HTTPClient) post(ctx context.Context, op, target string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, op, "failed to encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, op, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(models.NonceHeader, c.nonce)
	return do(c.http, op, req, out)
}

// FetchConfig reads the bulk configuration, including a fresh nonce, from
// the admin endpoint of server
func FetchConfig(ctx context.Context, server, adminToken string, timeout time.Duration) (page.BulkConfig, error) {
	const op = "bulk.fetch_config"

	var cfg page.BulkConfig
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(server, "/")+"/api/alttext/config", nil)
	if err != nil {
		return cfg, apperrors.Wrap(apperrors.KindConfig, op, "invalid server address", err)
	}
	req.Header.Set("Authorization", "Bearer "+adminToken)
	err = do(&http.Client{Timeout: timeout}, op, req, &cfg)
	return cfg, err
}

// do sends req and maps the outcome onto the error kinds of a run
func do(client *http.Client, op string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.KindNetwork, op, "request did not reach the server", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return apperrors.Wrap(apperrors.KindNetwork, op, "failed to read response", err)
	}

	if resp.StatusCode >= 300 {
		return responseError(op, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.Wrap(apperrors.KindBatch, op, "malformed response", err)
	}
	return nil
}

func responseError(op string, status int, body []byte) error {
	var e models.ErrorResponse
	_ = json.Unmarshal(body, &e)
	message := e.Message
	if message == "" {
		message = fmt.Sprintf("server answered %d", status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || e.Code == models.CodeInvalidNonce:
		return apperrors.New(apperrors.KindAuth, op, "Session expired, reload the page and try again")
	case e.Code == models.CodeValidation || status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return apperrors.New(apperrors.KindValidation, op, message)
	case status == http.StatusConflict:
		return apperrors.New(apperrors.KindConflict, op, message)
	case status == http.StatusNotFound:
		return apperrors.New(apperrors.KindNotFound, op, message)
	default:
		return apperrors.New(apperrors.KindBatch, op, message)
	}
}
