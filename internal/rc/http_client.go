package rc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPClient is a JSON-over-HTTP implementation of Client against a
// configurable base URL standing in for the remote activity-queue service.
type HTTPClient struct {
	baseURL string
	opts    *httpOptions
}

// NewHTTPClient builds an HTTPClient. baseURL's trailing slash is trimmed
// for consistency.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	baseURL = strings.TrimSuffix(baseURL, "/")

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}

	return &HTTPClient{baseURL: baseURL, opts: o}
}

type pollRequest struct {
	ActivityARN string `json:"activity_arn"`
	WorkerName  string `json:"worker_name"`
}

type pollResponse struct {
	Token string `json:"token"`
	Input string `json:"input"`
}

func (c *HTTPClient) Poll(ctx context.Context, activityARN, workerName string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.pollTimeout)
	defer cancel()

	body, err := json.Marshal(pollRequest{ActivityARN: activityARN, WorkerName: workerName})
	if err != nil {
		return "", "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/poll", body)
	if err != nil {
		return "", "", err
	}
	if region, ok := ExtractRegion(activityARN); ok {
		req.Header.Set("X-Activity-Region", region)
	}

	var resp pollResponse
	if err := c.do(req, &resp); err != nil {
		return "", "", err
	}
	return resp.Token, resp.Input, nil
}

type reportSuccessRequest struct {
	Output string `json:"output"`
}

func (c *HTTPClient) ReportSuccess(ctx context.Context, token, output string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.rpcTimeout)
	defer cancel()

	body, err := json.Marshal(reportSuccessRequest{Output: output})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/tasks/"+token+"/success", body)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

type reportFailureRequest struct {
	ErrorCode string `json:"error_code"`
	Cause     string `json:"cause"`
}

func (c *HTTPClient) ReportFailure(ctx context.Context, token, errorCode, cause string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.rpcTimeout)
	defer cancel()

	body, err := json.Marshal(reportFailureRequest{
		ErrorCode: errorCode,
		Cause:     TruncateCause(cause),
	})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/tasks/"+token+"/failure", body)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

type heartbeatErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (c *HTTPClient) Heartbeat(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.rpcTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, "/tasks/"+token+"/heartbeat", nil)
	if err != nil {
		return err
	}

	httpResp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusConflict || httpResp.StatusCode == http.StatusGone {
		var errResp heartbeatErrorResponse
		if decodeErr := json.NewDecoder(httpResp.Body).Decode(&errResp); decodeErr == nil && errResp.ErrorCode != "" {
			return &HeartbeatError{Code: errResp.ErrorCode, Message: errResp.Message}
		}
		return &HeartbeatError{Code: TaskDoesNotExist}
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat: unexpected status %d", httpResp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.opts.applyHeaders(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
