// Package client is a small HTTP client for the sidecar API, used by the
// trainctl command.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
)

// Client talks to one sidecar instance.
type Client struct {
	// Endpoint is the base URL of the sidecar, e.g. http://127.0.0.1:24000.
	Endpoint string
	// HTTP is the underlying client. Follow-mode log requests disable its
	// timeout, everything else uses it as is.
	HTTP *http.Client
}

// New returns a client for the given endpoint with a default timeout.
func New(endpoint string) *Client {
	return &Client{
		Endpoint: strings.TrimRight(endpoint, "/"),
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request to %s failed", path)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, errors.Errorf("%s returned %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// Submit sends a job description to the sidecar and returns the assigned UID
// and SLURM job ID.
func (c *Client) Submit(ctx context.Context, spec api.JobSpec) (api.SubmitResponse, error) {
	var out api.SubmitResponse
	resp, err := c.post(ctx, "/create", spec)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, errors.Wrap(err, "failed to decode submit response")
	}
	return out, nil
}

// Status returns the current status of the given job UIDs. An empty slice
// asks for every job the sidecar knows about.
func (c *Client) Status(ctx context.Context, uids []string) ([]api.JobStatus, error) {
	if uids == nil {
		uids = []string{}
	}
	resp, err := c.post(ctx, "/status", uids)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out []api.JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "failed to decode status response")
	}
	return out, nil
}

// Cancel aborts a job and removes its files on the sidecar.
func (c *Client) Cancel(ctx context.Context, uid string) error {
	resp, err := c.post(ctx, "/delete", struct {
		UID string `json:"uid"`
	}{UID: uid})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Logs streams the logs described by req to w. With req.Opts.Follow set this
// blocks until the step terminates or ctx is cancelled.
func (c *Client) Logs(ctx context.Context, req api.LogRequest, w io.Writer) error {
	httpClient := c.HTTP
	if req.Opts.Follow {
		// The stream stays open as long as the step runs.
		httpClient = &http.Client{Transport: c.HTTP.Transport}
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "failed to encode log request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/getLogs", bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "log request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return errors.Errorf("/getLogs returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	_, err = io.Copy(w, resp.Body)
	return err
}

// History lists past submissions. Empty experiment and non-positive limit
// return everything.
func (c *Client) History(ctx context.Context, experiment string, limit int) ([]api.HistoryEntry, error) {
	query := url.Values{}
	if experiment != "" {
		query.Set("experiment", experiment)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	endpoint := c.Endpoint + "/history"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "history request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, errors.Errorf("/history returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out []api.HistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "failed to decode history response")
	}
	return out, nil
}
