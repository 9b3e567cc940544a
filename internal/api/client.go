package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/banshee-data/trick.report/internal/httputil"
	"github.com/banshee-data/trick.report/internal/trick/pose"
	"github.com/banshee-data/trick.report/internal/trick/storage/sqlite"
)

// Client talks to a running trick.report server.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
}

// NewClient returns a Client for the server at baseURL. A nil hc uses
// http.DefaultClient.
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// StatusError is a non-2xx response from the server.
type StatusError struct {
	StatusCode int
	Body       httputil.ErrorBody
}

func (e *StatusError) Error() string {
	if e.Body.Error == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body.Error)
}

// SubmitTimeline uploads tl for analysis.
func (c *Client) SubmitTimeline(tl *pose.Timeline) (*AnalysisResponse, error) {
	var out AnalysisResponse
	if err := c.post("/api/analyses", tl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterReference registers an analysed video or a timeline as a reference.
func (c *Client) RegisterReference(req RegisterReferenceRequest) (*sqlite.Reference, error) {
	var out sqlite.Reference
	if err := c.post("/api/references", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Compare scores a stored rider analysis against a reference.
func (c *Client) Compare(riderVideoID, referenceID string) (*ComparisonResponse, error) {
	var out ComparisonResponse
	req := CompareRequest{RiderVideoID: riderVideoID, ReferenceID: referenceID}
	if err := c.post("/api/comparisons", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		se := &StatusError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, &se.Body)
		return se
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
