// Package jobclient is the Go client for the StoryChannel generation API:
// a thin HTTP wrapper plus a resumable polling state machine.
package jobclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/irfan-workspace/kakistorychannel/pkg/models"
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to the StoryChannel HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewClient creates a Client for the API at baseURL, authenticating with the
// given API key. A timeout of zero uses a sensible default.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Job is the API's job view as returned by submit and poll endpoints.
type Job struct {
	JobID           uuid.UUID          `json:"job_id"`
	Status          string             `json:"status"`
	Progress        int                `json:"progress"`
	ScenesGenerated int                `json:"scenes_generated"`
	Cached          bool               `json:"cached"`
	ErrorMessage    string             `json:"error_message"`
	Scenes          []models.SceneData `json:"scenes"`
}

// SubmitRequest is one generation submission.
type SubmitRequest struct {
	ProjectID uuid.UUID `json:"project_id"`
	Script    string    `json:"script"`
	Language  string    `json:"language"`
	StoryType string    `json:"story_type"`
	Tone      string    `json:"tone"`
}

// SubmitOutcome is the accepted result of a submission. Conflict means the
// server reported an already-active job and Job describes that job instead
// of a new one.
type SubmitOutcome struct {
	Job      Job
	Conflict bool
}

// APIError is a non-2xx response decoded from the API's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// IsNotFound reports whether err is an APIError with HTTP status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SubmitGeneration submits a script for scene generation. A 409 is not an
// error: the outcome carries the existing job with Conflict set so the
// caller can attach to it.
func (c *Client) SubmitGeneration(ctx context.Context, req SubmitRequest) (*SubmitOutcome, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submitting generation: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		job, err := decodeJob(resp)
		if err != nil {
			return nil, err
		}
		return &SubmitOutcome{Job: *job}, nil
	case http.StatusConflict:
		job, err := decodeJob(resp)
		if err != nil {
			return nil, err
		}
		return &SubmitOutcome{Job: *job, Conflict: true}, nil
	default:
		return nil, decodeError(resp)
	}
}

// JobStatus fetches the current view of jobID.
func (c *Client) JobStatus(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/jobs/"+jobID.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetching job status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return decodeJob(resp)
}

func decodeJob(resp *http.Response) (*Job, error) {
	var env dataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	var job Job
	if err := json.Unmarshal(env.Data, &job); err != nil {
		return nil, fmt.Errorf("decoding job: %w", err)
	}
	return &job, nil
}

func decodeError(resp *http.Response) error {
	var env errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: resp.Status}
	}
	return &APIError{
		Status:  resp.StatusCode,
		Code:    env.Error.Code,
		Message: env.Error.Message,
	}
}
