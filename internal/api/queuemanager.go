package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/octa-computer/transfer-manager/internal/constants"
	"github.com/octa-computer/transfer-manager/internal/version"
)

// QueueManagerClient posts to the farm's uber_api: a single POST endpoint
// whose request body maps endpoint names to payloads and whose response
// maps them to {status, body} envelopes.
type QueueManagerClient struct {
	http *http.Client
	log  zerolog.Logger
}

// NewQueueManagerClient creates a queue-manager client.
func NewQueueManagerClient(log zerolog.Logger) *QueueManagerClient {
	log = log.With().Str("component", "queue_manager").Logger()
	return &QueueManagerClient{
		http: newControlClient(constants.ControlRetryMax, log),
		log:  log,
	}
}

// RenderPass describes one named output channel of a job. Files maps an
// output name to its file extension.
type RenderPass struct {
	Files map[string]string `json:"files"`
}

// JobDetails is the subset of the job record the download side needs to
// enumerate expected outputs.
type JobDetails struct {
	Start        int64                 `json:"start"`
	End          int64                 `json:"end"`
	BatchSize    int64                 `json:"batch_size"`
	RenderPasses map[string]RenderPass `json:"render_passes"`
	RenderFormat string                `json:"render_format"`
}

type envelopeResult struct {
	Status string          `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// call posts the endpoint envelope and returns the per-endpoint results.
func (c *QueueManagerClient) call(ctx context.Context, ud UserData, endpoints map[string]any) (map[string]envelopeResult, error) {
	payload, err := json.Marshal(endpoints)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal uber_api payload: %w", err)
	}

	url := ud.FarmHost + "/qm/uber_api"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Sarfis-Version", version.Version)
	req.Header.Set("Sarfis-Soft-Version", version.Version)
	if ud.QMAuthToken != "" {
		req.Header.Set("Auth-Token", ud.QMAuthToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uber_api call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     http.MethodPost,
			URL:        url,
			StatusCode: resp.StatusCode,
		}
	}

	var results map[string]envelopeResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("uber_api returned bad body: %w", err)
	}
	return results, nil
}

// ensureSuccessful unwraps one endpoint result, rejecting non-success status.
func ensureSuccessful(endpoint string, results map[string]envelopeResult) (json.RawMessage, error) {
	result, ok := results[endpoint]
	if !ok {
		return nil, fmt.Errorf("uber_api response is missing %q", endpoint)
	}
	if result.Status != "success" {
		return nil, fmt.Errorf("%s call status was not success: %s\n%s",
			endpoint, result.Status, string(result.Body))
	}
	return result.Body, nil
}

// CreateNodeJob posts the job-creation document built on upload completion.
func (c *QueueManagerClient) CreateNodeJob(ctx context.Context, ud UserData, job map[string]any) error {
	results, err := c.call(ctx, ud, map[string]any{"node_job": job})
	if err != nil {
		return err
	}
	_, err = ensureSuccessful("node_job", results)
	return err
}

// GetJobDetails fetches the job record used to enumerate download outputs.
func (c *QueueManagerClient) GetJobDetails(ctx context.Context, ud UserData, jobID string) (*JobDetails, error) {
	results, err := c.call(ctx, ud, map[string]any{
		"job_details": map[string]string{"job_id": jobID},
	})
	if err != nil {
		return nil, err
	}

	body, err := ensureSuccessful("job_details", results)
	if err != nil {
		return nil, err
	}

	var details JobDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("job_details returned bad body: %w", err)
	}
	return &details, nil
}
