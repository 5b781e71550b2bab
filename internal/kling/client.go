package kling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	modelName = "kling"
	taskType  = "ai_try_on"
)

// TerminalError reports that the remote service ended the task in a
// status other than completed. The raw status string is kept so the
// job record can surface it. Any status outside the known in-flight
// set is treated as terminal rather than retried.
type TerminalError struct {
	Status string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("task failed with status: %s", e.Status)
}

// Client talks to the try-on vendor: one submit call, then status
// polls by task id. Every call is authenticated with the key assigned
// to the job.
type Client struct {
	baseURL  string
	interval time.Duration
	http     *http.Client
}

func NewClient(baseURL string, pollInterval time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		interval: pollInterval,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type submitInput struct {
	ModelInput string `json:"model_input"`
	DressInput string `json:"dress_input"`
	BatchSize  int    `json:"batch_size"`
}

type submitRequest struct {
	Model    string      `json:"model"`
	TaskType string      `json:"task_type"`
	Input    submitInput `json:"input"`
}

type taskEnvelope struct {
	Data struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
		Output struct {
			Works []struct {
				Image struct {
					Resource string `json:"resource"`
				} `json:"image"`
			} `json:"works"`
		} `json:"output"`
	} `json:"data"`
}

// Result is the payload of a completed task.
type Result struct {
	ArtifactURL string
}

// Submit sends the generation request and returns the vendor's task id.
func (c *Client) Submit(ctx context.Context, modelImg, dressImg, apiKey string) (string, error) {
	body, err := json.Marshal(submitRequest{
		Model:    modelName,
		TaskType: taskType,
		Input:    submitInput{ModelInput: modelImg, DressInput: dressImg, BatchSize: 1},
	})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("submit task: unexpected status %s", resp.Status)
	}

	var env taskEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if env.Data.TaskID == "" {
		return "", fmt.Errorf("submit response missing task_id")
	}

	return env.Data.TaskID, nil
}

// PollUntilTerminal queries the task until its status leaves the
// in-flight set, sleeping the configured interval between checks. It
// has no iteration cap of its own; the caller bounds it through ctx
// when a poll timeout is configured.
func (c *Client) PollUntilTerminal(ctx context.Context, taskID, apiKey string) (*Result, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("poll task %s: %w", taskID, ctx.Err())
		case <-time.After(c.interval):
		}

		env, err := c.checkStatus(ctx, taskID, apiKey)
		if err != nil {
			return nil, err
		}

		if inFlight(env.Data.Status) {
			continue
		}

		if env.Data.Status != "completed" {
			return nil, &TerminalError{Status: env.Data.Status}
		}

		works := env.Data.Output.Works
		if len(works) == 0 || works[0].Image.Resource == "" {
			return nil, fmt.Errorf("completed task %s has no output image", taskID)
		}
		return &Result{ArtifactURL: works[0].Image.Resource}, nil
	}
}

func (c *Client) checkStatus(ctx context.Context, taskID, apiKey string) (*taskEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("X-API-KEY", apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("check task status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("check task status: unexpected status %s", resp.Status)
	}

	var env taskEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &env, nil
}

// inFlight reports whether the vendor status means the task is still
// being worked on. Unknown statuses are terminal, not retryable.
func inFlight(status string) bool {
	switch status {
	case "pending", "running", "processing":
		return true
	default:
		return false
	}
}
