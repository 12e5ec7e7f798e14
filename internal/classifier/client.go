// Package classifier talks to the external LLM workflow service and maps its
// batched, positional output arrays back onto canonical events.
package classifier

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
)

// Client calls workflow-service endpoints. Each workflow (classify, analyze,
// weather extraction) is addressed by its own API key against one base URL.
type Client struct {
	baseURL    string
	user       string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a workflow client. user identifies the caller to the
// service and appears in its request logs.
func NewClient(baseURL, user string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		user:    user,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Outputs is the parallel-array response of the classification workflow.
// Every slice must have one element per newline-delimited input line, index-
// aligned with the input. Elements are pointers: a JSON null stays nil and is
// distinguishable from an empty string.
type Outputs struct {
	ClassNames []*string `json:"class_name"`
	Categories []*string `json:"CategoryList"`
	RoadNames  []*string `json:"road_name"`
	RoadCodes  []*string `json:"road_code"`
	StartTimes []*string `json:"StartTimeList"`
	EndTimes   []*string `json:"EndTimeList"`
}

type workflowRequest struct {
	Inputs       map[string]string `json:"inputs"`
	ResponseMode string            `json:"response_mode"`
	User         string            `json:"user"`
}

type workflowResponse struct {
	Data struct {
		Outputs json.RawMessage `json:"outputs"`
	} `json:"data"`
}

// ClassifyBatch submits one newline-joined batch to the classification
// workflow and returns its parallel output arrays.
func (c *Client) ClassifyBatch(ctx context.Context, apiKey, batch string) (Outputs, error) {
	raw, err := c.run(ctx, apiKey, map[string]string{"event": batch})
	if err != nil {
		return Outputs{}, err
	}
	var out Outputs
	if err := json.Unmarshal(raw, &out); err != nil {
		return Outputs{}, fmt.Errorf("decode classification outputs: %w", err)
	}
	return out, nil
}

// Analyze submits a bulletin's free text to the analysis workflow, which
// splits it into one incident description per line. Blank lines are dropped.
func (c *Client) Analyze(ctx context.Context, apiKey, content string) ([]string, error) {
	text, err := c.runText(ctx, apiKey, map[string]string{"event": content})
	if err != nil {
		return nil, err
	}
	var incidents []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			incidents = append(incidents, line)
		}
	}
	return incidents, nil
}

// WeatherFields is the structured result of the weather extraction workflow.
type WeatherFields struct {
	Province string `json:"province"`
	City     string `json:"city"`
	Area     string `json:"area"`
	Grade    string `json:"grade"`
	Type     string `json:"type"`
}

// ExtractWeather asks the extraction workflow to pull the region and warning
// grade/type out of an alert title.
func (c *Client) ExtractWeather(ctx context.Context, apiKey, title string) (WeatherFields, error) {
	text, err := c.runText(ctx, apiKey, map[string]string{"info": title})
	if err != nil {
		return WeatherFields{}, err
	}
	var fields WeatherFields
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return WeatherFields{}, fmt.Errorf("decode weather extraction %q: %w", text, err)
	}
	return fields, nil
}

// runText runs a workflow whose outputs carry a single "text" field.
func (c *Client) runText(ctx context.Context, apiKey string, inputs map[string]string) (string, error) {
	raw, err := c.run(ctx, apiKey, inputs)
	if err != nil {
		return "", err
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode text output: %w", err)
	}
	return out.Text, nil
}

func (c *Client) run(ctx context.Context, apiKey string, inputs map[string]string) (json.RawMessage, error) {
	payload, err := json.Marshal(workflowRequest{
		Inputs:       inputs,
		ResponseMode: "blocking",
		User:         c.user,
	})
	if err != nil {
		return nil, fmt.Errorf("encode workflow request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create workflow request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workflow request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("workflow service: status %d: %s", resp.StatusCode, body)
	}

	var wfResp workflowResponse
	if err := json.NewDecoder(resp.Body).Decode(&wfResp); err != nil {
		return nil, fmt.Errorf("decode workflow response: %w", err)
	}
	if len(wfResp.Data.Outputs) == 0 {
		return nil, fmt.Errorf("workflow response has no outputs")
	}
	return wfResp.Data.Outputs, nil
}
