// Package dispatch provides a job processor that hands claimed jobs to an
// HTTP endpoint.
//
// The endpoint receives a JSON document describing the job and answers with
// the job result. Any 2xx answer finishes the job; everything else fails the
// run and the job is reset for a later attempt.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jdziat/simple-job-worker/pkg/repository"
	"github.com/jdziat/simple-job-worker/pkg/security"
	"github.com/jdziat/simple-job-worker/pkg/worker"
)

// Job is the job type handled by the dispatch processor. Parameters and
// results are passed through as raw JSON.
type Job = repository.Job[json.RawMessage, json.RawMessage]

var (
	_ worker.Processor[json.RawMessage, json.RawMessage] = (*Processor)(nil)
	_ worker.InitialParametersProvider[json.RawMessage]  = (*Processor)(nil)
)

// ErrRejected is returned when the endpoint answers with a non-2xx status.
var ErrRejected = errors.New("dispatch: endpoint rejected job")

// Config holds dispatch configuration.
type Config struct {
	URL        string            `mapstructure:"url"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	RetryCount int               `mapstructure:"retry_count"`
	RetryWait  time.Duration     `mapstructure:"retry_wait"`
	Headers    map[string]string `mapstructure:"headers"`

	// InitialParameters is the JSON document used as parameters of the
	// bootstrap job. Empty means no parameters.
	InitialParameters string `mapstructure:"initial_parameters"`
}

// DefaultConfig returns a 30 second timeout with two retries.
func DefaultConfig() Config {
	return Config{
		Timeout:    30 * time.Second,
		RetryCount: 2,
		RetryWait:  time.Second,
	}
}

// request is the document posted for every claimed job.
type request struct {
	JobID      int64           `json:"jobId"`
	Type       string          `json:"type"`
	Runner     string          `json:"runner"`
	DueDate    time.Time       `json:"dueDate"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// Processor posts claimed jobs to an HTTP endpoint.
type Processor struct {
	client  *resty.Client
	url     string
	initial *json.RawMessage
	logger  *slog.Logger
}

// New creates a dispatch processor.
func New(cfg Config, logger *slog.Logger) (*Processor, error) {
	if cfg.URL == "" {
		return nil, errors.New("dispatch: url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var initial *json.RawMessage
	if cfg.InitialParameters != "" {
		if !json.Valid([]byte(cfg.InitialParameters)) {
			return nil, errors.New("dispatch: initial parameters are not valid JSON")
		}
		raw := json.RawMessage(cfg.InitialParameters)
		initial = &raw
	}

	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")
	for k, v := range cfg.Headers {
		client.SetHeader(k, v)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.RetryCount > 0 {
		client.SetRetryCount(cfg.RetryCount)
		client.SetRetryWaitTime(cfg.RetryWait)
		client.SetRetryMaxWaitTime(max(cfg.RetryWait, 10*cfg.RetryWait))
		client.AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() >= 500
		})
	}

	return &Processor{
		client:  client,
		url:     cfg.URL,
		initial: initial,
		logger:  logger,
	}, nil
}

// InitialParameters returns the configured bootstrap parameters.
func (p *Processor) InitialParameters() *json.RawMessage {
	return p.initial
}

// Process posts the job and returns the response body as result.
func (p *Processor) Process(ctx context.Context, job *Job) (*json.RawMessage, error) {
	body := request{
		JobID:   job.ID,
		Type:    job.Type,
		Runner:  job.RunnerName(),
		DueDate: job.DueDate,
	}
	if job.Parameters != nil {
		body.Parameters = *job.Parameters
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(p.url)
	if err != nil {
		return nil, fmt.Errorf("dispatch job %d: %w", job.ID, err)
	}

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: job %d: status %d: %s", ErrRejected, job.ID, resp.StatusCode(),
			security.SanitizeErrorMessage(resp.String()))
	}

	p.logger.Debug("dispatched job", "job_id", job.ID, "status", resp.StatusCode(),
		"duration", resp.Time())

	data := resp.Body()
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("dispatch job %d: response is not JSON", job.ID)
	}
	result := json.RawMessage(data)
	return &result, nil
}
