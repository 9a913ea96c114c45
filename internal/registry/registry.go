// Package registry registers trained artifacts with the model registry
// service. Registration is fire-and-forget: a failed call is logged by the
// trainer and never fails the training operation.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Registration is the record sent to the registry for one trained artifact.
type Registration struct {
	ModelName       string             `json:"model_name"`
	ModelVersion    string             `json:"model_version"`
	ModelType       string             `json:"model_type"`
	ModelPath       string             `json:"model_path"`
	FeatureColumns  []string           `json:"feature_columns"`
	Metrics         map[string]float64 `json:"metrics"`
	Status          string             `json:"status"`
	TrainingSamples int                `json:"training_samples"`
}

type registerResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Client talks to the registry over HTTP.
type Client struct {
	base string
	rest *resty.Client
}

// NewClient creates a registry client with the given base URL.
func NewClient(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	return &Client{base: base, rest: r}
}

// Register records a trained artifact. Errors are returned for the caller to
// log; by contract they must not be propagated past the training operation.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	if reg.Status == "" {
		reg.Status = "deployed"
	}

	resp := &registerResp{}
	httpResp, err := c.rest.R().
		SetContext(ctx).
		SetBody(reg).
		SetResult(resp).
		Post(c.base + "/api/v1/models")
	if err != nil {
		return fmt.Errorf("registry: register %s: %w", reg.ModelName, err)
	}
	if httpResp.IsError() {
		return fmt.Errorf("registry: register %s: status %d", reg.ModelName, httpResp.StatusCode())
	}
	if resp.Code != 0 {
		return fmt.Errorf("registry: register %s: %d %s", reg.ModelName, resp.Code, resp.Msg)
	}
	return nil
}
