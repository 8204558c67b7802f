// Package predictor is the HTTP client for the external readmission model
// service. The models themselves live outside this codebase; this service
// only consumes their scores.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/readmit/readmit/internal/platform/apperr"
)

// Result is a single model prediction.
type Result struct {
	PredictedClass       int     `json:"predicted_class"`
	PredictedProbability float64 `json:"predicted_probability"`
	Explanation          string  `json:"explanation,omitempty"`
}

// Client calls the model service's /predict/<condition> endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Predict submits patient features to the model for the given condition.
// Failures are Dependency errors: the caller may retry, nothing was
// persisted on our side.
func (c *Client) Predict(ctx context.Context, condition string, input map[string]interface{}) (*Result, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "encode prediction input")
	}

	url := fmt.Sprintf("%s/predict/%s", c.baseURL, condition)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "build prediction request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Dependency, err, "model service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperr.New(apperr.Validation, "model rejected input: %s", string(msg))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.Dependency, "model service returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.Wrap(apperr.Dependency, err, "decode model response")
	}
	return &result, nil
}
