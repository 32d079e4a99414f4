package ml

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// RemoteModel calls an HTTP model server exposing predict_proba.
//
//	GET  {base}/health         -> {"status": "ok", "classes": C}
//	POST {base}/predict_proba  {"instances": [[...]]} -> {"probabilities": [[...]]}
type RemoteModel struct {
	base    string
	rest    *resty.Client
	classes int
}

type remoteHealth struct {
	Status  string `json:"status"`
	Classes int    `json:"classes"`
}

type remoteRequest struct {
	Instances [][]float64 `json:"instances"`
}

type remoteResponse struct {
	Probabilities [][]float64 `json:"probabilities"`
	Error         string      `json:"error,omitempty"`
}

// NewRemoteModel connects to the model server and checks its health. The
// server must be reachable at startup.
func NewRemoteModel(ctx context.Context, base string, timeout time.Duration) (*RemoteModel, error) {
	if base == "" {
		return nil, errors.New("remote model URL is empty")
	}
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	r.SetHeader("Accept", "application/json")

	m := &RemoteModel{base: base, rest: r}

	health := &remoteHealth{}
	resp, err := m.rest.R().
		SetContext(ctx).
		SetResult(health).
		Get(m.base + "/health")
	if err != nil {
		return nil, fmt.Errorf("model server health check: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("model server health check: status %d", resp.StatusCode())
	}
	if health.Status != "ok" {
		return nil, fmt.Errorf("model server unhealthy: status %q", health.Status)
	}
	if health.Classes <= 0 {
		return nil, fmt.Errorf("model server reported %d classes", health.Classes)
	}
	m.classes = health.Classes

	log.Info().Str("url", base).Int("classes", m.classes).Msg("remote model reachable")
	return m, nil
}

func (m *RemoteModel) Classes() int { return m.classes }

func (m *RemoteModel) PredictProba(ctx context.Context, x [][]float64) ([][]float64, error) {
	out := &remoteResponse{}
	resp, err := m.rest.R().
		SetContext(ctx).
		SetBody(remoteRequest{Instances: x}).
		SetResult(out).
		SetError(out).
		Post(m.base + "/predict_proba")
	if err != nil {
		return nil, fmt.Errorf("remote predict_proba: %w", err)
	}
	if resp.IsError() {
		if out.Error != "" {
			return nil, fmt.Errorf("remote predict_proba: status %d: %s", resp.StatusCode(), out.Error)
		}
		return nil, fmt.Errorf("remote predict_proba: status %d", resp.StatusCode())
	}
	if out.Error != "" {
		return nil, fmt.Errorf("remote predict_proba: %s", out.Error)
	}
	if len(out.Probabilities) != len(x) {
		return nil, fmt.Errorf("remote predict_proba returned %d rows for %d instances", len(out.Probabilities), len(x))
	}
	return out.Probabilities, nil
}
