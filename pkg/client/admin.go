package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/osvaldoandrade/collageq/pkg/domain"
)

// ListJobs returns every job the backend currently tracks.
func (c *Client) ListJobs(ctx context.Context) (domain.JobList, error) {
	var list domain.JobList
	if err := c.requestJSON(ctx, http.MethodGet, "/api/collage/jobs", "", nil, &list); err != nil {
		return domain.JobList{}, err
	}
	return list, nil
}

// Cleanup releases backend-side resources for a job and returns the
// backend's confirmation message.
func (c *Client) Cleanup(ctx context.Context, jobID string) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", errors.New("job id is required")
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := c.requestJSON(ctx, http.MethodDelete, "/api/collage/cleanup/"+url.PathEscape(jobID), "", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Health probes the backend liveness endpoint.
func (c *Client) Health(ctx context.Context) (domain.HealthReport, error) {
	var report domain.HealthReport
	if err := c.requestJSON(ctx, http.MethodGet, "/health", "", nil, &report); err != nil {
		return domain.HealthReport{}, err
	}
	return report, nil
}

// Info fetches the backend's service banner.
func (c *Client) Info(ctx context.Context) (domain.ServiceInfo, error) {
	var info domain.ServiceInfo
	if err := c.requestJSON(ctx, http.MethodGet, "/", "", nil, &info); err != nil {
		return domain.ServiceInfo{}, err
	}
	return info, nil
}
