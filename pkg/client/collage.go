package client

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/osvaldoandrade/collageq/internal/metrics"
	"github.com/osvaldoandrade/collageq/pkg/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CreateCollage submits the file set and configuration as one multipart
// request and returns the backend's job handle. The file-count floor is
// checked here so an invalid set never reaches the network.
func (c *Client) CreateCollage(ctx context.Context, cfg domain.CollageConfig, parts []FilePart) (domain.CreateResponse, error) {
	var out domain.CreateResponse
	if len(parts) < minFiles {
		return out, ErrTooFewFiles
	}
	if err := cfg.Validate(); err != nil {
		return out, err
	}

	ctx, span := c.tracer.Start(ctx, "collageq.job.create",
		trace.WithAttributes(
			attribute.Int("collageq.file_count", len(parts)),
			attribute.String("collageq.layout", string(cfg.Layout)),
		),
	)
	defer span.End()

	body, contentType, err := multipartBody(cfg.FormFields(), parts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.JobSubmittedTotal.WithLabelValues("error").Inc()
		return out, err
	}

	if err := c.requestJSON(ctx, http.MethodPost, "/api/collage/create", contentType, body, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.JobSubmittedTotal.WithLabelValues(outcome(err)).Inc()
		return domain.CreateResponse{}, err
	}

	span.SetAttributes(attribute.String("collageq.job_id", out.JobID))
	metrics.JobSubmittedTotal.WithLabelValues("ok").Inc()
	c.logger.Info("collage job submitted", "job_id", out.JobID, "files", len(parts))
	return out, nil
}

// Status fetches the current job snapshot. Callers replace their copy of the
// job wholesale with the returned value.
func (c *Client) Status(ctx context.Context, jobID string) (domain.Job, error) {
	var job domain.Job
	if strings.TrimSpace(jobID) == "" {
		return job, errors.New("job id is required")
	}
	if err := c.requestJSON(ctx, http.MethodGet, "/api/collage/status/"+url.PathEscape(jobID), "", nil, &job); err != nil {
		return domain.Job{}, err
	}
	if job.ID == "" {
		job.ID = jobID
	}
	return job, nil
}

// Artifact is a downloaded collage plus its suggested local filename.
type Artifact struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Download fetches the finished artifact. The suggested filename follows the
// server's Content-Disposition or Content-Type when present; formatHint
// decides the extension otherwise.
func (c *Client) Download(ctx context.Context, jobID string, formatHint domain.OutputFormat) (*Artifact, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.New("job id is required")
	}

	ctx, span := c.tracer.Start(ctx, "collageq.job.download",
		trace.WithAttributes(attribute.String("collageq.job_id", jobID)),
	)
	defer span.End()

	raw, header, err := c.request(ctx, http.MethodGet, "/api/collage/download/"+url.PathEscape(jobID), "", nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.DownloadTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}

	contentType := header.Get("Content-Type")
	art := &Artifact{
		Data:        raw,
		ContentType: contentType,
		Filename:    suggestedFilename(jobID, header.Get("Content-Disposition"), contentType, formatHint),
	}
	metrics.DownloadTotal.WithLabelValues("ok").Inc()
	c.logger.Info("artifact downloaded", "job_id", jobID, "bytes", len(raw), "filename", art.Filename)
	return art, nil
}

func suggestedFilename(jobID, disposition, contentType string, hint domain.OutputFormat) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := strings.TrimSpace(params["filename"]); name != "" {
				return name
			}
		}
	}
	ext := ""
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		ext = "png"
	case strings.HasPrefix(contentType, "image/jpeg"):
		ext = "jpg"
	default:
		if hint == "" {
			hint = domain.FormatJPEG
		}
		ext = hint.Ext()
	}
	return "collage_" + jobID + "." + ext
}
