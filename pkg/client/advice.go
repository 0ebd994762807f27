package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/osvaldoandrade/collageq/internal/metrics"
	"github.com/osvaldoandrade/collageq/pkg/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OptimizeGrid asks the backend how far the image count is from a perfect
// rectangular grid. The report is passed through untouched; no grid math
// happens on this side.
func (c *Client) OptimizeGrid(ctx context.Context, q domain.GridQuery) (domain.GridReport, error) {
	var report domain.GridReport
	if q.ImageCount <= 0 {
		return report, errors.New("image count must be positive")
	}

	ctx, span := c.tracer.Start(ctx, "collageq.advice.grid",
		trace.WithAttributes(attribute.Int("collageq.image_count", q.ImageCount)),
	)
	defer span.End()

	err := c.requestJSON(ctx, http.MethodPost, "/api/collage/optimize-grid",
		"application/x-www-form-urlencoded", formBody(q.FormFields()), &report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.AdviceRequestsTotal.WithLabelValues("grid", outcome(err)).Inc()
		return domain.GridReport{}, err
	}

	metrics.AdviceRequestsTotal.WithLabelValues("grid", "ok").Inc()
	return report, nil
}

// AnalyzeOverlaps submits the file set for overlap prediction. The request
// shape matches CreateCollage; the report is passed through untouched.
func (c *Client) AnalyzeOverlaps(ctx context.Context, cfg domain.CollageConfig, parts []FilePart) (domain.OverlapReport, error) {
	var report domain.OverlapReport
	if len(parts) < minFiles {
		return report, ErrTooFewFiles
	}
	if err := cfg.Validate(); err != nil {
		return report, err
	}

	ctx, span := c.tracer.Start(ctx, "collageq.advice.overlaps",
		trace.WithAttributes(attribute.Int("collageq.file_count", len(parts))),
	)
	defer span.End()

	body, contentType, err := multipartBody(cfg.FormFields(), parts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.AdviceRequestsTotal.WithLabelValues("overlaps", "error").Inc()
		return report, err
	}

	if err := c.requestJSON(ctx, http.MethodPost, "/api/collage/analyze-overlaps", contentType, body, &report); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.AdviceRequestsTotal.WithLabelValues("overlaps", outcome(err)).Inc()
		return domain.OverlapReport{}, err
	}

	metrics.AdviceRequestsTotal.WithLabelValues("overlaps", "ok").Inc()
	return report, nil
}
