package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/collageq/internal/stubserver"
	"github.com/osvaldoandrade/collageq/pkg/config"
	"github.com/osvaldoandrade/collageq/pkg/domain"
)

const (
	benchUser = "bench"
	benchPass = "bench-secret"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

func newBenchServer(b *testing.B) *stubserver.Server {
	b.Helper()
	gin.SetMode(gin.ReleaseMode)

	cfg := &config.Config{
		BaseURL:           "http://localhost:8000",
		Username:          benchUser,
		Password:          benchPass,
		Env:               "test",
		LogLevel:          "error",
		LogFormat:         "json",
		MaxFiles:          10,
		MaxFileSizeBytes:  1 << 20,
		MaxTotalSizeBytes: 10 << 20,
		ArtifactsDir:      b.TempDir(),

		// Benchmarks keep rate limiting disabled.
		RateLimitPerMinute: 0,
		RateLimitBurst:     0,
	}

	// Nanosecond phases make every job terminal by its first status read.
	srv, err := stubserver.New(cfg, stubserver.Options{
		PendingFor:    time.Nanosecond,
		ProcessingFor: time.Nanosecond,
	})
	if err != nil {
		b.Fatalf("server init: %v", err)
	}
	stubserver.SetupRoutes(srv)
	b.Cleanup(func() { _ = srv.TracingShutdown(context.Background()) })
	return srv
}

func multipartBody(b *testing.B, names ...string) ([]byte, string) {
	b.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i, name := range names {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			b.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(pngHeader); err != nil {
			b.Fatalf("write part: %v", err)
		}
		if _, err := fmt.Fprintf(part, "bench payload %d", i); err != nil {
			b.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		b.Fatalf("close multipart: %v", err)
	}
	return buf.Bytes(), mw.FormDataContentType()
}

func doRequest(b *testing.B, h http.Handler, method, path, contentType string, body []byte) (int, []byte) {
	b.Helper()

	var rbody *bytes.Reader
	if body == nil {
		rbody = bytes.NewReader([]byte{})
	} else {
		rbody = bytes.NewReader(body)
	}

	req := httptest.NewRequest(method, path, rbody)
	req.SetBasicAuth(benchUser, benchPass)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code, w.Body.Bytes()
}

func BenchmarkHTTP_CreateStatusDownload(b *testing.B) {
	srv := newBenchServer(b)
	createBody, contentType := multipartBody(b, "bench_a.png", "bench_b.png")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		status, resp := doRequest(b, srv.Engine, http.MethodPost, "/api/collage/create", contentType, createBody)
		if status != http.StatusAccepted {
			b.Fatalf("create status %d body=%s", status, string(resp))
		}
		var created struct {
			JobID string `json:"job_id"`
		}
		if err := json.Unmarshal(resp, &created); err != nil || created.JobID == "" {
			b.Fatalf("create parse failed: err=%v body=%s", err, string(resp))
		}

		status, resp = doRequest(b, srv.Engine, http.MethodGet, "/api/collage/status/"+created.JobID, "", nil)
		if status != http.StatusOK {
			b.Fatalf("status %d body=%s", status, string(resp))
		}
		var job domain.Job
		if err := json.Unmarshal(resp, &job); err != nil || job.Status != domain.StatusCompleted {
			b.Fatalf("status parse failed: err=%v body=%s", err, string(resp))
		}

		status, resp = doRequest(b, srv.Engine, http.MethodGet, "/api/collage/download/"+created.JobID, "", nil)
		if status != http.StatusOK {
			b.Fatalf("download status %d body=%s", status, string(resp))
		}
	}
}

func BenchmarkStore_CreateSnapshot(b *testing.B) {
	srv := newBenchServer(b)
	ctx := context.Background()
	cfg := domain.DefaultCollageConfig()
	names := []string{"bench_a.png", "bench_b.png"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		job := srv.Store.Create(ctx, cfg, names)
		snap, err := srv.Store.Snapshot(ctx, job.ID)
		if err != nil {
			b.Fatalf("snapshot: %v", err)
		}
		if snap.Status != domain.StatusCompleted {
			b.Fatalf("snapshot status %s", snap.Status)
		}
	}
}
