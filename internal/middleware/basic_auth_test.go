package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestBasicAuth_OpenWhenUnconfigured(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/jobs", nil)

	BasicAuth("", "")(ctx)

	if ctx.IsAborted() {
		t.Fatal("expected open gate when no username is configured")
	}
}

func TestBasicAuth_RejectsMissingCredentials(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/jobs", nil)

	BasicAuth("admin", "s3cret")(ctx)

	if !ctx.IsAborted() {
		t.Fatal("expected request without credentials to be rejected")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 status, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate challenge header")
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal JSON response: %v", err)
	}
	if body["detail"] != "authentication required" {
		t.Fatalf("expected detail field, got %v", body)
	}
}

func TestBasicAuth_RejectsWrongPassword(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	ctx.Request.SetBasicAuth("admin", "wrong")

	BasicAuth("admin", "s3cret")(ctx)

	if !ctx.IsAborted() {
		t.Fatal("expected wrong password to be rejected")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 status, got %d", rec.Code)
	}
}

func TestBasicAuth_AcceptsValidCredentials(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	ctx.Request.SetBasicAuth("admin", "s3cret")

	BasicAuth("admin", "s3cret")(ctx)

	if ctx.IsAborted() {
		t.Fatal("expected valid credentials to pass")
	}
}
