package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/saturn/internal/upstreamtest"
	"mercator-hq/saturn/pkg/auth"
	"mercator-hq/saturn/pkg/proxy/types"
	"mercator-hq/saturn/pkg/usage"
)

func TestAdminHandler_RequireAdmin(t *testing.T) {
	backend := upstreamtest.NewBackend("llama-3-8b")
	defer backend.Close()

	handler := NewAdminHandler(newTestRuntime(t, backend))

	tests := []struct {
		name       string
		method     string
		identity   *auth.Identity
		serve      func(http.ResponseWriter, *http.Request)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing identity",
			method:     http.MethodGet,
			identity:   nil,
			serve:      handler.Endpoints,
			wantStatus: http.StatusUnauthorized,
			wantCode:   types.CodeInvalidAPIKey,
		},
		{
			name:       "non-admin identity",
			method:     http.MethodGet,
			identity:   researcherIdentity(),
			serve:      handler.Endpoints,
			wantStatus: http.StatusForbidden,
			wantCode:   types.CodeAdminRequired,
		},
		{
			name:       "wrong method on a read route",
			method:     http.MethodPost,
			identity:   adminIdentity(),
			serve:      handler.Endpoints,
			wantStatus: http.StatusMethodNotAllowed,
			wantCode:   types.CodeMethodNotAllowed,
		},
		{
			name:       "wrong method on reload",
			method:     http.MethodGet,
			identity:   adminIdentity(),
			serve:      handler.Reload,
			wantStatus: http.StatusMethodNotAllowed,
			wantCode:   types.CodeMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authedRequest(tt.method, "/admin/test", tt.identity, nil)
			rec := httptest.NewRecorder()
			tt.serve(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			detail := decodeErrorEnvelope(t, rec)
			if detail.Code != tt.wantCode {
				t.Errorf("Expected code '%s', got '%s'", tt.wantCode, detail.Code)
			}
		})
	}
}

func TestAdminHandler_EndpointsReportsBreakerState(t *testing.T) {
	backend := upstreamtest.NewBackend("llama-3-8b")
	defer backend.Close()

	rt := newTestRuntime(t, backend)
	rt.discovery.Refresh(context.Background(), rt.pool.Endpoints())
	handler := NewAdminHandler(rt)

	key := rt.pool.Endpoints()[0].Key()
	for i := 0; i < 3; i++ {
		rt.health.ReportFailure(key)
	}

	req := authedRequest(http.MethodGet, "/admin/endpoints", adminIdentity(), nil)
	rec := httptest.NewRecorder()
	handler.Endpoints(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Endpoints []struct {
			Endpoint      string    `json:"endpoint"`
			Group         string    `json:"group"`
			BaseURL       string    `json:"base_url"`
			Available     bool      `json:"available"`
			Failures      int64     `json:"failures"`
			CooldownUntil time.Time `json:"cooldown_until"`
			Model         string    `json:"model"`
		} `json:"endpoints"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding endpoints response: %v", err)
	}
	if payload.Count != 1 {
		t.Fatalf("Expected 1 endpoint, got %d", payload.Count)
	}

	row := payload.Endpoints[0]
	if row.Endpoint != key {
		t.Errorf("Expected endpoint %s, got %s", key, row.Endpoint)
	}
	if row.Group != "pool-0" {
		t.Errorf("Expected group 'pool-0', got '%s'", row.Group)
	}
	if row.BaseURL != backend.URL() {
		t.Errorf("Expected base URL %s, got %s", backend.URL(), row.BaseURL)
	}
	if row.Available {
		t.Error("Expected the endpoint to be unavailable after tripping the breaker")
	}
	if row.Failures != 3 {
		t.Errorf("Expected 3 failures, got %d", row.Failures)
	}
	if row.CooldownUntil.IsZero() {
		t.Error("Expected a cooldown deadline on a tripped endpoint")
	}
	if row.Model != "llama-3-8b" {
		t.Errorf("Expected discovered model 'llama-3-8b', got '%s'", row.Model)
	}
}

func TestAdminHandler_HealthSnapshot(t *testing.T) {
	backend := upstreamtest.NewBackend("llama-3-8b")
	defer backend.Close()

	rt := newTestRuntime(t, backend)
	handler := NewAdminHandler(rt)

	key := rt.pool.Endpoints()[0].Key()
	rt.health.ReportFailure(key)

	req := authedRequest(http.MethodGet, "/admin/health", adminIdentity(), nil)
	rec := httptest.NewRecorder()
	handler.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var payload struct {
		Endpoints map[string]struct {
			Failures  int64 `json:"failures"`
			Available bool  `json:"available"`
		} `json:"endpoints"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}

	entry, ok := payload.Endpoints[key]
	if !ok {
		t.Fatalf("Expected a health entry for %s, got %v", key, payload.Endpoints)
	}
	if entry.Failures != 1 {
		t.Errorf("Expected 1 failure, got %d", entry.Failures)
	}
	if !entry.Available {
		t.Error("Expected the endpoint to remain available below the threshold")
	}
}

func TestAdminHandler_UsageLimitValidation(t *testing.T) {
	backend := upstreamtest.NewBackend("llama-3-8b")
	defer backend.Close()

	handler := NewAdminHandler(newTestRuntime(t, backend))

	for _, limit := range []string{"abc", "0", "-5"} {
		req := authedRequest(http.MethodGet, "/admin/usage?limit="+limit, adminIdentity(), nil)
		rec := httptest.NewRecorder()
		handler.Usage(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for limit %q, got %d", limit, rec.Code)
			continue
		}
		detail := decodeErrorEnvelope(t, rec)
		if detail.Param != "limit" {
			t.Errorf("Expected param 'limit', got '%s'", detail.Param)
		}
	}
}

func TestAdminHandler_UsageReturnsRecords(t *testing.T) {
	backend := upstreamtest.NewBackend("llama-3-8b")
	defer backend.Close()

	rt := newTestRuntime(t, backend)
	handler := NewAdminHandler(rt)

	now := time.Now()
	rt.recorder.Record(usage.Record{ID: "rec-1", Time: now.Add(-time.Minute), Route: "/v1/completions", Status: 200})
	rt.recorder.Record(usage.Record{ID: "rec-2", Time: now, Route: "/v1/completions", Status: 200})

	upstreamtest.WaitForCondition(t, 2*time.Second, func() bool {
		records, err := rt.recorder.Recent(context.Background(), 5)
		return err == nil && len(records) == 2
	}, "usage records were not written")

	req := authedRequest(http.MethodGet, "/admin/usage", adminIdentity(), nil)
	rec := httptest.NewRecorder()
	handler.Usage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var payload struct {
		Records []struct {
			ID string `json:"id"`
		} `json:"records"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding usage response: %v", err)
	}
	if payload.Count != 2 {
		t.Fatalf("Expected 2 records, got %d", payload.Count)
	}
	if payload.Records[0].ID != "rec-2" {
		t.Errorf("Expected the newest record first, got '%s'", payload.Records[0].ID)
	}

	// The limit parameter narrows the window.
	req = authedRequest(http.MethodGet, "/admin/usage?limit=1", adminIdentity(), nil)
	rec = httptest.NewRecorder()
	handler.Usage(rec, req)

	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding limited usage response: %v", err)
	}
	if payload.Count != 1 {
		t.Errorf("Expected 1 record with limit=1, got %d", payload.Count)
	}
}

func TestAdminHandler_UsageFilters(t *testing.T) {
	backend := upstreamtest.NewBackend("llama-3-8b")
	defer backend.Close()

	rt := newTestRuntime(t, backend)
	handler := NewAdminHandler(rt)

	// UTC keeps the RFC 3339 since value free of a "+" zone offset,
	// which a query string would decode as a space.
	base := time.Now().UTC().Add(-time.Hour)
	rt.recorder.Record(usage.Record{ID: "rec-a", Time: base, Model: "llama-3-8b", Groups: []string{"research"}, Status: 200})
	rt.recorder.Record(usage.Record{ID: "rec-b", Time: base.Add(10 * time.Minute), Model: "qwen-72b", Groups: []string{"ops"}, Status: 200})
	rt.recorder.Record(usage.Record{ID: "rec-c", Time: base.Add(20 * time.Minute), Model: "llama-3-8b", Groups: []string{"research", "ops"}, Status: 200})

	upstreamtest.WaitForCondition(t, 2*time.Second, func() bool {
		records, err := rt.recorder.Recent(context.Background(), 5)
		return err == nil && len(records) == 3
	}, "usage records were not written")

	tests := []struct {
		name string
		path string
		want []string
	}{
		{"model", "/admin/usage?model=llama-3-8b", []string{"rec-c", "rec-a"}},
		{"group", "/admin/usage?group=ops", []string{"rec-c", "rec-b"}},
		{"since", "/admin/usage?since=" + base.Add(5*time.Minute).Format(time.RFC3339), []string{"rec-c", "rec-b"}},
		{"model and group", "/admin/usage?model=llama-3-8b&group=ops", []string{"rec-c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authedRequest(http.MethodGet, tt.path, adminIdentity(), nil)
			rec := httptest.NewRecorder()
			handler.Usage(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
			}
			var payload struct {
				Records []struct {
					ID string `json:"id"`
				} `json:"records"`
				Count int `json:"count"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
				t.Fatalf("decoding usage response: %v", err)
			}
			if payload.Count != len(tt.want) {
				t.Fatalf("Expected %d records, got %d", len(tt.want), payload.Count)
			}
			for i, id := range tt.want {
				if payload.Records[i].ID != id {
					t.Errorf("Expected record '%s' at position %d, got '%s'", id, i, payload.Records[i].ID)
				}
			}
		})
	}

	// A malformed timestamp is rejected before the store is consulted.
	req := authedRequest(http.MethodGet, "/admin/usage?since=yesterday", adminIdentity(), nil)
	rec := httptest.NewRecorder()
	handler.Usage(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400 for a malformed since, got %d", rec.Code)
	}
	detail := decodeErrorEnvelope(t, rec)
	if detail.Param != "since" {
		t.Errorf("Expected param 'since', got '%s'", detail.Param)
	}
}

func TestAdminHandler_ReloadSuccess(t *testing.T) {
	backend := upstreamtest.NewBackend("llama-3-8b")
	defer backend.Close()

	rt := newTestRuntime(t, backend)
	handler := NewAdminHandler(rt)

	req := authedRequest(http.MethodPost, "/admin/reload", adminIdentity(), nil)
	rec := httptest.NewRecorder()
	handler.Reload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Status    string `json:"status"`
		Endpoints int    `json:"endpoints"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding reload response: %v", err)
	}
	if payload.Status != "reloaded" {
		t.Errorf("Expected status 'reloaded', got '%s'", payload.Status)
	}
	if payload.Endpoints != 1 {
		t.Errorf("Expected 1 endpoint, got %d", payload.Endpoints)
	}
	if got := rt.reloads.Load(); got != 1 {
		t.Errorf("Expected 1 reload call, got %d", got)
	}
}

func TestAdminHandler_ReloadFailure(t *testing.T) {
	backend := upstreamtest.NewBackend("llama-3-8b")
	defer backend.Close()

	rt := newTestRuntime(t, backend)
	rt.reloadErr = errors.New("config file is broken")
	handler := NewAdminHandler(rt)

	req := authedRequest(http.MethodPost, "/admin/reload", adminIdentity(), nil)
	rec := httptest.NewRecorder()
	handler.Reload(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", rec.Code)
	}
	detail := decodeErrorEnvelope(t, rec)
	if detail.Code != types.CodeInternalError {
		t.Errorf("Expected code '%s', got '%s'", types.CodeInternalError, detail.Code)
	}
	if !strings.Contains(detail.Message, "config file is broken") {
		t.Errorf("Expected the reload error in the message, got '%s'", detail.Message)
	}
}
