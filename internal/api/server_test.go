package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atsv3/resilience-core/internal/breaker"
	"github.com/atsv3/resilience-core/internal/domain"
	"github.com/atsv3/resilience-core/internal/executor"
	"github.com/atsv3/resilience-core/internal/failover"
	"github.com/atsv3/resilience-core/internal/health"
	"github.com/atsv3/resilience-core/internal/recorder"
	"github.com/atsv3/resilience-core/internal/repo"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *repo.InMemoryUserRepo, *failover.Controller) {
	t.Helper()
	users := repo.NewInMemoryUserRepo()
	devices := repo.NewInMemoryDeviceRepo()
	prober := health.NewProber(health.DefaultThresholds(), nil, discardLogger())
	fc := failover.NewController(nil, discardLogger(), time.Minute)
	breakers := breaker.NewManager(breaker.DefaultSettings(), nil)
	exec := executor.New(breakers, fc, discardLogger())
	rec := recorder.New(repo.NewInMemoryTimeSeriesRepo(), discardLogger(), recorder.WithMode(recorder.ModeImmediate))
	s := NewServer(users, devices, prober, fc, breakers, exec, rec, discardLogger())
	return s, users, fc
}

func TestServer_Healthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestServer_RegisterExchangeThenListHealth(t *testing.T) {
	s, _, _ := newTestServer(t)

	body := bytes.NewBufferString(`{"priority": 10}`)
	req := httptest.NewRequest(http.MethodPost, "/exchanges/kraken/register", body)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", rr.Code, rr.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodGet, "/exchanges/", nil)
	rr2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rr2, req2)

	if rr2.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr2.Code)
	}
}

func TestServer_ManualFailoverRejectsUnregisteredExchange(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/exchanges/nope/failover", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 for an unregistered target", rr.Code)
	}
}

func TestServer_PutThenGetProfile(t *testing.T) {
	s, _, _ := newTestServer(t)

	profile := domain.DefaultUserProfile("u1")
	payload, _ := json.Marshal(profile)

	putReq := httptest.NewRequest(http.MethodPut, "/users/u1/", bytes.NewReader(payload))
	putRR := httptest.NewRecorder()
	s.Router().ServeHTTP(putRR, putReq)
	if putRR.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200, body=%s", putRR.Code, putRR.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/users/u1/", nil)
	getRR := httptest.NewRecorder()
	s.Router().ServeHTTP(getRR, getReq)
	if getRR.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", getRR.Code)
	}

	var got domain.UserProfile
	if err := json.Unmarshal(getRR.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.UserID != "u1" {
		t.Fatalf("UserID = %q, want u1", got.UserID)
	}
}

func TestServer_GetProfileNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/users/ghost/", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestServer_DeleteProfile(t *testing.T) {
	s, users, _ := newTestServer(t)
	_ = users.Save(context.Background(), domain.DefaultUserProfile("u1"))

	req := httptest.NewRequest(http.MethodDelete, "/users/u1/", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}

	_, ok, _ := users.Load(context.Background(), "u1")
	if ok {
		t.Fatal("profile should be gone after delete")
	}
}

func TestServer_RegisterDevice(t *testing.T) {
	s, _, _ := newTestServer(t)

	payload, _ := json.Marshal(domain.Device{DeviceID: "d1", Token: "tok", Kind: domain.DeviceIOS})
	req := httptest.NewRequest(http.MethodPost, "/users/u1/devices", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", rr.Code, rr.Body.String())
	}
}

func TestServer_CircuitReset(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/exchanges/kraken/circuit/reset", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}
