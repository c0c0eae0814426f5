package apihttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fieldops-cloud/internal/auth"
	commandsapp "fieldops-cloud/internal/commands/application"
	commands "fieldops-cloud/internal/commands/domain"
	templates "fieldops-cloud/internal/templates/domain"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&templates.ValidationError{Errors: []string{"x"}}, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrap: %w", templates.ErrTemplateNotFound), http.StatusNotFound},
		{commands.ErrCommandNotFound, http.StatusNotFound},
		{templates.ErrTemplateInactive, http.StatusConflict},
		{templates.ErrDefaultTemplate, http.StatusConflict},
		{commandsapp.ErrNotConnected, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: broker", commandsapp.ErrPublishFailed), http.StatusBadGateway},
		{commandsapp.ErrCommandExpired, http.StatusBadRequest},
		{auth.ErrForbidden, http.StatusForbidden},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestWriteErrorIncludesValidationErrors(t *testing.T) {
	resp := httptest.NewRecorder()
	WriteError(resp, &templates.ValidationError{Errors: []string{"Variable 'HighLimit' is used but not defined"}})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
	var body ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Errors) != 1 || body.Error != "validation failed" {
		t.Fatalf("unexpected body: %+v", body)
	}

	internal := httptest.NewRecorder()
	WriteError(internal, errors.New("pq: password authentication failed"))
	if internal.Body.String() == "" || internal.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected internal response")
	}
}

type stubConnectivity struct {
	connected bool
}

func (s stubConnectivity) Connected() bool { return s.connected }
func (s stubConnectivity) InFlight() int { return 3 }

func TestHealthHandler(t *testing.T) {
	up := httptest.NewRecorder()
	NewHealthHandler(nil, stubConnectivity{connected: true}).ServeHTTP(up, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if up.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", up.Code)
	}
	var body healthResponse
	_ = json.NewDecoder(up.Body).Decode(&body)
	if body.MQTT != "connected" || body.InFlight != 3 {
		t.Fatalf("unexpected body: %+v", body)
	}

	down := httptest.NewRecorder()
	NewHealthHandler(nil, stubConnectivity{}).ServeHTTP(down, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if down.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", down.Code)
	}
}
