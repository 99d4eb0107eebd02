package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("ошибка декодирования: %v", err)
	}
	return body.Error
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		write    func(w http.ResponseWriter)
		wantCode int
		wantErr  string
	}{
		{"validation", func(w http.ResponseWriter) { ValidationError(w, "x") }, http.StatusBadRequest, CodeValidationError},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "x") }, http.StatusNotFound, CodeNotFound},
		{"unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "x") }, http.StatusUnauthorized, CodeUnauthorized},
		{"forbidden", func(w http.ResponseWriter) { Forbidden(w, "x") }, http.StatusForbidden, CodeForbidden},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "x") }, http.StatusConflict, CodeConflict},
		{"transition", func(w http.ResponseWriter) { InvalidTransition(w, "x") }, http.StatusConflict, CodeInvalidTransition},
		{"idp", func(w http.ResponseWriter) { IDPUnavailable(w, "x") }, http.StatusBadGateway, CodeIDPUnavailable},
		{"rate", func(w http.ResponseWriter) { TooManyRequests(w, "x") }, http.StatusTooManyRequests, CodeTooManyRequests},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "x") }, http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.wantCode {
				t.Errorf("статус = %d, ожидался %d", rec.Code, tt.wantCode)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if got := decode(t, rec); got.Code != tt.wantErr || got.Message != "x" {
				t.Errorf("тело = %+v, ожидался код %s", got, tt.wantErr)
			}
		})
	}
}

func TestPartialSync(t *testing.T) {
	rec := httptest.NewRecorder()
	PartialSync(rec, "Keycloak недоступен", "ok", "failed")

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("статус = %d, ожидался 502", rec.Code)
	}
	got := decode(t, rec)
	if got.Code != CodePartialSync {
		t.Errorf("код = %q", got.Code)
	}
	if got.Details["relational"] != "ok" || got.Details["identity"] != "failed" {
		t.Errorf("details = %v", got.Details)
	}
}
