package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/apssouza22/keyfetch/internal/core/domain"
	"github.com/apssouza22/keyfetch/internal/retry"
)

type stubLookup struct {
	key *domain.PublicKey
	err error
}

func (s *stubLookup) LookupKey(context.Context, domain.Fingerprint) (*domain.PublicKey, error) {
	return s.key, s.err
}

func serve(t *testing.T, lookup KeyLookup, path string) *httptest.ResponseRecorder {
	t.Helper()
	s := NewServer(lookup, 0, slog.New(slog.DiscardHandler))
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

const testPath = "/v1/keys/BCF4173966770193E0C5C7A6B16F6E0A4FB3BC05"

func TestHandleKeyFound(t *testing.T) {
	key := &domain.PublicKey{
		Fingerprint: "BCF4173966770193E0C5C7A6B16F6E0A4FB3BC05",
		KeyID:       "B16F6E0A4FB3BC05",
		Armored:     "-----BEGIN PGP PUBLIC KEY BLOCK-----",
		Source:      "keyserver.ubuntu.com",
		FetchedAt:   time.Now(),
	}
	rec := serve(t, &stubLookup{key: key}, testPath)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got domain.PublicKey
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Fingerprint != key.Fingerprint || got.Source != key.Source {
		t.Errorf("body = %+v, want the looked-up key", got)
	}
}

func TestHandleKeyStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"invalid fingerprint", "/v1/keys/nope", nil, 400},
		{"not found", testPath, domain.ErrKeyNotFound, 404},
		{"budget exhausted", testPath, &retry.BudgetExhaustedError{Description: "pgp key", Attempts: 30}, 504},
		{"other failure", testPath, context.DeadlineExceeded, 502},
	}

	for _, tt := range tests {
		rec := serve(t, &stubLookup{err: tt.err}, tt.path)
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
}

func TestHandleHealth(t *testing.T) {
	rec := serve(t, &stubLookup{}, "/health")
	if rec.Code != 200 {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}
