package apiserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// These cases all fail validation before touching the store, so a nil
// *store.OutboxRepository is safe to exercise them against.
func TestHandleEnqueueRejectsMalformedBody(t *testing.T) {
	s := New(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/outbox", strings.NewReader("not json"))
	rr := httptest.NewRecorder()

	s.handleEnqueue(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleListRejectsInvalidStatus(t *testing.T) {
	s := New(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/outbox?status=bogus", nil)
	rr := httptest.NewRecorder()

	s.handleList(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleListRejectsOutOfRangeLimit(t *testing.T) {
	s := New(nil, nil)

	cases := []string{"0", "201", "abc"}
	for _, limit := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/outbox?limit="+limit, nil)
		rr := httptest.NewRecorder()

		s.handleList(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: expected 400, got %d", limit, rr.Code)
		}
	}
}

func TestHandleListRejectsNegativeOffset(t *testing.T) {
	s := New(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/outbox?offset=-1", nil)
	rr := httptest.NewRecorder()

	s.handleList(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleOutboxItemRejectsInvalidUUID(t *testing.T) {
	s := New(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/outbox/not-a-uuid", nil)
	rr := httptest.NewRecorder()

	s.handleOutboxItem(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleOutboxItemRejectsWrongMethod(t *testing.T) {
	s := New(nil, nil)

	req := httptest.NewRequest(http.MethodDelete, "/v1/outbox/"+strings.Repeat("a", 36), nil)
	rr := httptest.NewRecorder()

	s.handleOutboxItem(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
