package httpapi

import (
	"errors"
	"testing"
	"time"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/store"
)

func TestSessionManagerRoundTrip(t *testing.T) {
	manager := NewSessionManager(testSecret, time.Hour, []string{"heba"})

	resp, err := manager.Issue(domain.SessionRequest{Employee: " heba ", StoreType: domain.StoreTypeOnline})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	actor, err := manager.Parse(resp.Token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if actor.Employee != "heba" || actor.StoreType != domain.StoreTypeOnline {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestSessionManagerRejectsBadSelections(t *testing.T) {
	manager := NewSessionManager(testSecret, time.Hour, []string{"heba"})

	if _, err := manager.Issue(domain.SessionRequest{Employee: "heba", StoreType: "warehouse"}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for store type, got %v", err)
	}
	if _, err := manager.Issue(domain.SessionRequest{Employee: "", StoreType: domain.StoreTypeBoutique}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for blank employee, got %v", err)
	}
}

func TestSessionManagerRejectsExpiredAndForeignTokens(t *testing.T) {
	manager := NewSessionManager(testSecret, time.Minute, []string{"heba"})
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return issuedAt }

	resp, err := manager.Issue(domain.SessionRequest{Employee: "heba", StoreType: domain.StoreTypeBoutique})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	manager.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := manager.Parse(resp.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}

	other := NewSessionManager("another-secret-0123456789abcdefgh", time.Hour, []string{"heba"})
	fresh, err := other.Issue(domain.SessionRequest{Employee: "heba", StoreType: domain.StoreTypeBoutique})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	manager.now = time.Now
	if _, err := manager.Parse(fresh.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected foreign signature to be rejected, got %v", err)
	}

	retired := NewSessionManager(testSecret, time.Hour, []string{"hadeel"})
	own, err := NewSessionManager(testSecret, time.Hour, []string{"heba"}).Issue(domain.SessionRequest{Employee: "heba", StoreType: domain.StoreTypeBoutique})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := retired.Parse(own.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected employee outside the roster to be rejected, got %v", err)
	}
}
