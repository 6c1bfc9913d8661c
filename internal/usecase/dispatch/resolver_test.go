package dispatch

import (
	"context"
	"sort"
	"testing"

	"notify-broker/internal/domain"
)

func TestResolveSelectedReturnsVerbatim(t *testing.T) {
	store := newStubStore()
	resolver := NewResolver(store)
	ch, _ := enabledChannel("C1", 5)

	opts := domain.DeliveryOptions{Mode: domain.DeliverySelected, RecipientIDs: []string{"x", "unknown", "y"}}
	got, err := resolver.Resolve(context.Background(), ch, opts)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(got) != 3 || got[1] != "unknown" {
		t.Fatalf("ожидали явный список без валидации, получили %v", got)
	}
}

func TestResolveAllReturnsActiveSubscribers(t *testing.T) {
	store := newStubStore()
	ch, subs := enabledChannel("C1", 3)
	store.subscribers["C1"] = subs
	resolver := NewResolver(store)

	got, err := resolver.Resolve(context.Background(), ch, domain.DeliveryOptions{Mode: domain.DeliveryAll})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	sort.Strings(got)
	want := []string{"C1-r1", "C1-r2", "C1-r3"}
	if len(got) != len(want) {
		t.Fatalf("ожидали %d получателей, получили %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ожидали %v, получили %v", want, got)
		}
	}
}

func TestResolveSelectedEmptyFallsBackToAll(t *testing.T) {
	store := newStubStore()
	ch, subs := enabledChannel("C1", 2)
	store.subscribers["C1"] = subs
	resolver := NewResolver(store)

	got, err := resolver.Resolve(context.Background(), ch, domain.DeliveryOptions{Mode: domain.DeliverySelected})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("пустой явный список означает режим all, получили %v", got)
	}
}

func TestResolveLegacyFallback(t *testing.T) {
	store := newStubStore()
	ch, _ := enabledChannel("C1", 0)
	ch.Config = domain.BroadcastConfig{APIToken: "tok", DefaultTo: "U-legacy"}
	resolver := NewResolver(store)

	got, err := resolver.Resolve(context.Background(), ch, domain.DeliveryOptions{Mode: domain.DeliveryAll})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(got) != 1 || got[0] != "U-legacy" {
		t.Fatalf("ожидали legacy-получателя, получили %v", got)
	}
}

func TestResolveEmptyWithoutFallback(t *testing.T) {
	store := newStubStore()
	ch, _ := enabledChannel("C1", 0)
	resolver := NewResolver(store)

	got, err := resolver.Resolve(context.Background(), ch, domain.DeliveryOptions{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("ожидали пустой список, получили %v", got)
	}
}
