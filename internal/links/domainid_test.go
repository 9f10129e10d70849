package links

import (
	"context"
	"errors"
	"testing"

	"github.com/sundayezeilo/linkhub/internal/errx"
)

func TestDomainResolverCachesLookup(t *testing.T) {
	calls := 0
	store := &mockStore{
		findDomainByHostname: func(_ context.Context, hostname string) (Domain, error) {
			calls++
			if hostname != testDomain.Hostname {
				t.Fatalf("looked up hostname %q, want %q", hostname, testDomain.Hostname)
			}
			return testDomain, nil
		},
	}

	resolver := NewDomainResolver(store, testDomain.Hostname)

	for i := 0; i < 3; i++ {
		id, err := resolver.DomainID(t.Context())
		if err != nil {
			t.Fatalf("DomainID() call %d: %v", i+1, err)
		}
		if id != testDomain.ID {
			t.Fatalf("DomainID() = %s, want %s", id, testDomain.ID)
		}
	}

	if calls != 1 {
		t.Errorf("store queried %d times, want 1", calls)
	}
}

func TestDomainResolverMissingDomain(t *testing.T) {
	store := &mockStore{
		findDomainByHostname: func(context.Context, string) (Domain, error) {
			return Domain{}, notFoundErr("mockStore.FindDomainByHostname")
		},
	}

	resolver := NewDomainResolver(store, "unconfigured.example")

	_, err := resolver.DomainID(t.Context())
	if err == nil {
		t.Fatal("DomainID() succeeded for an unconfigured hostname")
	}
	if got := errx.KindOf(err); got != errx.Internal {
		t.Errorf("error kind = %s, want Internal", got)
	}
	if !errors.Is(err, ErrDomainMissing) {
		t.Errorf("error = %v, want ErrDomainMissing in chain", err)
	}
}

func TestDomainResolverStoreFailure(t *testing.T) {
	store := &mockStore{
		findDomainByHostname: func(context.Context, string) (Domain, error) {
			return Domain{}, unavailableErr("mockStore.FindDomainByHostname")
		},
	}

	resolver := NewDomainResolver(store, testDomain.Hostname)

	_, err := resolver.DomainID(t.Context())
	if err == nil {
		t.Fatal("DomainID() succeeded despite a store failure")
	}
	if got := errx.KindOf(err); got != errx.Unavailable {
		t.Errorf("error kind = %s, want Unavailable", got)
	}
	if errors.Is(err, ErrDomainMissing) {
		t.Error("store failure must not be reported as a missing domain")
	}
}

func TestDomainResolverInvalidate(t *testing.T) {
	calls := 0
	store := &mockStore{
		findDomainByHostname: func(context.Context, string) (Domain, error) {
			calls++
			return testDomain, nil
		},
	}

	resolver := NewDomainResolver(store, testDomain.Hostname)

	if _, err := resolver.DomainID(t.Context()); err != nil {
		t.Fatalf("DomainID(): %v", err)
	}
	resolver.Invalidate()
	if _, err := resolver.DomainID(t.Context()); err != nil {
		t.Fatalf("DomainID() after Invalidate: %v", err)
	}

	if calls != 2 {
		t.Errorf("store queried %d times, want 2 after Invalidate", calls)
	}
}
