package devauth

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/target/jobqueue/internal/ports"
)

func TestProvider_BeginAndExchange(t *testing.T) {
	prov, err := NewProvider(Config{
		Subject: "dev-user",
		Email:   "Dev@Example.com",
		Name:    "Dev",
		Groups:  []string{"jobqueue-admins"},
	})
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prov.now = func() time.Time { return fixed }

	authURL, state, nonce, err := prov.Begin(context.Background(), ports.BeginInput{RedirectURL: "/"})
	if err != nil {
		t.Fatalf("Begin error: %v", err)
	}
	if !strings.HasPrefix(authURL, CallbackPath+"?") {
		t.Fatalf("unexpected authURL: %s", authURL)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse authURL: %v", err)
	}
	if got := u.Query().Get("state"); got != state {
		t.Fatalf("state in URL = %q, want %q", got, state)
	}
	if state == "" || nonce == "" {
		t.Fatal("state and nonce should be generated")
	}

	id, err := prov.Exchange(context.Background(), ports.ExchangeInput{Code: "dev", State: state, Nonce: nonce})
	if err != nil {
		t.Fatalf("Exchange error: %v", err)
	}
	if id.Subject != "dev-user" || id.Email != "dev@example.com" || id.Name != "Dev" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if !id.ExpiresAt.Equal(fixed.Add(8 * time.Hour)) {
		t.Fatalf("ExpiresAt = %v, want default 8h session", id.ExpiresAt)
	}
	if len(id.Groups) != 1 || id.Groups[0] != "jobqueue-admins" {
		t.Fatalf("unexpected groups: %v", id.Groups)
	}

	id.Groups[0] = "mutated"
	again, _ := prov.Exchange(context.Background(), ports.ExchangeInput{Code: "dev"})
	if again.Groups[0] != "jobqueue-admins" {
		t.Fatal("Exchange must not share group slices between callers")
	}
}

func TestNewProvider_Validation(t *testing.T) {
	if _, err := NewProvider(Config{Email: "a@b.c"}); err == nil {
		t.Fatal("expected error without Subject")
	}
	if _, err := NewProvider(Config{Subject: "s"}); err == nil {
		t.Fatal("expected error without Email")
	}
}

func TestProvider_ExchangeRequiresCode(t *testing.T) {
	prov, err := NewProvider(Config{Subject: "s", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	if _, err := prov.Exchange(context.Background(), ports.ExchangeInput{}); err == nil {
		t.Fatal("expected error for empty code")
	}
}
