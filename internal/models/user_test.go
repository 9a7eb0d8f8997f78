package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewUser_NormalizesEmail(t *testing.T) {
	u := NewUser("  Alice@Example.COM ", " Alice ", "hash")

	if u.Email != "alice@example.com" {
		t.Errorf("Expected normalized email, got %q", u.Email)
	}
	if u.Name != "Alice" {
		t.Errorf("Expected trimmed name, got %q", u.Name)
	}
	if u.Watchlist == nil {
		t.Error("Expected empty, non-nil watchlist")
	}
	if u.CreatedAt.IsZero() || u.ID.String() == "" {
		t.Error("Expected ID and timestamps to be set")
	}
}

func TestUser_JSONHidesSecrets(t *testing.T) {
	u := NewUser("bob@example.com", "Bob", "$2a$10$secret")
	u.Reset = &ResetToken{Hash: "deadbeef", ExpiresAt: time.Now()}

	b, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "secret") || strings.Contains(out, "deadbeef") {
		t.Errorf("Serialized user leaks secrets: %s", out)
	}
}

func TestUser_HasAndRemoveSymbol(t *testing.T) {
	u := NewUser("c@example.com", "", "h")
	u.Watchlist = []WatchItem{
		{Symbol: "BTC"},
		{Symbol: "eth"},
		{Symbol: "btc"},
	}

	if !u.HasSymbol("Btc") {
		t.Error("Expected case-insensitive match")
	}
	if u.HasSymbol("sol") {
		t.Error("Did not expect sol")
	}

	if !u.RemoveSymbol("BTC") {
		t.Error("Expected removal to report true")
	}
	if len(u.Watchlist) != 1 || u.Watchlist[0].Symbol != "eth" {
		t.Errorf("Unexpected watchlist after removal: %+v", u.Watchlist)
	}
	if u.RemoveSymbol("doge") {
		t.Error("Removing an absent symbol should report false")
	}
}

func TestUser_CloneIsDeep(t *testing.T) {
	u := NewUser("d@example.com", "", "h")
	u.Watchlist = append(u.Watchlist, WatchItem{Symbol: "BTC"})
	u.Reset = &ResetToken{Hash: "x"}

	c := u.Clone()
	c.Watchlist[0].Symbol = "ETH"
	c.Reset.Hash = "y"

	if u.Watchlist[0].Symbol != "BTC" {
		t.Error("Clone shares watchlist backing array")
	}
	if u.Reset.Hash != "x" {
		t.Error("Clone shares reset token")
	}
}

func TestResetToken_Active(t *testing.T) {
	now := time.Now()
	var nilToken *ResetToken

	if nilToken.Active(now) {
		t.Error("nil token must not be active")
	}
	if (&ResetToken{Hash: "h", ExpiresAt: now.Add(-time.Second)}).Active(now) {
		t.Error("expired token must not be active")
	}
	if !(&ResetToken{Hash: "h", ExpiresAt: now.Add(time.Minute)}).Active(now) {
		t.Error("unexpired token should be active")
	}
}

func TestProfile_Projection(t *testing.T) {
	u := NewUser("e@example.com", "Eve", "h")
	p := u.Profile()

	if p.ID != u.ID || p.Email != u.Email || p.Name != u.Name {
		t.Errorf("Unexpected profile: %+v", p)
	}
}
