package billing

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/StakeSubHQ/StakeSub/app/models"
)

func plisioSign(t *testing.T, secret, canonical string) string {
	t.Helper()
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPlisioVerifyCallback(t *testing.T) {
	const secret = "test-secret"
	p := &PlisioProcessor{SecretKey: secret}

	// The signed bytes are the payload without verify_hash, keys ascending,
	// compact JSON. Written out by hand so the test does not depend on the
	// canonicalizer under test.
	canonical := `{"amount":"19.99","currency":"BTC","order_number":"alice-1700000000000","source_rate":1.5,"status":"completed","txn_id":"tx-1"}`
	hash := plisioSign(t, secret, canonical)

	// Deliver with scrambled key order and the hash inserted mid-object.
	raw := []byte(`{"txn_id":"tx-1","verify_hash":"` + hash + `","status":"completed","order_number":"alice-1700000000000","currency":"BTC","source_rate":1.5,"amount":"19.99"}`)

	if !p.VerifyCallback(raw) {
		t.Fatal("valid payload failed verification")
	}

	tampered := []byte(`{"txn_id":"tx-1","verify_hash":"` + hash + `","status":"completed","order_number":"alice-1700000000000","currency":"BTC","source_rate":1.5,"amount":"29.99"}`)
	if p.VerifyCallback(tampered) {
		t.Fatal("tampered payload passed verification")
	}

	wrongHash := []byte(`{"txn_id":"tx-1","verify_hash":"deadbeef","status":"completed","order_number":"alice-1700000000000","currency":"BTC","source_rate":1.5,"amount":"19.99"}`)
	if p.VerifyCallback(wrongHash) {
		t.Fatal("wrong hash passed verification")
	}
}

func TestPlisioVerifyCallback_MissingHash(t *testing.T) {
	p := &PlisioProcessor{SecretKey: "s"}
	if p.VerifyCallback([]byte(`{"status":"completed"}`)) {
		t.Fatal("payload without verify_hash passed verification")
	}
	if p.VerifyCallback([]byte(`not json`)) {
		t.Fatal("non-JSON payload passed verification")
	}
}

func TestPlisioVerifyCallback_NoSecret(t *testing.T) {
	p := &PlisioProcessor{}
	if p.VerifyCallback([]byte(`{"verify_hash":"x"}`)) {
		t.Fatal("verification must fail without a configured secret")
	}
}

func TestPlisioCanonicalPayload(t *testing.T) {
	raw := []byte(`{"b":2,"verify_hash":"h","a":"x&y","c":1.50}`)
	canonical, hash, err := plisioCanonicalPayload(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash != "h" {
		t.Fatalf("verify_hash = %q, want %q", hash, "h")
	}
	// Keys sorted, numeric literals untouched, no HTML escaping.
	want := `{"a":"x&y","b":2,"c":1.50}`
	if string(canonical) != want {
		t.Fatalf("canonical = %s, want %s", canonical, want)
	}
	if !json.Valid(canonical) {
		t.Fatalf("canonical payload is not valid JSON: %s", canonical)
	}
}

func TestPlisioParseCallback(t *testing.T) {
	p := &PlisioProcessor{}

	ev, err := p.ParseCallback([]byte(`{"txn_id":"t1","order_number":"bob-1","status":"expired"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.OrderNumber != "bob-1" || ev.TxnID != "t1" || ev.Status != "expired" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	if _, err := p.ParseCallback([]byte(`{"txn_id":"t1"}`)); err == nil {
		t.Fatal("expected error for payload without order_number")
	}
}

func TestPlisioNormalizeStatus(t *testing.T) {
	p := &PlisioProcessor{}
	tests := []struct {
		in   string
		want string
	}{
		{"completed", models.InvoiceStatusPaid},
		{"mismatch", models.InvoiceStatusPaid},
		{"Completed", models.InvoiceStatusPaid},
		{"expired", models.InvoiceStatusExpired},
		{"cancelled", models.InvoiceStatusCancelled},
		{"error", models.InvoiceStatusFailed},
		{"new", models.InvoiceStatusPending},
		{"pending", models.InvoiceStatusPending},
		{"pending internal", models.InvoiceStatusPending},
		{"something else", models.InvoiceStatusOther},
	}
	for _, tt := range tests {
		if got := p.NormalizeStatus(tt.in); got != tt.want {
			t.Fatalf("NormalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlisioCallbackURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://x.test/plisio-callback", "https://x.test/plisio-callback?json=true"},
		{"https://x.test/cb?a=1", "https://x.test/cb?a=1&json=true"},
		{"https://x.test/cb?json=true", "https://x.test/cb?json=true"},
	}
	for _, tt := range tests {
		if got := plisioCallbackURL(tt.in); got != tt.want {
			t.Fatalf("plisioCallbackURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
