package billing

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/StakeSubHQ/StakeSub/app/models"
)

func cryptomusSign(body, key string) string {
	sum := md5.Sum([]byte(base64.StdEncoding.EncodeToString([]byte(body)) + key))
	return hex.EncodeToString(sum[:])
}

func TestCryptomusVerifyCallback(t *testing.T) {
	const key = "payment-key"
	c := &CryptomusProcessor{PaymentKey: key}

	unsigned := `{"uuid":"u-1","order_id":"alice-1700000000000","status":"paid"}`
	sign := cryptomusSign(unsigned, key)
	raw := []byte(`{"uuid":"u-1","order_id":"alice-1700000000000","status":"paid","sign":"` + sign + `"}`)

	if !c.VerifyCallback(raw) {
		t.Fatal("valid payload failed verification")
	}

	tampered := []byte(`{"uuid":"u-1","order_id":"alice-1700000000000","status":"paid_over","sign":"` + sign + `"}`)
	if c.VerifyCallback(tampered) {
		t.Fatal("tampered payload passed verification")
	}

	if c.VerifyCallback([]byte(unsigned)) {
		t.Fatal("payload without sign passed verification")
	}
	if c.VerifyCallback([]byte(`not json`)) {
		t.Fatal("non-JSON payload passed verification")
	}
}

func TestCryptomusVerifyCallback_SignFirst(t *testing.T) {
	// Whitespace and key order are part of the signed bytes, so the sign
	// member must be removable from any position.
	const key = "k2"
	c := &CryptomusProcessor{PaymentKey: key}

	unsigned := `{"status":"fail","order_id":"bob-5","uuid":"u-2"}`
	sign := cryptomusSign(unsigned, key)
	raw := []byte(`{"sign":"` + sign + `",` + unsigned[1:])

	if !c.VerifyCallback(raw) {
		t.Fatal("payload with leading sign member failed verification")
	}
}

func TestCryptomusVerifyCallback_NoKey(t *testing.T) {
	c := &CryptomusProcessor{}
	if c.VerifyCallback([]byte(`{"sign":"x"}`)) {
		t.Fatal("verification must fail without a configured payment key")
	}
}

func TestStripSignField(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		sign string
		want string
	}{
		{"trailing", `{"a":1,"sign":"s1"}`, "s1", `{"a":1}`},
		{"leading", `{"sign":"s1","a":1}`, "s1", `{"a":1}`},
		{"only", `{"sign":"s1"}`, "s1", `{}`},
		{"absent", `{"a":1}`, "s1", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := string(stripSignField([]byte(tt.raw), tt.sign)); got != tt.want {
			t.Fatalf("%s: stripSignField = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestCryptomusParseCallback(t *testing.T) {
	c := &CryptomusProcessor{}

	ev, err := c.ParseCallback([]byte(`{"uuid":"u-9","order_id":"carol-3","status":"wrong_amount"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.OrderNumber != "carol-3" || ev.TxnID != "u-9" || ev.Status != "wrong_amount" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	if _, err := c.ParseCallback([]byte(`{"uuid":"u-9"}`)); err == nil {
		t.Fatal("expected error for payload without order_id")
	}
}

func TestCryptomusNormalizeStatus(t *testing.T) {
	c := &CryptomusProcessor{}
	tests := []struct {
		in   string
		want string
	}{
		{"paid", models.InvoiceStatusPaid},
		{"paid_over", models.InvoiceStatusPaid},
		{"expired", models.InvoiceStatusExpired},
		{"cancel", models.InvoiceStatusCancelled},
		{"fail", models.InvoiceStatusFailed},
		{"system_fail", models.InvoiceStatusFailed},
		{"wrong_amount", models.InvoiceStatusFailed},
		{"check", models.InvoiceStatusPending},
		{"process", models.InvoiceStatusPending},
		{"confirm_check", models.InvoiceStatusPending},
		{"weird", models.InvoiceStatusOther},
	}
	for _, tt := range tests {
		if got := c.NormalizeStatus(tt.in); got != tt.want {
			t.Fatalf("NormalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
