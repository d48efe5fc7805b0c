package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/StakeSubHQ/StakeSub/app/models"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/env"
)

const defaultPlisioAPIBaseURL = "https://plisio.net/api/v1"

// PlisioProcessor integrates the Plisio hosted invoice API. Callbacks are
// authenticated with an HMAC-SHA1 verify_hash over the canonically
// re-serialized payload.
type PlisioProcessor struct {
	APIKey     string
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewPlisioFromEnv() *PlisioProcessor {
	return &PlisioProcessor{
		APIKey:     strings.TrimSpace(env.GetEnv("PLISIO_API_KEY", "")),
		SecretKey:  strings.TrimSpace(env.GetEnv("PLISIO_SECRET_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("PLISIO_API_BASE_URL", defaultPlisioAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (p *PlisioProcessor) Name() string {
	return "plisio"
}

func (p *PlisioProcessor) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, errors.New("PLISIO_API_KEY is not configured")
	}

	u, err := url.Parse(strings.TrimRight(p.APIBaseURL, "/") + "/invoices/new")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("source_currency", "USD")
	q.Set("source_amount", req.Amount.StringFixed(2))
	q.Set("currency", req.Currency)
	q.Set("order_number", req.OrderNumber)
	q.Set("order_name", req.OrderName)
	q.Set("email", "customer@example.com")
	q.Set("callback_url", plisioCallbackURL(req.CallbackURL))
	q.Set("api_key", p.APIKey)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("plisio invoice request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		Status string `json:"status"`
		Data   struct {
			TxnID      string `json:"txn_id"`
			InvoiceURL string `json:"invoice_url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if out.Status != "success" {
		return nil, fmt.Errorf("plisio invoice creation was not successful: status=%s", out.Status)
	}
	if strings.TrimSpace(out.Data.TxnID) == "" {
		return nil, errors.New("plisio invoice response is missing txn_id")
	}

	return &Charge{TxnID: out.Data.TxnID, HostedURL: out.Data.InvoiceURL}, nil
}

// VerifyCallback checks the payload's verify_hash: all fields except
// verify_hash, keys sorted ascending, serialized to compact JSON and signed
// with HMAC-SHA1 under the shared secret.
func (p *PlisioProcessor) VerifyCallback(raw []byte) bool {
	if strings.TrimSpace(p.SecretKey) == "" {
		return false
	}
	canonical, verifyHash, err := plisioCanonicalPayload(raw)
	if err != nil {
		return false
	}

	mac := hmac.New(sha1.New, []byte(p.SecretKey))
	mac.Write(canonical)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(verifyHash)))
}

func (p *PlisioProcessor) ParseCallback(raw []byte) (*CallbackEvent, error) {
	var payload struct {
		TxnID       string `json:"txn_id"`
		OrderNumber string `json:"order_number"`
		Status      string `json:"status"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	if payload.OrderNumber == "" || payload.Status == "" {
		return nil, errors.New("plisio callback is missing order_number or status")
	}
	return &CallbackEvent{
		OrderNumber: payload.OrderNumber,
		TxnID:       payload.TxnID,
		Status:      payload.Status,
	}, nil
}

// NormalizeStatus maps Plisio status tokens onto the internal invoice enum.
// "mismatch" means paid with a different-than-requested amount and still
// entitles the customer.
func (p *PlisioProcessor) NormalizeStatus(processorStatus string) string {
	switch strings.ToLower(strings.TrimSpace(processorStatus)) {
	case "completed", "mismatch":
		return models.InvoiceStatusPaid
	case "expired":
		return models.InvoiceStatusExpired
	case "cancelled":
		return models.InvoiceStatusCancelled
	case "error":
		return models.InvoiceStatusFailed
	case "new", "pending", "pending internal":
		return models.InvoiceStatusPending
	default:
		return models.InvoiceStatusOther
	}
}

// plisioCallbackURL requests the JSON callback variant; without json=true
// Plisio posts form-encoded bodies that the verifier cannot re-serialize.
func plisioCallbackURL(callbackURL string) string {
	if strings.Contains(callbackURL, "json=true") {
		return callbackURL
	}
	sep := "?"
	if strings.Contains(callbackURL, "?") {
		sep = "&"
	}
	return callbackURL + sep + "json=true"
}

// plisioCanonicalPayload re-serializes the payload the way Plisio signs it.
// Decoding with UseNumber keeps numeric literals byte-identical, and Go's
// map marshaling already emits keys in ascending order. HTML escaping must
// be off or URLs in the payload would change the signed bytes.
func plisioCanonicalPayload(raw []byte) ([]byte, string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, "", err
	}

	verifyHash, ok := payload["verify_hash"].(string)
	if !ok || verifyHash == "" {
		return nil, "", errors.New("callback payload is missing verify_hash")
	}
	delete(payload, "verify_hash")

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, "", err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), verifyHash, nil
}
