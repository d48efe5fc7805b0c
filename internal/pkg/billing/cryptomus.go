package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/StakeSubHQ/StakeSub/app/models"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/env"
)

const defaultCryptomusAPIBaseURL = "https://api.cryptomus.com/v1"

// CryptomusProcessor integrates the Cryptomus payment API. Both outbound
// requests and inbound callbacks are signed with
// md5(base64(json body) + payment key).
type CryptomusProcessor struct {
	MerchantID string
	PaymentKey string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewCryptomusFromEnv() *CryptomusProcessor {
	return &CryptomusProcessor{
		MerchantID: strings.TrimSpace(env.GetEnv("CRYPTOMUS_MERCHANT_ID", "")),
		PaymentKey: strings.TrimSpace(env.GetEnv("CRYPTOMUS_PAYMENT_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("CRYPTOMUS_API_BASE_URL", defaultCryptomusAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *CryptomusProcessor) Name() string {
	return "cryptomus"
}

func (c *CryptomusProcessor) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if c.MerchantID == "" || c.PaymentKey == "" {
		return nil, errors.New("CRYPTOMUS_MERCHANT_ID/CRYPTOMUS_PAYMENT_KEY are not configured")
	}

	body, err := json.Marshal(map[string]string{
		"amount":       req.Amount.StringFixed(2),
		"currency":     "USD",
		"to_currency":  req.Currency,
		"order_id":     req.OrderNumber,
		"url_callback": req.CallbackURL,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.APIBaseURL, "/")+"/payment", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("merchant", c.MerchantID)
	httpReq.Header.Set("sign", c.sign(body))

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cryptomus payment request failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var out struct {
		State  int `json:"state"`
		Result struct {
			UUID string `json:"uuid"`
			URL  string `json:"url"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	if out.State != 0 {
		return nil, fmt.Errorf("cryptomus payment creation was not successful: state=%d", out.State)
	}
	if strings.TrimSpace(out.Result.UUID) == "" {
		return nil, errors.New("cryptomus payment response is missing uuid")
	}

	return &Charge{TxnID: out.Result.UUID, HostedURL: out.Result.URL}, nil
}

// VerifyCallback validates the payload's sign field. The signature covers
// the raw body with the sign member removed, so the remaining bytes must be
// kept exactly as received: key order and whitespace are part of the digest.
func (c *CryptomusProcessor) VerifyCallback(raw []byte) bool {
	if c.PaymentKey == "" {
		return false
	}

	var payload struct {
		Sign string `json:"sign"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return false
	}
	if payload.Sign == "" {
		return false
	}

	unsigned := stripSignField(raw, payload.Sign)
	expected := c.sign(unsigned)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(payload.Sign)))
}

func (c *CryptomusProcessor) ParseCallback(raw []byte) (*CallbackEvent, error) {
	var payload struct {
		UUID    string `json:"uuid"`
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	if payload.OrderID == "" || payload.Status == "" {
		return nil, errors.New("cryptomus callback is missing order_id or status")
	}
	return &CallbackEvent{
		OrderNumber: payload.OrderID,
		TxnID:       payload.UUID,
		Status:      payload.Status,
	}, nil
}

// NormalizeStatus maps Cryptomus status tokens onto the internal enum.
// paid_over means the customer overpaid and still entitles them.
func (c *CryptomusProcessor) NormalizeStatus(processorStatus string) string {
	switch strings.ToLower(strings.TrimSpace(processorStatus)) {
	case "paid", "paid_over":
		return models.InvoiceStatusPaid
	case "expired":
		return models.InvoiceStatusExpired
	case "cancel":
		return models.InvoiceStatusCancelled
	case "fail", "system_fail", "wrong_amount":
		return models.InvoiceStatusFailed
	case "check", "process", "confirm_check":
		return models.InvoiceStatusPending
	default:
		return models.InvoiceStatusOther
	}
}

func (c *CryptomusProcessor) sign(body []byte) string {
	encoded := base64.StdEncoding.EncodeToString(body)
	sum := md5.Sum([]byte(encoded + c.PaymentKey))
	return hex.EncodeToString(sum[:])
}

// stripSignField removes the sign member from the raw callback bytes without
// reparsing, preserving the serialization the processor signed.
func stripSignField(raw []byte, sign string) []byte {
	s := string(raw)
	for _, variant := range []string{
		fmt.Sprintf(`,"sign":"%s"`, sign),
		fmt.Sprintf(`"sign":"%s",`, sign),
		fmt.Sprintf(`"sign":"%s"`, sign),
	} {
		if strings.Contains(s, variant) {
			return []byte(strings.Replace(s, variant, "", 1))
		}
	}
	return raw
}
