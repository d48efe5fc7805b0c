package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/StakeSubHQ/StakeSub/app/models"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/cache"
	"github.com/StakeSubHQ/StakeSub/internal/pkg/entitlements"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

var (
	ErrUnknownProcessor  = errors.New("unknown payment processor")
	ErrInvalidSignature  = errors.New("invalid callback signature")
	ErrMalformedCallback = errors.New("malformed callback payload")
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrTrialNotAvailable = errors.New("trial is only available to new users")
	ErrProcessorFailure  = errors.New("payment processor request failed")
)

// Service orchestrates invoice creation and callback reconciliation. It is
// stateless; all durable state lives behind the Repository, and correctness
// under concurrent webhooks relies on the repository's atomic updates.
type Service struct {
	repo       Repository
	ledger     *PromoLedger
	processors map[string]Processor
	active     string
	baseURL    string

	now func() time.Time
}

// NewService wires a reconciliation service. active names the processor
// used for outbound charges; every registered processor can receive
// callbacks. baseURL is the publicly reachable callback base.
func NewService(repo Repository, processors []Processor, active, baseURL string) *Service {
	m := make(map[string]Processor, len(processors))
	for _, p := range processors {
		m[p.Name()] = p
	}
	return &Service{
		repo:       repo,
		ledger:     NewPromoLedger(repo),
		processors: m,
		active:     active,
		baseURL:    strings.TrimRight(baseURL, "/"),
		now:        time.Now,
	}
}

// NewServiceFromDB creates a service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, processors []Processor, active, baseURL string) *Service {
	return NewService(NewRepository(db), processors, active, baseURL)
}

// Ledger exposes the promo ledger for the promo endpoints.
func (s *Service) Ledger() *PromoLedger {
	return s.ledger
}

// UserStatus is the outcome of a subscription lookup.
type UserStatus struct {
	Exists          bool
	Active          bool
	SubscriptionEnd time.Time
	ReferredBy      string
}

// LookupUser reports a user's entitlement state.
func (s *Service) LookupUser(username string) (*UserStatus, error) {
	st := &UserStatus{}

	u, err := s.repo.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return st, nil
		}
		return nil, err
	}
	st.Exists = true
	st.Active = u.HasActiveSubscription(s.now())
	st.SubscriptionEnd = u.SubscriptionEnd
	st.ReferredBy = u.ReferredBy
	return st, nil
}

// AffiliateCount counts users referred by username whose subscription is
// still valid. Read paths may cache this under AffiliateCacheKey; writes
// that extend an entitlement invalidate the referrer's entry.
func (s *Service) AffiliateCount(username string) (int64, error) {
	return s.repo.CountActiveAffiliates(username, s.now())
}

// AffiliateCacheKey is the cache key for a referrer's affiliate count.
func AffiliateCacheKey(username string) string {
	return "affiliates:" + strings.ToLower(username)
}

// ApplyPromo validates a promo code for a tier and returns the base price
// table with the discount folded into that tier.
func (s *Service) ApplyPromo(tier entitlements.Tier, code string) (map[string]float64, error) {
	fraction, err := s.ledger.Verify(code, tier, s.now())
	if err != nil {
		return nil, err
	}
	return s.priceTable(0, tier, fraction)
}

// PriceSheet is a per-tier price table adjusted for one caller.
type PriceSheet struct {
	Prices         map[string]float64
	AffiliateCount int64
	AppliedPromoTo string
}

// AdjustedPrices folds the caller's affiliate discount into every tier and
// the promo discount into the selected tier.
func (s *Service) AdjustedPrices(username string, tier entitlements.Tier, promoCode string) (*PriceSheet, error) {
	now := s.now()
	affiliates, err := s.repo.CountActiveAffiliates(username, now)
	if err != nil {
		return nil, err
	}

	fraction := 0.0
	appliedTo := ""
	if promoCode != "" {
		fraction, err = s.ledger.Verify(promoCode, tier, now)
		if err != nil {
			return nil, err
		}
		appliedTo = tier.String()
	}

	prices, err := s.priceTable(affiliates, tier, fraction)
	if err != nil {
		return nil, err
	}
	return &PriceSheet{Prices: prices, AffiliateCount: affiliates, AppliedPromoTo: appliedTo}, nil
}

func (s *Service) priceTable(affiliates int64, promoTier entitlements.Tier, promoFraction float64) (map[string]float64, error) {
	prices := make(map[string]float64, len(BaseAmounts))
	for _, t := range entitlements.PaidTiers() {
		f := 0.0
		if t == promoTier {
			f = promoFraction
		}
		q, err := ComputePrice(t, affiliates, f)
		if err != nil {
			return nil, err
		}
		prices[t.String()] = q.Amount.InexactFloat64()
	}
	return prices, nil
}

// CreateInvoiceInput describes a charge request.
type CreateInvoiceInput struct {
	StakeUsername string
	Tier          entitlements.Tier
	Currency      string
	PromoCode     string
	ReferredBy    string
}

// CreateInvoiceResult is either a hosted invoice URL or a full grant, in
// which case the entitlement was applied directly and no invoice exists.
type CreateInvoiceResult struct {
	InvoiceURL      string
	OrderNumber     string
	FullGrant       bool
	SubscriptionEnd time.Time
}

// CreateInvoice prices the subscription, reserves the promo budget, asks the
// active processor for a hosted invoice and persists the pending record.
// Any failure after the reservation releases it before returning.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*CreateInvoiceResult, error) {
	now := s.now()

	affiliates, err := s.repo.CountActiveAffiliates(in.StakeUsername, now)
	if err != nil {
		return nil, err
	}

	promoFraction := 0.0
	if in.PromoCode != "" {
		promoFraction, err = s.ledger.Verify(in.PromoCode, in.Tier, now)
		if err != nil {
			return nil, err
		}
	}

	quote, err := ComputePrice(in.Tier, affiliates, promoFraction)
	if err != nil {
		return nil, err
	}

	if quote.FullGrant {
		end := in.Tier.AddDuration(now)
		if err := s.applyEntitlement(in.StakeUsername, in.Tier.String(), now, end, in.ReferredBy); err != nil {
			return nil, err
		}
		return &CreateInvoiceResult{FullGrant: true, SubscriptionEnd: end}, nil
	}

	proc, ok := s.processors[s.active]
	if !ok {
		return nil, ErrUnknownProcessor
	}

	// The reserved code is threaded explicitly from here on so compensation
	// is reachable on every failure exit, not only the exception path.
	reservedPromo := ""
	if in.PromoCode != "" {
		ok, err := s.ledger.Reserve(in.PromoCode)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.ErrPromoExhausted
		}
		reservedPromo = in.PromoCode
	}

	orderNumber := fmt.Sprintf("%s-%d", in.StakeUsername, now.UnixMilli())
	charge, err := proc.CreateCharge(ctx, ChargeRequest{
		OrderNumber: orderNumber,
		OrderName:   "Subscription " + in.Tier.String(),
		Amount:      quote.Amount,
		Currency:    in.Currency,
		CallbackURL: s.callbackURL(proc.Name()),
	})
	if err != nil {
		s.compensatePromo(reservedPromo)
		return nil, fmt.Errorf("%w: %v", ErrProcessorFailure, err)
	}

	inv := &models.Invoice{
		OrderNumber:      orderNumber,
		TxnID:            charge.TxnID,
		Processor:        proc.Name(),
		StakeUsername:    in.StakeUsername,
		SubscriptionType: in.Tier.String(),
		Amount:           quote.Amount,
		Currency:         in.Currency,
		Status:           models.InvoiceStatusPending,
		PromoCode:        reservedPromo,
		ReferredBy:       in.ReferredBy,
	}
	if err := s.repo.CreateInvoice(inv); err != nil {
		s.compensatePromo(reservedPromo)
		return nil, err
	}

	return &CreateInvoiceResult{InvoiceURL: charge.HostedURL, OrderNumber: orderNumber}, nil
}

// CallbackResult reports what a webhook delivery did.
type CallbackResult struct {
	OrderNumber     string
	Status          string
	ProcessorStatus string
	Applied         bool
	Duplicate       bool
}

// ProcessCallback verifies, records and reconciles one webhook delivery.
// The invoice status transition is a single conditional update; side effects
// (entitlement extension, promo release) run only when the transition
// actually applied, which makes redelivery and out-of-order delivery safe.
func (s *Service) ProcessCallback(ctx context.Context, processor string, raw []byte) (*CallbackResult, error) {
	proc, ok := s.processors[processor]
	if !ok {
		return nil, ErrUnknownProcessor
	}
	if !proc.VerifyCallback(raw) {
		return nil, ErrInvalidSignature
	}
	event, err := proc.ParseCallback(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	sum := sha256.Sum256(raw)
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		Processor:      proc.Name(),
		EventID:        "hash:" + hex.EncodeToString(sum[:]),
		OrderNumber:    event.OrderNumber,
		PayloadJSON:    string(raw),
		SignatureValid: true,
	})
	if err != nil {
		return nil, err
	}

	status := proc.NormalizeStatus(event.Status)
	applied, found, err := s.repo.TransitionInvoiceStatus(event.OrderNumber, status, event.Status, event.TxnID)
	if err != nil {
		s.markProcessed(stored, err)
		return nil, err
	}
	if !found {
		s.markProcessed(stored, ErrInvoiceNotFound)
		return nil, ErrInvoiceNotFound
	}

	var effectErr error
	switch status {
	case models.InvoiceStatusPaid:
		effectErr = s.applyPaidEntitlement(event.OrderNumber, applied)
	case models.InvoiceStatusExpired, models.InvoiceStatusCancelled, models.InvoiceStatusFailed:
		if applied {
			effectErr = s.compensateInvoicePromo(event.OrderNumber)
		}
	}
	s.markProcessed(stored, effectErr)
	if effectErr != nil {
		return nil, effectErr
	}

	return &CallbackResult{
		OrderNumber:     event.OrderNumber,
		Status:          status,
		ProcessorStatus: event.Status,
		Applied:         applied,
		Duplicate:       !created,
	}, nil
}

// applyPaidEntitlement extends or creates the entitlement for a paid
// invoice. When the status transition did not apply (redelivery), the
// extension is repaired only if the paid transition visibly never reached
// the user record, so a duplicate paid callback cannot double-extend.
func (s *Service) applyPaidEntitlement(orderNumber string, transitionApplied bool) error {
	inv, err := s.repo.GetInvoiceByOrderNumber(orderNumber)
	if err != nil {
		return err
	}
	if inv.Status != models.InvoiceStatusPaid {
		return nil
	}

	if !transitionApplied {
		u, err := s.repo.GetUserByUsername(inv.StakeUsername)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil && u.SubscriptionEnd.After(inv.UpdatedAt) {
			// Entitlement already advanced past the paid transition.
			return nil
		}
	}

	tier := entitlements.Tier(inv.SubscriptionType)
	now := s.now()
	return s.applyEntitlement(inv.StakeUsername, inv.SubscriptionType, now, tier.AddDuration(now), inv.ReferredBy)
}

func (s *Service) applyEntitlement(username, tier string, start, end time.Time, referrer string) error {
	if err := s.repo.ApplyEntitlement(username, tier, start, end, referrer); err != nil {
		return err
	}
	if referrer != "" {
		// The referrer's cached affiliate count is stale now.
		_ = cache.Delete(AffiliateCacheKey(referrer))
	}
	return nil
}

func (s *Service) compensateInvoicePromo(orderNumber string) error {
	inv, err := s.repo.GetInvoiceByOrderNumber(orderNumber)
	if err != nil {
		return err
	}
	if inv.PromoCode == "" {
		return nil
	}
	_, err = s.ledger.Release(inv.PromoCode)
	return err
}

// GrantTrial creates a one-time 48h trial entitlement. Any existing record
// for the identity, whatever its tier, denies the trial.
func (s *Service) GrantTrial(username string) (*models.User, error) {
	_, err := s.repo.GetUserByUsername(username)
	if err == nil {
		return nil, ErrTrialNotAvailable
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := s.now()
	u := &models.User{
		StakeUsername:     username,
		SubscriptionType:  entitlements.TierTrial.String(),
		SubscriptionStart: now,
		SubscriptionEnd:   entitlements.TierTrial.AddDuration(now),
	}
	// The unique username index catches a concurrent first grant.
	if err := s.repo.CreateUser(u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) callbackURL(processor string) string {
	return fmt.Sprintf("%s/%s-callback", s.baseURL, processor)
}

func (s *Service) compensatePromo(code string) {
	if code == "" {
		return
	}
	if _, err := s.ledger.Release(code); err != nil {
		log.Errorf("promo compensation failed for %s: %v", code, err)
	}
}

func (s *Service) markProcessed(ev *models.WebhookEvent, procErr error) {
	if ev == nil {
		return
	}
	msg := ""
	if procErr != nil {
		msg = procErr.Error()
	}
	if err := s.repo.MarkWebhookProcessed(ev.ID, msg); err != nil {
		log.Errorf("failed to mark webhook event %d processed: %v", ev.ID, err)
	}
}
