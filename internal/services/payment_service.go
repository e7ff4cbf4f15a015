package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"gorm.io/gorm"

	"neurolov_billing/internal/apperrors"
	"neurolov_billing/internal/models"
)

// intentStatusCacheTTL caches terminal intent lookups; terminal rows never
// change again, so this is safe indefinitely, the TTL just bounds memory.
const intentStatusCacheTTL = time.Hour

// PaymentService owns the payment intent lifecycle and fiat checkout
// sessions.
type PaymentService struct {
	db             *gorm.DB
	cache          *RedisCache
	midtransClient *MidtransService
	merchantWallet string
}

func NewPaymentService(db *gorm.DB, cache *RedisCache, midtransClient *MidtransService, merchantWallet string) *PaymentService {
	return &PaymentService{
		db:             db,
		cache:          cache,
		midtransClient: midtransClient,
		merchantWallet: merchantWallet,
	}
}

// CreateIntentParams is the validated input for a new payment intent.
type CreateIntentParams struct {
	PlanID     uint
	Amount     float64
	Currency   string
	CryptoType models.CryptoType
}

// CreateIntent opens a pending intent with a fresh reference id and the
// default TTL. The expected wallet is snapshotted from config.
func (s *PaymentService) CreateIntent(ctx context.Context, user *models.User, p CreateIntentParams) (*models.PaymentIntent, error) {
	if p.Amount <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "amount must be positive")
	}
	switch p.CryptoType {
	case models.CryptoTypeSOL, models.CryptoTypeETH, models.CryptoTypeBTC:
	default:
		return nil, apperrors.Newf(apperrors.CodeValidation, "unsupported crypto type %q", p.CryptoType)
	}
	if s.merchantWallet == "" {
		return nil, apperrors.New(apperrors.CodeInternal, "merchant wallet is not configured")
	}

	plan, err := s.GetActivePlan(ctx, p.PlanID)
	if err != nil {
		return nil, err
	}
	if err := validateIntentAmount(plan, p); err != nil {
		return nil, err
	}

	now := time.Now()
	intent := models.PaymentIntent{
		ReferenceID:   "pi_" + uuid.NewString(),
		UserID:        user.ID,
		PlanID:        plan.ID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		CryptoType:    p.CryptoType,
		WalletAddress: s.merchantWallet,
		Status:        models.IntentStatusPending,
		ExpiresAt:     now.Add(models.DefaultIntentTTL),
	}
	if err := s.db.WithContext(ctx).Create(&intent).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to create payment intent", err)
	}

	log.Printf("payment intent created: reference=%s user=%d plan=%d amount=%.9f %s",
		intent.ReferenceID, user.ID, plan.ID, p.Amount, p.CryptoType)
	return &intent, nil
}

// validateIntentAmount checks the requested amount against the plan's
// catalog price in the settlement currency, within the standard tolerance
// band. Without this check a caller could open a near-zero intent for any
// plan and receive it once the trivial payment verifies. Plans without a
// price in the requested currency cannot be bought in it.
func validateIntentAmount(plan *models.Plan, p CreateIntentParams) error {
	catalogPrice := plan.PriceFor(p.CryptoType)
	if catalogPrice <= 0 {
		return apperrors.Newf(apperrors.CodeValidation, "plan %q has no %s price", plan.Code, p.CryptoType)
	}
	if !WithinTolerance(catalogPrice, p.Amount, DefaultAmountTolerance) {
		return apperrors.New(apperrors.CodeValidation, "amount does not match the plan price").
			WithDetails(map[string]interface{}{
				"plan_price": catalogPrice,
				"amount":     p.Amount,
			})
	}
	return nil
}

// GetActivePlan loads an active catalog plan by id.
func (s *PaymentService) GetActivePlan(ctx context.Context, planID uint) (*models.Plan, error) {
	var plan models.Plan
	err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", planID, true).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "plan not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "plan lookup failed", err)
	}
	return &plan, nil
}

// GetIntentByReference loads an intent, serving terminal ones from cache.
func (s *PaymentService) GetIntentByReference(ctx context.Context, referenceID string) (*models.PaymentIntent, error) {
	cacheKey := "intent:" + referenceID
	if s.cache != nil {
		var cached models.PaymentIntent
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	var intent models.PaymentIntent
	err := s.db.WithContext(ctx).Where("reference_id = ?", referenceID).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "payment intent not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "payment intent lookup failed", err)
	}

	if s.cache != nil && intent.IsTerminal() {
		_ = s.cache.Set(ctx, cacheKey, intent, intentStatusCacheTTL)
	}
	return &intent, nil
}

// MatchPendingIntent resolves the intent a webhook delivery belongs to.
// The full key (reference + pending + chain + wallet + unexpired) keeps a
// payload from settling the wrong intent.
func (s *PaymentService) MatchPendingIntent(ctx context.Context, referenceID string, cryptoType models.CryptoType, wallet string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := s.db.WithContext(ctx).
		Where("reference_id = ? AND status = ? AND crypto_type = ? AND wallet_address = ? AND expires_at > ?",
			referenceID, models.IntentStatusPending, cryptoType, wallet, time.Now()).
		First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "no matching pending payment intent")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "payment intent lookup failed", err)
	}
	return &intent, nil
}

// ExpirePendingIntents flips pending intents past their TTL to expired.
// Single conditional UPDATE: it can never touch confirmed rows, and a
// concurrent confirmation wins because both sides condition on
// status='pending'.
func (s *PaymentService) ExpirePendingIntents(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.PaymentIntent{}).
		Where("status = ? AND expires_at <= ?", models.IntentStatusPending, time.Now()).
		Update("status", models.IntentStatusExpired)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// RecordWebhookEvent appends to the webhook audit log.
func (s *PaymentService) RecordWebhookEvent(ctx context.Context, source models.WebhookSource, referenceID, outcome string, payload []byte) {
	event := models.WebhookEvent{
		Source:      source,
		ReferenceID: referenceID,
		Outcome:     outcome,
		Payload:     payload,
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		log.Printf("failed to record webhook event (source=%s ref=%s outcome=%s): %v", source, referenceID, outcome, err)
	}
}

// FiatCheckoutResult holds the outcome of a fiat checkout initiation.
type FiatCheckoutResult struct {
	Token       string
	RedirectURL string
	OrderID     string
	IsExisting  bool
}

// CheckActiveFiatSession returns the newest active session for a user and
// plan, or nil.
func (s *PaymentService) CheckActiveFiatSession(ctx context.Context, userID, planID uint) (*models.FiatSession, error) {
	var session models.FiatSession
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND plan_id = ? AND is_active = ?", userID, planID, true).
		Order("created_at desc").First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// InitiateFiatCheckout starts or resumes a gateway checkout for a plan.
// A pending session is reused unless forceNew cancels it; sessions the
// gateway reports as terminal are deactivated and replaced.
func (s *PaymentService) InitiateFiatCheckout(ctx context.Context, user *models.User, plan *models.Plan, forceNew bool, callbackURL string) (*FiatCheckoutResult, error) {
	if s.midtransClient == nil {
		return nil, apperrors.New(apperrors.CodeInternal, "fiat gateway is not configured")
	}

	existing, err := s.CheckActiveFiatSession(ctx, user.ID, plan.ID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "session lookup failed", err)
	}

	if existing != nil {
		statusResp, err := s.midtransClient.CheckTransaction(existing.OrderID)
		if err == nil {
			switch statusResp.TransactionStatus {
			case "settlement", "capture":
				return nil, apperrors.New(apperrors.CodeDuplicateTransaction, "payment already made for this plan")
			case "deny", "expire", "cancel", "failure":
				s.deactivateFiatSession(ctx, existing)
			default: // pending
				if forceNew {
					if err := s.midtransClient.CancelTransaction(existing.OrderID); err != nil {
						log.Printf("failed to cancel gateway order %s: %v", existing.OrderID, err)
					}
					s.deactivateFiatSession(ctx, existing)
				} else {
					var gatewayResp snap.Response
					if err := json.Unmarshal(existing.ResponseMetadata, &gatewayResp); err == nil {
						return &FiatCheckoutResult{
							Token:       gatewayResp.Token,
							RedirectURL: gatewayResp.RedirectURL,
							OrderID:     existing.OrderID,
							IsExisting:  true,
						}, nil
					}
					// Stored response is unreadable, treat the session as broken.
					s.deactivateFiatSession(ctx, existing)
				}
			}
		} else {
			// Status check failed, assume the session is broken locally.
			s.deactivateFiatSession(ctx, existing)
		}
	}

	orderID := fmt.Sprintf("sub-%d-%d-%d", plan.ID, user.ID, time.Now().Unix())
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: int64(plan.PriceUSD),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: user.Name,
			Email: user.Email,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    fmt.Sprintf("plan-%d", plan.ID),
				Name:  fmt.Sprintf("Subscription: %s", plan.Name),
				Price: int64(plan.PriceUSD),
				Qty:   1,
			},
		},
		Callbacks: &snap.Callbacks{
			Finish: callbackURL,
		},
	}

	resp, err := s.midtransClient.CreateTransaction(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeChainError, "fiat gateway rejected the checkout", err)
	}

	reqBytes, _ := json.Marshal(req)
	respBytes, _ := json.Marshal(resp)
	session := models.FiatSession{
		PlanID:           plan.ID,
		UserID:           user.ID,
		Gateway:          models.PaymentGatewayMidtrans,
		OrderID:          orderID,
		IsActive:         true,
		RequestMetadata:  reqBytes,
		ResponseMetadata: respBytes,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to persist checkout session", err)
	}

	return &FiatCheckoutResult{
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
		OrderID:     orderID,
		IsExisting:  false,
	}, nil
}

// DeactivateFiatSessionsForOrder turns off sessions after a terminal
// gateway notification.
func (s *PaymentService) DeactivateFiatSessionsForOrder(ctx context.Context, orderID string) {
	if err := s.db.WithContext(ctx).Model(&models.FiatSession{}).
		Where("order_id = ? AND is_active = ?", orderID, true).
		Update("is_active", false).Error; err != nil {
		log.Printf("failed to deactivate fiat sessions for order %s: %v", orderID, err)
	}
}

func (s *PaymentService) deactivateFiatSession(ctx context.Context, session *models.FiatSession) {
	session.IsActive = false
	if err := s.db.WithContext(ctx).Save(session).Error; err != nil {
		log.Printf("failed to deactivate fiat session %d: %v", session.ID, err)
	}
}
