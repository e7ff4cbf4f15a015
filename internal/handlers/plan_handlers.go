package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"neurolov_billing/internal/apperrors"
	"neurolov_billing/internal/middleware"
	"neurolov_billing/internal/models"
	"neurolov_billing/internal/services"
)

// planCacheTTL bounds how stale the public catalog may get after an edit.
const planCacheTTL = 5 * time.Minute

// PlanHandler serves the public plan catalog and the caller's subscription.
type PlanHandler struct {
	db    *gorm.DB
	cache *services.RedisCache
}

func NewPlanHandler(db *gorm.DB, cache *services.RedisCache) *PlanHandler {
	return &PlanHandler{db: db, cache: cache}
}

// ListPlans returns all active plans, cached.
func (h *PlanHandler) ListPlans(c echo.Context) error {
	ctx := c.Request().Context()

	fetch := func() ([]models.Plan, error) {
		var plans []models.Plan
		if err := h.db.WithContext(ctx).
			Where("is_active = ?", true).
			Order("price_usd asc").
			Find(&plans).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, "plan catalog lookup failed", err)
		}
		return plans, nil
	}

	var plans []models.Plan
	var err error
	if h.cache != nil {
		plans, err = services.GetOrSet(h.cache, ctx, "plans:active", planCacheTTL, fetch)
	} else {
		plans, err = fetch()
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"plans":   plans,
	})
}

// GetSubscription returns the caller's current subscription with its plan.
func (h *PlanHandler) GetSubscription(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apperrors.New(apperrors.CodeUnauthorized, "authentication required")
	}

	var sub models.Subscription
	err := h.db.WithContext(c.Request().Context()).
		Preload("Plan").
		Where("user_id = ?", user.ID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.New(apperrors.CodeNotFound, "no subscription found")
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "subscription lookup failed", err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":      true,
		"subscription": sub,
	})
}
