package middleware

import (
	"errors"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"neurolov_billing/internal/apperrors"
	"neurolov_billing/internal/models"
)

// ContextUserKey is where RequireAuth stores the resolved local user.
const ContextUserKey = "currentUser"

// RequireAuth verifies the Firebase ID token from the Authorization header
// and resolves (creating on first sight) the local user row by email.
func RequireAuth(authClient *auth.Client, db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authClient == nil {
				return apperrors.New(apperrors.CodeUnauthorized, "authentication is not configured")
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return apperrors.New(apperrors.CodeUnauthorized, "missing bearer token")
			}

			decoded, err := authClient.VerifyIDToken(c.Request().Context(), token)
			if err != nil {
				return apperrors.Wrap(apperrors.CodeUnauthorized, "invalid or expired token", err)
			}

			email, _ := decoded.Claims["email"].(string)
			if email == "" {
				return apperrors.New(apperrors.CodeUnauthorized, "token carries no email claim")
			}
			name, _ := decoded.Claims["name"].(string)

			user, err := resolveUser(db, email, name, decoded.UID)
			if err != nil {
				return apperrors.Wrap(apperrors.CodeInternal, "failed to resolve user", err)
			}

			c.Set(ContextUserKey, user)
			c.Set("userUID", decoded.UID)
			c.Set("userEmail", email)

			return next(c)
		}
	}
}

// resolveUser finds the billing account for an authenticated identity,
// provisioning it on first contact.
func resolveUser(db *gorm.DB, email, name, uid string) (*models.User, error) {
	var user models.User
	err := db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			Name:        name,
			Email:       email,
			FirebaseUID: &uid,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err != nil {
		return nil, err
	}

	if user.FirebaseUID == nil || *user.FirebaseUID == "" {
		if err := db.Model(&user).Update("firebase_uid", uid).Error; err == nil {
			user.FirebaseUID = &uid
		}
	}
	return &user, nil
}

// CurrentUser returns the user RequireAuth attached to the context.
func CurrentUser(c echo.Context) (*models.User, bool) {
	user, ok := c.Get(ContextUserKey).(*models.User)
	return user, ok && user != nil
}
