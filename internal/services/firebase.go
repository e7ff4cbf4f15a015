package services

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
	"gorm.io/gorm"

	"neurolov_billing/internal/models"
)

// InitFirebase initializes the Firebase Admin SDK and returns an auth client
func InitFirebase(credPath string) (*auth.Client, error) {
	opt := option.WithCredentialsFile(credPath)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		return nil, err
	}
	return app.Auth(context.Background())
}

// FirebaseLinker links local billing accounts to the Firebase user store by
// email. Linking is enrichment only: callers log failures and move on, they
// never fail a payment over it.
type FirebaseLinker struct {
	authClient *auth.Client
	db         *gorm.DB
}

func NewFirebaseLinker(authClient *auth.Client, db *gorm.DB) *FirebaseLinker {
	return &FirebaseLinker{authClient: authClient, db: db}
}

// LinkByEmail looks the user up in Firebase by email and records the UID on
// the local row. No-op if already linked.
func (l *FirebaseLinker) LinkByEmail(ctx context.Context, user *models.User) error {
	if user == nil || user.Email == "" {
		return fmt.Errorf("no email to link on")
	}
	if user.FirebaseUID != nil && *user.FirebaseUID != "" {
		return nil
	}
	if l.authClient == nil {
		return fmt.Errorf("firebase not configured")
	}

	record, err := l.authClient.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("firebase lookup for %s: %w", user.Email, err)
	}

	uid := record.UID
	if err := l.db.WithContext(ctx).Model(user).Update("firebase_uid", uid).Error; err != nil {
		return fmt.Errorf("persist firebase uid: %w", err)
	}
	user.FirebaseUID = &uid
	return nil
}
