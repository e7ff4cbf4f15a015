package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"neurolov_billing/internal/handlers"
	"neurolov_billing/internal/middleware"
	"neurolov_billing/internal/models"
	"neurolov_billing/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Initialize Firebase
	credPath := os.Getenv("FIREBASE_CREDENTIALS_PATH")
	if credPath == "" {
		credPath = "./firebase-service-account.json"
	}
	authClient, err := services.InitFirebase(credPath)
	if err != nil {
		log.Printf("Warning: Firebase initialization failed: %v", err)
		log.Println("Authenticated endpoints will reject requests until valid credentials are provided")
	}

	// Initialize Database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize Redis (optional: caching and webhook locks degrade gracefully)
	var cache *services.RedisCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			log.Printf("Warning: Redis initialization failed: %v", err)
			cache = nil
		}
	} else {
		log.Println("Warning: REDIS_URL not set, caching disabled")
	}

	// Initialize fiat gateway (optional)
	var midtransClient *services.MidtransService
	if os.Getenv("MIDTRANS_SERVER_KEY") != "" {
		midtransClient = services.NewMidtransService()
	} else {
		log.Println("Warning: MIDTRANS_SERVER_KEY not set, fiat checkout disabled")
	}

	merchantWallet := os.Getenv("MERCHANT_WALLET")
	if merchantWallet == "" {
		log.Println("Warning: MERCHANT_WALLET not set, intent creation will fail")
	}

	rpcURL := os.Getenv("SOLANA_RPC_URL")
	if rpcURL == "" {
		rpcURL = "https://api.mainnet-beta.solana.com"
	}

	tolerance := services.DefaultAmountTolerance
	if raw := os.Getenv("AMOUNT_TOLERANCE"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			tolerance = parsed
		}
	}

	// Wire services
	solanaReader := services.NewSolanaService(rpcURL)
	readers := map[models.CryptoType]services.ChainReader{
		solanaReader.Chain(): solanaReader,
	}
	verifier := services.NewVerifierWithTolerance(tolerance)
	ledger := services.NewGormLedger(db)
	subs := services.NewGormSubscriptionStore(db)
	linker := services.NewFirebaseLinker(authClient, db)
	mailer := services.NewEmailService()
	reconciler := services.NewReconciler(ledger, subs, linker, mailer)
	payments := services.NewPaymentService(db, cache, midtransClient, merchantWallet)

	paymentHandler := handlers.NewPaymentHandler(payments, readers, verifier, reconciler, ledger)
	planHandler := handlers.NewPlanHandler(db, cache)
	webhookHandler := handlers.NewWebhookHandler(payments, reconciler, subs, midtransClient, cache,
		os.Getenv("CHAIN_WEBHOOK_SECRET"), tolerance)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Validator = handlers.NewRequestValidator()
	e.HTTPErrorHandler = middleware.JSONErrorHandler

	// Public routes
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/api/plans", planHandler.ListPlans)

	// Webhooks authenticate with signatures, not user tokens
	e.POST("/webhooks/chain", webhookHandler.ChainWebhook)
	e.POST("/webhooks/midtrans", webhookHandler.MidtransWebhook)

	// Protected routes
	api := e.Group("/api")
	api.Use(middleware.RequireAuth(authClient, db))
	api.GET("/subscription", planHandler.GetSubscription)
	api.POST("/payments/intents", paymentHandler.CreateIntent)
	api.GET("/payments/intents/:reference", paymentHandler.GetIntentStatus)
	api.POST("/payments/verify", paymentHandler.VerifyPayment)
	api.POST("/payments/fiat/checkout", paymentHandler.FiatCheckout)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}
