package main

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/studycircle/studycircle/auth"
	"github.com/studycircle/studycircle/config"
	"github.com/studycircle/studycircle/middleware"
	"github.com/studycircle/studycircle/redis"
	"github.com/studycircle/studycircle/store"
)

const (
	currentVersion = "0.1.0"
)

var buildstamp = "dev"

func main() {
	configFile := flag.String("config", "studycircle.yaml", "Path to config file")
	initDB := flag.Bool("init-db", false, "Initialize database schema")
	generateKeys := flag.Bool("generate-keys", false, "Generate a secure token key and exit")
	createUser := flag.String("create-user", "", "Create an account (username:password) and exit")
	flag.Parse()

	// Handle key generation
	if *generateKeys {
		printGeneratedKeys()
		return
	}

	fmt.Printf("StudyCircle realtime server v%s (build: %s)\n", currentVersion, buildstamp)

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize database
	db, err := store.New(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	// Initialize schema if requested
	if *initDB {
		fmt.Println("Initializing database schema...")
		if err := db.InitSchema(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize schema: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Schema initialized")
	}

	// Initialize auth
	tokenKey, err := base64.StdEncoding.DecodeString(cfg.Auth.Token.Key)
	if err != nil {
		// Key may be a raw string rather than base64
		tokenKey = []byte(cfg.Auth.Token.Key)
	}
	authService := auth.New(auth.Config{
		TokenKey:          tokenKey,
		TokenExpiry:       time.Duration(cfg.Auth.Token.ExpireIn) * time.Second,
		MinUsernameLength: cfg.Auth.Basic.MinLoginLength,
		MinPasswordLength: cfg.Auth.Basic.MinPasswordLength,
	})

	// Handle account bootstrap
	if *createUser != "" {
		if err := createAccount(db, authService, *createUser); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create account: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Initialize Redis (optional)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		var err error
		redisClient, err = redis.New(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			NodeID:   cfg.Redis.NodeID,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to Redis: %v\n", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		fmt.Printf("Connected to Redis (node: %s)\n", cfg.Redis.NodeID)
	}

	// Initialize hub
	hub := NewHub()
	hub.SetRedis(redisClient)
	go hub.Run()

	// Start Redis pub/sub listener if enabled
	var pubsubCancel context.CancelFunc
	if redisClient != nil {
		var pubsubCtx context.Context
		pubsubCtx, pubsubCancel = context.WithCancel(context.Background())

		// Room events from other nodes
		roomPubsub := redisClient.NewPubSub(hub.HandlePubSubMessage)
		roomPubsub.SubscribeToRooms(pubsubCtx)
		go roomPubsub.Listen(pubsubCtx)

		// User-directed relays addressed to this node
		nodePubsub := redisClient.NewPubSub(hub.HandleNodeMessage)
		nodePubsub.SubscribeToNode(pubsubCtx)
		go nodePubsub.Listen(pubsubCtx)
	}

	// Initialize presence manager
	presence := NewPresenceManager(hub, db, redisClient)
	hub.SetPresence(presence)
	presence.StartHeartbeat(context.Background())

	// Initialize handlers
	handlers := NewHandlers(db, authService, hub, presence, cfg.Limits)

	// Initialize server
	srv := NewServer(hub, cfg, handlers, auth.NewValidator(authService))
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	// Configure CORS middleware
	corsMiddleware := middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
		MaxAge:         86400, // 24 hours
	})

	// Wrap handler with CORS middleware
	handler := corsMiddleware(mux)

	// Start HTTP server with timeouts
	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		fmt.Printf("Listening on %s (timeouts: read=%ds, write=%ds, idle=%ds)\n",
			cfg.Server.Listen, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "HTTP server error: %v\n", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	// Cancel pub/sub first
	if pubsubCancel != nil {
		pubsubCancel()
	}

	// Shutdown hub (closes WebSocket connections)
	hub.Shutdown()

	// Gracefully shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "HTTP server shutdown error: %v\n", err)
		httpServer.Close() // Force close if graceful shutdown fails
	}

	fmt.Println("Server stopped")
}

// createAccount provisions a user with basic credentials. Intended for
// bootstrap and local development; the web app's own backend owns signup.
func createAccount(db store.Store, a *auth.Auth, cred string) error {
	parts := strings.SplitN(cred, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected username:password")
	}
	username, password := parts[0], parts[1]

	if err := a.ValidateUsername(username); err != nil {
		return err
	}
	if err := a.ValidatePassword(password); err != nil {
		return err
	}

	hashed, err := a.HashPassword(password)
	if err != nil {
		return err
	}

	public, _ := json.Marshal(map[string]string{"name": username})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userID, err := db.CreateUser(ctx, public)
	if err != nil {
		return err
	}
	if err := db.CreateAuthRecord(ctx, userID, "basic", hashed, username); err != nil {
		return err
	}

	fmt.Printf("Created account %s (user: %s)\n", username, userID)
	return nil
}

// generateSecureKey generates a cryptographically secure random key.
func generateSecureKey(bytes int) string {
	key := make([]byte, bytes)
	if _, err := cryptorand.Read(key); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate secure key: %v\n", err)
		os.Exit(1)
	}
	return base64.StdEncoding.EncodeToString(key)
}

// printGeneratedKeys outputs a secure token key for configuration.
func printGeneratedKeys() {
	fmt.Println("# Generated token signing key for StudyCircle configuration")
	fmt.Println("#")
	fmt.Println("# WARNING: changing the key after deployment invalidates all")
	fmt.Println("# outstanding session tokens.")
	fmt.Println("")
	fmt.Println("# Environment variable (recommended for production):")
	fmt.Printf("export TOKEN_KEY='%s'\n", generateSecureKey(32))
	fmt.Println("")
	fmt.Println("# Or YAML configuration:")
	fmt.Println("auth:")
	fmt.Println("  token:")
	fmt.Printf("    key: %s\n", generateSecureKey(32))
}
