package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Makar0n1/art-automation/pkg/api"
	"github.com/Makar0n1/art-automation/pkg/bus"
	"github.com/Makar0n1/art-automation/pkg/config"
	"github.com/Makar0n1/art-automation/pkg/gateway"
	"github.com/Makar0n1/art-automation/pkg/health"
	"github.com/Makar0n1/art-automation/pkg/log"
	"github.com/Makar0n1/art-automation/pkg/pipeline"
	"github.com/Makar0n1/art-automation/pkg/queue"
	"github.com/Makar0n1/art-automation/pkg/storage"
	"github.com/Makar0n1/art-automation/pkg/types"
	"github.com/Makar0n1/art-automation/pkg/vault"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "artgen",
	Short: "Artgen - resumable article generation pipeline",
	Long: `Artgen orchestrates long-running article generation jobs: SERP
ingestion, competitor structure analysis, block enrichment, knowledge-base
question answering, writing, internal link insertion and quality review.

Jobs survive restarts, pause at stage boundaries and stream progress to
live subscribers.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Artgen version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	bootstrapCmd.Flags().String("email", "", "Login email for the new user")
	bootstrapCmd.Flags().String("password", "", "Password for the new user")

	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(allCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

// deps is everything both roles share.
type deps struct {
	cfg   *config.Config
	store storage.Store
	rdb   *redis.Client
	bus   *bus.Bus
	vault *vault.Vault
	queue *queue.Queue
}

func setup() (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	v, err := vault.New(cfg.EncryptionKey(), cfg.JWTSecret, store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize vault: %w", err)
	}

	return &deps{
		cfg:   cfg,
		store: store,
		rdb:   rdb,
		bus:   bus.New(rdb),
		vault: v,
		queue: queue.New(rdb),
	}, nil
}

func (d *deps) close() {
	d.rdb.Close()
	d.store.Close()
}

// startAPI runs the HTTP surface and the bus relay until ctx is cancelled.
func startAPI(ctx context.Context, d *deps) (*http.Server, error) {
	tokens := api.NewTokenIssuer(d.cfg.JWTSecret, d.cfg.TokenTTL)
	gw := gateway.New(tokens.Verify)
	checker := health.New(d.store, d.queue)
	server := api.NewServer(d.cfg, d.store, d.vault, d.queue, gw, checker)

	go gw.Run(ctx, d.bus.Subscribe(ctx))

	httpServer := &http.Server{
		Addr:              d.cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Logger.Info().Str("addr", d.cfg.ListenAddr).Msg("api listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Fatal().Err(err).Msg("api server failed")
		}
	}()
	return httpServer, nil
}

func startWorker(ctx context.Context, d *deps) *queue.Worker {
	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])

	factory := pipeline.NewClientFactory(d.vault, d.cfg.LLMModel, d.cfg.VectorStoreURL)
	runner := pipeline.New(d.store, d.bus, factory)

	w := queue.NewWorker(workerID, d.rdb, runner, d.cfg.WorkerConcurrency, d.cfg.MaxConcurrent)
	w.Start(ctx)
	return w
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the HTTP api and websocket gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setup()
		if err != nil {
			return err
		}
		defer d.close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		httpServer, err := startAPI(ctx, d)
		if err != nil {
			return err
		}

		waitForSignal()
		log.Info("shutting down api")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("api shutdown failed", err)
		}
		cancel()
		return nil
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the generation worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setup()
		if err != nil {
			return err
		}
		defer d.close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		w := startWorker(ctx, d)

		waitForSignal()
		log.Info("shutting down worker")
		w.Stop()
		return nil
	},
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run api and worker in one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setup()
		if err != nil {
			return err
		}
		defer d.close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		httpServer, err := startAPI(ctx, d)
		if err != nil {
			return err
		}
		w := startWorker(ctx, d)

		waitForSignal()
		log.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("api shutdown failed", err)
		}
		w.Stop()
		return nil
	},
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the initial principal",
	Long:  `Create the first user account. Run once against a fresh data directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if email == "" || password == "" {
			return fmt.Errorf("--email and --password are required")
		}
		if len(password) < 8 {
			return fmt.Errorf("password must be at least 8 characters")
		}

		d, err := setup()
		if err != nil {
			return err
		}
		defer d.close()

		if _, err := d.store.GetUserByEmail(email); err == nil {
			return fmt.Errorf("user %s already exists", email)
		}

		hash, err := vault.HashSecret(password)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		user := &types.User{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := d.store.CreateUser(user); err != nil {
			return err
		}

		fmt.Printf("✓ User %s created (id %s)\n", email, user.ID)
		return nil
	},
}