package cmd

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/casevault/casevault/api"
	"github.com/casevault/casevault/casekeys"
	bboltstorage "github.com/casevault/casevault/storage/bbolt"
	"github.com/casevault/casevault/storage/memory"
	pgstorage "github.com/casevault/casevault/storage/postgres"
)

var (
	configPath  string
	port        int
	dataDir     string
	storeKind   string
	postgresDSN string
	tlsCert     string
	tlsKey      string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the key-management server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, &cfg)

		passphrase, err := passphraseFromEnv()
		if err != nil {
			return err
		}

		vault, err := casekeys.NewSystemKeyVault(cfg.SystemKey)
		if err != nil {
			return fmt.Errorf("loading system key pair: %w", err)
		}
		// Fail fast on a wrong passphrase instead of at the first case creation.
		if err := vault.WithPrivateKey(passphrase, func(_ *rsa.PrivateKey) error { return nil }); err != nil {
			return fmt.Errorf("verifying system key passphrase: %w", err)
		}

		ctx := cmd.Context()

		store, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := bootstrapSystemPrincipal(ctx, store, cfg.SystemKey.PublicKeyPEM); err != nil {
			return err
		}

		registry := casekeys.NewRegistry(store)
		if err := registry.Refresh(ctx); err != nil {
			return fmt.Errorf("initial registry refresh: %w", err)
		}

		refreshCtx, stopRefresh := context.WithCancel(ctx)
		defer stopRefresh()
		go registry.Run(refreshCtx, cfg.RegistryRefresh)

		fanout := casekeys.NewFanout(registry, vault)
		backfiller := casekeys.NewBackfiller(store, registry, vault)
		runner := casekeys.NewBackfillRunner(backfiller, passphrase)

		a := api.New(store, registry, fanout, runner, passphrase)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		useTLS := cfg.TLSCert != "" && cfg.TLSKey != ""
		if useTLS {
			cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if useTLS {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (store: %s)...\n", cfg.Port, cfg.Store)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			stopRefresh()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			// Let in-flight backfills write their final chunk.
			runner.Wait()
			return nil
		case err := <-done:
			return err
		}
	},
}

// applyFlagOverrides lets explicit flags win over the config file.
func applyFlagOverrides(cmd *cobra.Command, cfg *Config) {
	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if cmd.Flags().Changed("store") {
		cfg.Store = storeKind
	}
	if cmd.Flags().Changed("postgres-dsn") {
		cfg.PostgresDSN = postgresDSN
	}
	if cmd.Flags().Changed("tls-cert") {
		cfg.TLSCert = tlsCert
	}
	if cmd.Flags().Changed("tls-key") {
		cfg.TLSKey = tlsKey
	}
}

func openStore(ctx context.Context, cfg Config) (casekeys.Store, func(), error) {
	switch cfg.Store {
	case "bbolt":
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		s, err := bboltstorage.NewStoreFromFile(cfg.DataDir+"/casevault.db", nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open case store: %w", err)
		}
		return s, func() { s.Close() }, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("postgres store requires --postgres-dsn or postgres_dsn in config")
		}
		s, err := pgstorage.NewStoreFromDSN(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open case store: %w", err)
		}
		return s, s.Close, nil
	case "memory":
		return memory.NewStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want bbolt, postgres or memory)", cfg.Store)
	}
}

// bootstrapSystemPrincipal records the system-root principal on first start so
// the registry and fan-out always see it.
func bootstrapSystemPrincipal(ctx context.Context, store casekeys.Store, publicKeyPEM string) error {
	_, err := store.GetPrincipal(ctx, casekeys.SystemPrincipalID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, casekeys.ErrNotFound) {
		return fmt.Errorf("checking system principal: %w", err)
	}
	return store.PutPrincipal(ctx, casekeys.Principal{
		ID:           casekeys.SystemPrincipalID,
		Kind:         casekeys.KindSystem,
		PublicKeyPEM: publicKeyPEM,
		EnrolledAt:   time.Now().UTC(),
	})
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to yaml config file")
	serverCmd.Flags().IntVarP(&port, "port", "p", 8443, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data (bbolt store)")
	serverCmd.Flags().StringVar(&storeKind, "store", "bbolt", "Storage backend: bbolt, postgres or memory")
	serverCmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}
