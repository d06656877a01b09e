// Command accessd runs the PAP+PDP access-control core as a standalone
// process: it loads configuration, opens the policy store, wires the
// subject-pubkey client, and serves an admin TCP protocol plus a /metrics
// and /healthz HTTP mux.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"accessd/config"
	"accessd/crypto"
	"accessd/observability/logging"
	"accessd/observability/metrics"
	"accessd/pap"
	"accessd/pdp"
	"accessd/pip"
	"accessd/pubkeysvc"
	"accessd/storage"
)

func main() {
	configPath := flag.String("config", "./accessd.toml", "path to the accessd configuration file")
	env := flag.String("env", "development", "deployment environment label for structured logs")
	flag.Parse()

	logger := logging.Setup("accessd", *env)

	if err := run(*configPath, logger); err != nil {
		logger.Error("accessd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	moduleSigner, err := loadOrCreateModuleSigner(cfg.ModuleKeyPath)
	if err != nil {
		return fmt.Errorf("load module key: %w", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir + "/policies")
	if err != nil {
		return fmt.Errorf("open policy store: %w", err)
	}
	defer db.Close()
	store := storage.NewPolicyStore(db)

	pubkeys := pubkeysvc.NewClient(cfg.PubKeyServiceAddress)

	access := metrics.Access()

	papEngine := pap.New(store, moduleSigner, pubkeys,
		pap.WithLogger(logger),
		pap.WithMetrics(access),
		pap.WithMaxTokens(cfg.MaxTokens),
	)

	// pip.Static is the reference/test resolver; production deployments
	// supply a Resolver backed by a real attribute source through the same
	// interface.
	pdpEngine := pdp.New(papEngine, pip.NewStatic(),
		pdp.WithLogger(logger),
		pdp.WithMetrics(access),
		pdp.WithMaxTokens(cfg.MaxTokens),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	admin := NewAdminServer(cfg.ListenAddress, papEngine, pdpEngine, logger)
	errCh := make(chan error, 2)
	go func() { errCh <- admin.Run(ctx) }()
	go func() { errCh <- runHTTP(ctx, cfg.ListenAddress, logger) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func loadOrCreateModuleSigner(path string) (crypto.ModuleSigner, error) {
	sk, err := crypto.LoadModuleKey(path)
	if err == nil {
		pub := sk.Public()
		return crypto.NewModuleSigner(pub, sk), nil
	}
	pub, newSK, genErr := crypto.GenerateKeypair()
	if genErr != nil {
		return crypto.ModuleSigner{}, genErr
	}
	if err := crypto.SaveModuleKey(path, newSK); err != nil {
		return crypto.ModuleSigner{}, err
	}
	return crypto.NewModuleSigner(pub, newSK), nil
}

// runHTTP serves /healthz and /metrics on the address httpAddrFor derives
// from the admin listen address (its port plus one), so both listeners can
// run without a second configuration field.
func runHTTP(ctx context.Context, adminAddr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: httpAddrFor(adminAddr), Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("http server listening", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
