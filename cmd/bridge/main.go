// Command bridge is the chain bridge orchestrator's composition root: it
// loads configuration, opens the durable store, wires the chain client,
// and starts the Submitter, Ingester, Backfill, metrics and API surface
// as independent long-lived goroutines, shutting them down cleanly on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ainur-net/chain-bridge/internal/apiserver"
	"github.com/ainur-net/chain-bridge/internal/backfill"
	"github.com/ainur-net/chain-bridge/internal/chain"
	"github.com/ainur-net/chain-bridge/internal/config"
	"github.com/ainur-net/chain-bridge/internal/ingest"
	"github.com/ainur-net/chain-bridge/internal/metrics"
	"github.com/ainur-net/chain-bridge/internal/outbox"
	"github.com/ainur-net/chain-bridge/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	showHelp := flag.Bool("help", false, "Show help message")
	flag.Parse()
	if *showHelp {
		flag.Usage()
		return
	}

	cfg := config.Load()

	reg := metrics.NewRegistry()

	if !cfg.BridgeEnabled() {
		log.Println("chain bridge disabled: DATABASE_URL and CHAIN_WS_URL are both required to enable it")
		runAPIOnly(cfg, reg)
		return
	}

	dbClient, err := store.NewClient(cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer dbClient.Close()

	if err := dbClient.MigrateUp(context.Background()); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	repos := store.NewRepositories(dbClient)

	signer, err := chain.LoadSigner(cfg.SignerKeyPath)
	if err != nil {
		log.Fatalf("failed to load signer: %v", err)
	}
	defer signer.Close()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 10*time.Second)
	chainClient, err := chain.Dial(dialCtx, cfg.ChainWSURL, signer)
	dialCancel()
	if err != nil {
		log.Fatalf("failed to connect to chain at %s: %v", cfg.ChainWSURL, err)
	}
	defer chainClient.Close()

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	runWorker := func(name string, run func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("%s started", name)
			run(ctx)
			log.Printf("%s stopped", name)
		}()
	}

	submitterCfg := outbox.DefaultSubmitterConfig()
	submitterCfg.PollInterval = cfg.OutboxPollInterval
	for i := 0; i < cfg.SubmitterWorkers; i++ {
		submitter := outbox.NewSubmitter(repos.Outbox, chainClient, reg, submitterCfg)
		runWorker("submitter", submitter.Run)
	}

	ingester := ingest.NewIngester(repos.Chain, repos.Projections, repos.Outbox, chainClient, reg)
	runWorker("ingester", ingester.Run)

	backfillWorker := backfill.New(repos.Outbox, repos.Chain, cfg.BackfillInterval, reg)
	runWorker("backfill", backfillWorker.Run)

	mux := http.NewServeMux()
	apiserver.New(repos.Outbox, log.New(log.Writer(), "[api] ", log.LstdFlags)).Routes(mux)

	httpServer := &http.Server{Addr: cfg.APIBind, Handler: mux}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("api server listening on %s", cfg.APIBind)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("api server error: %v", err)
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsBind != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", reg.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsBind, Handler: metricsMux}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("metrics server listening on %s", cfg.MetricsBind)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down chain bridge...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("api server shutdown error: %v", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics server shutdown error: %v", err)
		}
	}

	wg.Wait()
	log.Println("chain bridge stopped")
}

// runAPIOnly runs when the bridge is disabled (DATABASE_URL or
// CHAIN_WS_URL unset). It serves only /healthz, plus /metrics on the
// same listener when METRICS_BIND is set; the outbox endpoints are not
// served in this mode.
func runAPIOnly(cfg *config.Config, reg *metrics.Registry) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","bridge":"disabled"}`))
	})
	if cfg.MetricsBind != "" {
		mux.Handle("/metrics", reg.Handler())
	}

	httpServer := &http.Server{Addr: cfg.APIBind, Handler: mux}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("api server listening on %s (bridge disabled)", cfg.APIBind)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("api server error: %v", err)
		}
	}()

	<-quit
	log.Println("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("api server shutdown error: %v", err)
	}
}
