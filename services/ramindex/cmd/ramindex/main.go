package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/greymass/ramindex/libraries/abicache"
	"github.com/greymass/ramindex/libraries/chain"
	"github.com/greymass/ramindex/libraries/config"
	"github.com/greymass/ramindex/libraries/logger"
	"github.com/greymass/ramindex/libraries/profiler"
	"github.com/greymass/ramindex/libraries/server"
	"github.com/greymass/ramindex/services/ramindex/internal"
	"github.com/greymass/ramindex/services/ramindex/internal/chainapi"
	"github.com/greymass/ramindex/services/ramindex/internal/feed"
	"github.com/greymass/ramindex/services/ramindex/internal/ingest"
	"github.com/greymass/ramindex/services/ramindex/internal/ledger"
	"github.com/greymass/ramindex/services/ramindex/internal/query"
	"github.com/greymass/ramindex/services/ramindex/internal/rpc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

var (
	productionCategories = []string{"startup", "sync", "http", "ram", "pebble", "feed", "chainapi", "profiler", "query"}
	debugCategories      = []string{"debug", "debug-pebble", "debug-query", "debug-feed"}
	allCategories        = append(append([]string{}, productionCategories...), debugCategories...)
)

func main() {
	config.CheckVersion(Version)

	cfg := &internal.Config{}
	if err := config.LoadWithOptions(cfg, os.Args[1:], &config.LoadOptions{EnvPrefix: "RAMINDEX"}); err != nil {
		logger.Fatal("Config error: %v", err)
	}

	logger.RegisterCategories(allCategories...)
	if cfg.Debug {
		logger.SetMinLevel(logger.LevelDebug)
		logger.SetCategoryFilter(nil)
		logger.Printf("debug", "Debug logging enabled - all categories active")
	} else if cfg.QueryTrace {
		logger.SetMinLevel(logger.LevelDebug)
		logger.SetCategoryFilter(append(append([]string{}, cfg.LogFilter...), "debug-query"))
	} else {
		logger.SetCategoryFilter(cfg.LogFilter)
	}

	if cfg.LogFile != "" {
		if err := logger.SetLogFile(cfg.LogFile); err != nil {
			logger.Fatal("Failed to open log file %s: %v", cfg.LogFile, err)
		}
		defer logger.Close()
		logger.Printf("startup", "Logging to file: %s", cfg.LogFile)
	}

	logger.Printf("startup", "ramindex %s starting...", Version)

	ingestCfg, tokenSymbol, ramSymbol, err := marketConfig(cfg)
	if err != nil {
		logger.Fatal("Config error: %v", err)
	}

	logger.Printf("startup", "Storage:")
	logger.Printf("startup", "  index-storage: %s", cfg.IndexStorage)
	logger.Printf("startup", "  abi-source: %s", cfg.ABISource)
	logger.Printf("startup", "  pebble-cache-size: %d MB", cfg.PebbleCacheSizeMB)
	logger.Printf("startup", "  read-only: %v", cfg.ReadOnly)

	logger.Printf("startup", "Market:")
	logger.Printf("startup", "  system-account: %s (ram: %s, fee: %s)", cfg.SystemAccount, cfg.RAMAccount, cfg.RAMFeeAccount)
	logger.Printf("startup", "  actions: %s, %s, %s", cfg.BuyAction, cfg.BuyBytesAction, cfg.SellAction)
	logger.Printf("startup", "  symbols: %s / %s", cfg.TokenSymbol, cfg.RAMSymbol)
	if cfg.MatchAnyContract {
		logger.Printf("startup", "  match-any-contract: enabled")
	}

	logger.Printf("startup", "Upstream:")
	logger.Printf("startup", "  chain-api: %s (timeout %v)", cfg.ChainAPI, cfg.ChainAPITimeout)
	if !cfg.ReadOnly {
		logger.Printf("startup", "  feed-url: %s (irreversible-only: %v)", cfg.FeedURL, cfg.FeedIrreversible)
		logger.Printf("startup", "  skip-malformed: %v", cfg.SkipMalformed)
	}

	logger.Printf("startup", "API:")
	if cfg.HTTPListen != "none" {
		logger.Printf("startup", "  http-listen: %s", cfg.HTTPListen)
	}
	if cfg.HTTPSocket != "none" {
		logger.Printf("startup", "  http-socket: %s", cfg.HTTPSocket)
	}
	logger.Printf("startup", "  history-time-limit: %v", cfg.HistoryTimeLimit)
	if cfg.RateLimitRPS > 0 {
		logger.Printf("startup", "  rate-limit: %.1f rps (burst %d)", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	logger.Printf("startup", "Logging:")
	logger.Printf("startup", "  log-filter: %s", strings.Join(cfg.LogFilter, ", "))
	if cfg.QueryTrace {
		logger.Printf("startup", "  query-trace: enabled (history scan performance per request)")
	}
	if cfg.Profile {
		logger.Printf("startup", "Profiling: enabled (interval %ds)", cfg.ProfileInterval)
	}
	if cfg.DebugEndpoints || cfg.PprofPort != "" {
		logger.Printf("startup", "Debugging:")
		if cfg.DebugEndpoints {
			logger.Printf("startup", "  debug-endpoints: %v", cfg.DebugEndpoints)
		}
		if cfg.PprofPort != "" {
			logger.Printf("startup", "  pprof-port: %s", cfg.PprofPort)
		}
	}

	if cfg.PprofPort != "" {
		go func() {
			addr := "localhost:" + cfg.PprofPort
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Printf("startup", "pprof server error: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := ledger.NewStore(cfg.IndexStorage, ledger.StoreConfig{
		CacheSizeMB: cfg.PebbleCacheSizeMB,
		ReadOnly:    cfg.ReadOnly,
	})
	if err != nil {
		logger.Fatal("Failed to open database: %v", err)
	}
	l, err := ledger.Open(store)
	if err != nil {
		store.Close()
		logger.Fatal("Failed to open ledger: %v", err)
	}

	if cfg.ExportLedger != "" || cfg.ImportLedger != "" {
		if err := transferLedger(cfg, l); err != nil {
			store.Close()
			logger.Fatal("%v", err)
		}
		store.Close()
		logger.Printf("startup", "Done")
		return
	}

	api := chainapi.New(chainapi.Config{
		URL:           cfg.ChainAPI,
		Timeout:       cfg.ChainAPITimeout,
		SystemAccount: cfg.SystemAccount,
		MarketTable:   cfg.MarketTable,
	})

	var abis *abicache.Cache
	var client *feed.Client
	var feedStatus rpc.FeedStatus
	if !cfg.ReadOnly {
		abis, err = abicache.Open(cfg.ABISource)
		if err != nil {
			logger.Fatal("Failed to open ABI cache: %v", err)
		}
		logger.Printf("startup", "ABI cache: %d contracts", abis.Contracts())

		in := ingest.New(ingestCfg, l, api, ingest.DataRenderer{ABIs: abis}, abis)
		client = feed.New(feed.Config{
			URL:              cfg.FeedURL,
			IrreversibleOnly: cfg.FeedIrreversible,
			ReconnectMax:     cfg.FeedReconnectMax,
		})
		if err := client.Subscribe(in.OnAppliedTransaction, func() uint64 { return l.Properties().FeedSeq }); err != nil {
			logger.Fatal("Failed to subscribe to feed: %v", err)
		}
		feedStatus = client
	}

	history := query.NewHistory(l, api, cfg.HistoryTimeLimit)
	evaluator := query.NewEvaluator(api, api, tokenSymbol, ramSymbol)
	srv, err := rpc.New(rpc.Config{
		Version:        Version,
		DebugEndpoints: cfg.DebugEndpoints,
		QueryTrace:     cfg.QueryTrace,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, history, evaluator, l, feedStatus)
	if err != nil {
		logger.Fatal("Failed to load OpenAPI spec: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{Handler: srv.Handler()}
	servers := []*http.Server{httpServer}
	for _, addr := range []string{cfg.HTTPListen, cfg.HTTPSocket} {
		if addr == "none" || addr == "" {
			continue
		}
		ln := server.SocketListen(addr)
		g.Go(func() error { return serve(httpServer, ln) })
	}

	if cfg.MetricsListen != "none" && cfg.MetricsListen != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Handler: metricsMux}
		ln := server.SocketListen(cfg.MetricsListen)
		servers = append(servers, metricsServer)
		g.Go(func() error { return serve(metricsServer, ln) })
		logger.Printf("startup", "Metrics server listening on %s", cfg.MetricsListen)
	}

	if client != nil {
		g.Go(func() error { return client.Run(gctx) })
	}

	if cfg.Profile {
		g.Go(func() error {
			return profiler.Run(gctx, profiler.Config{
				ServiceName: "ramindex",
				Interval:    time.Duration(cfg.ProfileInterval) * time.Second,
			})
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				store.LogMetrics()
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Printf("startup", "Shutting down...")
		srv.SetShuttingDown()
		if client != nil {
			client.Unsubscribe()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, s := range servers {
			s.Shutdown(shutdownCtx)
		}
		return nil
	})

	logger.Printf("startup", "Service running. Press Ctrl+C to stop.")
	if err := g.Wait(); err != nil {
		logger.Error("Service stopped: %v", err)
	}

	if abis != nil {
		if err := abis.Close(); err != nil {
			logger.Printf("startup", "Error closing ABI cache: %v", err)
		}
	}
	logger.Printf("startup", "Closing database (may take time for pending compactions)...")
	if err := store.Close(); err != nil {
		logger.Printf("startup", "Error closing database: %v", err)
	}
	logger.Printf("startup", "Shutdown complete")
}

func serve(s *http.Server, ln net.Listener) error {
	if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// transferLedger runs the one-shot export or import mode.
func transferLedger(cfg *internal.Config, l *ledger.Ledger) error {
	start := time.Now()
	if cfg.ExportLedger != "" {
		f, err := os.Create(cfg.ExportLedger)
		if err != nil {
			return err
		}
		stats, err := l.Export(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		logger.Printf("startup", "Exported %s actions, %s snapshots (%d frames, %s) to %s in %v",
			logger.FormatCount(int64(stats.Actions)), logger.FormatCount(int64(stats.Snapshots)),
			stats.Frames, logger.FormatBytes(stats.Bytes), cfg.ExportLedger, time.Since(start))
		return nil
	}

	if cfg.ReadOnly {
		return fmt.Errorf("import-ledger cannot be combined with read-only")
	}
	f, err := os.Open(cfg.ImportLedger)
	if err != nil {
		return err
	}
	defer f.Close()
	stats, err := l.Import(f)
	if err != nil {
		return fmt.Errorf("import failed after %d frames: %w", stats.Frames, err)
	}
	logger.Printf("startup", "Imported %s actions, %s snapshots from %s in %v",
		logger.FormatCount(int64(stats.Actions)), logger.FormatCount(int64(stats.Snapshots)),
		cfg.ImportLedger, time.Since(start))
	return nil
}

// marketConfig resolves the configured account, action and symbol names.
func marketConfig(cfg *internal.Config) (ingest.Config, uint64, uint64, error) {
	ic := ingest.Config{
		MatchAnyContract: cfg.MatchAnyContract,
		SkipMalformed:    cfg.SkipMalformed,
	}
	names := []struct {
		value string
		dst   *uint64
	}{
		{cfg.SystemAccount, &ic.SystemAccount},
		{cfg.RAMAccount, &ic.RAMAccount},
		{cfg.RAMFeeAccount, &ic.RAMFeeAccount},
		{cfg.BuyAction, &ic.BuyAction},
		{cfg.BuyBytesAction, &ic.BuyBytesAction},
		{cfg.SellAction, &ic.SellAction},
	}
	for _, n := range names {
		v, err := chain.ParseName(n.value)
		if err != nil {
			return ic, 0, 0, err
		}
		*n.dst = v
	}

	token, err := chain.ParseSymbol(cfg.TokenSymbol)
	if err != nil {
		return ic, 0, 0, err
	}
	ram, err := chain.ParseSymbol(cfg.RAMSymbol)
	if err != nil {
		return ic, 0, 0, err
	}
	ic.TokenSymbol = token
	return ic, token, ram, nil
}
