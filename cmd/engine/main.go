// Command engine is the Pipeline Engine process: it wires the Config
// (A1), Pipeline Store (C2), Blockhash Cache (C3), Wallet Gateway (C4),
// Price Bus (C1), Pipeline Engine (C6), and Swap Indexer (C9) together and
// runs until terminated, the single entrypoint replacing the teacher's
// arcsign CLI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gorilla/websocket"

	"github.com/orbitengine/pipeline/internal/blockhash"
	"github.com/orbitengine/pipeline/internal/bus"
	"github.com/orbitengine/pipeline/internal/config"
	"github.com/orbitengine/pipeline/internal/engine"
	"github.com/orbitengine/pipeline/internal/indexer"
	pipelinemetrics "github.com/orbitengine/pipeline/internal/metrics"
	"github.com/orbitengine/pipeline/internal/model"
	"github.com/orbitengine/pipeline/internal/notifier"
	"github.com/orbitengine/pipeline/internal/orderplanner"
	"github.com/orbitengine/pipeline/internal/priced"
	"github.com/orbitengine/pipeline/internal/store"
	"github.com/orbitengine/pipeline/internal/swap"
	"github.com/orbitengine/pipeline/internal/wallet"
)

func main() {
	envPath := flag.String("env", ".env", "path to the .env secrets file")
	yamlPath := flag.String("config", "config.yml", "path to the structural YAML config")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*envPath, *yamlPath)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipelineStore := newStore(cfg.Store, logger)

	metricsRegistry := pipelinemetrics.New()

	blockhashCache, err := newBlockhashCache(ctx, cfg.Blockhash, logger)
	if err != nil {
		logger.Error("starting blockhash cache", "error", err)
		os.Exit(1)
	}

	walletRegistry := wallet.NewRegistry()
	walletRegistry.Register(wallet.NewCustodialBackend(wallet.CustodialConfig{
		Namespace: model.NamespaceEIP155,
		BaseURL:   cfg.Wallet.BaseURL,
		APIKey:    cfg.WalletAPIKey,
		Timeout:   cfg.Wallet.RequestTimeout,
	}))
	walletRegistry.Register(wallet.NewCustodialBackend(wallet.CustodialConfig{
		Namespace: model.NamespaceSVM,
		BaseURL:   cfg.Wallet.BaseURL,
		APIKey:    cfg.WalletAPIKey,
		Timeout:   cfg.Wallet.RequestTimeout,
	}))

	planner := orderplanner.NewHTTPPlanner(orderplanner.NewHTTPQuoter(cfg.Wallet.BaseURL+"/quote", cfg.Wallet.RequestTimeout))

	limiter := notifier.NewRateLimiter(cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window)
	notify := notifier.NewRateLimitedNotifier(
		notifier.NewHTTPNotifier(cfg.Wallet.BaseURL+"/notify", cfg.Wallet.RequestTimeout),
		limiter,
	)

	priceBus := bus.New(cfg.Bus.SubscriberBufferSize)

	eng := engine.New(engine.Config{
		Store:     pipelineStore,
		Gateway:   walletRegistry,
		Planner:   planner,
		Notifier:  notify,
		Blockhash: blockhashCache,
		Logger:    logger,
		Metrics:   engine.NewMetricsOn(metricsRegistry.Prometheus()),
	})

	if err := eng.LoadAll(ctx, cfg.BootstrapUserIDs); err != nil {
		logger.Error("hydrating active pipelines", "error", err)
		os.Exit(1)
	}

	go eng.RunPriceBus(ctx, priceBus)
	go eng.RunTransactionBus(ctx, priceBus)

	indexerPipeline := newIndexerPipeline(cfg.Indexer, priceBus, metricsRegistry, logger)
	go func() {
		if err := indexerPipeline.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("indexer pipeline stopped", "error", err)
		}
	}()

	httpServer := newHTTPServer(cfg.Metrics.ListenAddr, metricsRegistry, priceBus, eng, logger)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	blockhashCache.Stop()
}

func newStore(cfg config.StoreConfig, logger *slog.Logger) store.Store {
	if cfg.Driver == "mysql" {
		s, err := store.NewSQLStore(cfg.DSN)
		if err != nil {
			logger.Error("opening mysql store, falling back to memory", "error", err)
			return store.NewMemoryStore()
		}
		return s
	}
	return store.NewMemoryStore()
}

func newBlockhashCache(ctx context.Context, cfg config.BlockhashConfig, logger *slog.Logger) (*blockhash.Cache, error) {
	client := rpc.New(cfg.RPCEndpoint)
	cache := blockhash.New(client, blockhash.Config{
		RefreshInterval: cfg.RefreshInterval,
		StaleAfter:      cfg.StaleThreshold,
	})
	if err := cache.Start(ctx); err != nil {
		return nil, err
	}
	return cache, nil
}

// busPublisher adapts *bus.Bus to indexer.Publisher.
type busPublisher struct{ b *bus.Bus }

func (p busPublisher) PublishPrice(update bus.PriceUpdate) { p.b.PublishPrice(update) }

func newIndexerPipeline(cfg config.IndexerConfig, priceBus *bus.Bus, metricsRegistry *pipelinemetrics.Registry, logger *slog.Logger) *indexer.Pipeline {
	decoder := swap.New(swap.Config{
		DustThreshold: cfg.DustThreshold,
		Metrics:       metricsRegistry.SwapMetrics(),
	})
	deriver := priced.New(staticMetadataSource{})

	var source indexer.Source
	if cfg.WebSocketURL != "" {
		source = &indexer.WebSocketSource{
			Logger: logger,
			Dial: func(ctx context.Context) (<-chan swap.RawTransaction, error) {
				conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.WebSocketURL, nil)
				if err != nil {
					return nil, err
				}
				out := make(chan swap.RawTransaction)
				go func() {
					defer close(out)
					defer conn.Close()
					for {
						var tx swap.RawTransaction
						if err := conn.ReadJSON(&tx); err != nil {
							return
						}
						select {
						case out <- tx:
						case <-ctx.Done():
							return
						}
					}
				}()
				return out, nil
			},
		}
	} else {
		source = &indexer.PollingSource{
			Interval: cfg.PollInterval,
			Logger:   logger,
			Fetch: func(ctx context.Context) ([]swap.RawTransaction, error) {
				// No polling-source endpoint configured; this
				// deployment shape is wired but inert until one is.
				return nil, nil
			},
		}
	}

	return indexer.New(indexer.Config{
		Source:         source,
		Decoder:        decoder,
		Deriver:        deriver,
		Bus:            busPublisher{priceBus},
		Metrics:        metricsRegistry.IndexerMetrics(),
		Logger:         logger,
		QueueSize:      cfg.QueueSize,
		PublishTimeout: cfg.PublishTimeout,
	})
}

// staticMetadataSource is a placeholder MetadataSource until a real
// token-metadata provider is wired; svm's native mint is always known.
type staticMetadataSource struct{}

func (staticMetadataSource) Lookup(mint string) (priced.MintMetadata, bool) {
	if mint == priced.BaseMint {
		return priced.MintMetadata{Decimals: 9}, true
	}
	return priced.MintMetadata{}, false
}

func newHTTPServer(addr string, metricsRegistry *pipelinemetrics.Registry, priceBus *bus.Bus, eng *engine.Engine, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsRegistry.Handler())
	mux.HandleFunc("/webhooks/transactions", transactionWebhookHandler(priceBus, logger))
	mux.HandleFunc("/pipelines", pipelinesHandler(eng))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// transactionWebhookHandler receives a wallet-provider confirmation
// callback and republishes it onto the Price Bus's transaction_updates
// topic, the HTTP ingress counterpart to engine.RunTransactionBus.
func transactionWebhookHandler(priceBus *bus.Bus, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var update bus.TransactionUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			logger.Warn("malformed transaction webhook", "error", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		priceBus.PublishTransaction(update)
		w.WriteHeader(http.StatusAccepted)
	}
}

// pipelinesHandler is a minimal API-boundary surface over the engine:
// GET lists a user's pipelines, POST adds one. A production deployment
// would authenticate the caller and derive userID from that identity
// rather than a query parameter.
func pipelinesHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodGet:
			pipelines, err := eng.ListPipelines(r.Context(), userID)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(pipelines)
		case http.MethodPost:
			var pipeline model.Pipeline
			if err := json.NewDecoder(r.Body).Decode(&pipeline); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			if err := eng.AddPipeline(r.Context(), &pipeline); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(pipeline)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
