package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helmsync/shipstation-tap/pkg/catalog"
	"github.com/helmsync/shipstation-tap/pkg/client"
	"github.com/helmsync/shipstation-tap/pkg/config"
	"github.com/helmsync/shipstation-tap/pkg/emit"
	"github.com/helmsync/shipstation-tap/pkg/logging"
	"github.com/helmsync/shipstation-tap/pkg/state"
	"github.com/helmsync/shipstation-tap/pkg/sync"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var (
		configPath  string
		catalogPath string
		statePath   string
		discover    bool
		logLevel    string
		pretty      bool
		metricsAddr string
	)

	root := &cobra.Command{
		Use:   "shipstation-tap",
		Short: "Incremental ShipStation extractor",
		Long: `shipstation-tap extracts shipments and orders from the ShipStation API
and emits them as newline-delimited JSON messages on stdout. Extraction is
incremental: each stream keeps a bookmark and only the span since the last
run is fetched, in day-sized windows.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if discover {
				return runDiscover()
			}
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			return runSync(configPath, catalogPath, statePath, logLevel, pretty, metricsAddr)
		},
	}

	root.Flags().StringVarP(&configPath, "config", "c", "", "Path to config JSON file")
	root.Flags().StringVar(&catalogPath, "catalog", "", "Path to catalog JSON file (defaults to all streams)")
	root.Flags().StringVarP(&statePath, "state", "s", "state.json", "Path to the state file (ignored with a redis backend)")
	root.Flags().BoolVarP(&discover, "discover", "d", false, "Print the stream catalog and exit")
	root.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.Flags().BoolVar(&pretty, "pretty", false, "Human-readable console logs instead of JSON")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("shipstation-tap v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runDiscover prints the full catalog with every stream selected.
func runDiscover() error {
	cat, err := catalog.Discover()
	if err != nil {
		return err
	}

	type metadataEntry struct {
		Breadcrumb []string       `json:"breadcrumb"`
		Metadata   map[string]any `json:"metadata"`
	}
	type streamEntry struct {
		TapStreamID   string          `json:"tap_stream_id"`
		Stream        string          `json:"stream"`
		Schema        map[string]any  `json:"schema"`
		KeyProperties []string        `json:"key_properties"`
		Metadata      []metadataEntry `json:"metadata"`
	}

	doc := struct {
		Streams []streamEntry `json:"streams"`
	}{}
	for _, s := range cat.Streams {
		doc.Streams = append(doc.Streams, streamEntry{
			TapStreamID:   s.ID,
			Stream:        s.ID,
			Schema:        s.Schema.Raw,
			KeyProperties: s.KeyProperties,
			Metadata: []metadataEntry{
				{Breadcrumb: []string{}, Metadata: map[string]any{"selected": true}},
			},
		})
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runSync(configPath, catalogPath, statePath, logLevel string, pretty bool, metricsAddr string) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(logLevel)
	logCfg.Pretty = pretty
	logger := logging.Setup(logCfg)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Warn().Err(err).Str("addr", metricsAddr).Msg("Metrics server stopped")
			}
		}()
		logger.Info().Str("addr", metricsAddr).Msg("Serving Prometheus metrics")
	}

	var cat *catalog.Catalog
	if catalogPath != "" {
		cat, err = catalog.Load(catalogPath)
	} else {
		cat, err = catalog.Discover()
	}
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, statePath, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	apiClient, err := client.New(cfg.ClientConfig())
	if err != nil {
		return err
	}

	writer := emit.NewWriter(os.Stdout)
	syncer, err := sync.New(sync.NewClientSource(apiClient), store, writer, cfg.SyncConfig(), logger)
	if err != nil {
		return err
	}

	if err := syncer.Run(ctx, cat); err != nil {
		return err
	}

	logger.Info().
		Uint64("shipments", writer.RecordCount("shipments")).
		Uint64("orders", writer.RecordCount("orders")).
		Msg("Sync finished")
	return nil
}

// openStore picks the state backend: redis when configured, otherwise the
// state file next to the run.
func openStore(ctx context.Context, cfg *config.Config, statePath string, logger zerolog.Logger) (state.Store, func(), error) {
	policy := cfg.StatePolicy()

	if cfg.Redis != nil {
		rc := state.DefaultRedisConfig()
		if cfg.Redis.Addr != "" {
			rc.Addr = cfg.Redis.Addr
		}
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		if cfg.Redis.Prefix != "" {
			rc.KeyPrefix = cfg.Redis.Prefix
		}

		store, err := state.NewRedisStore(ctx, rc, policy)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("addr", rc.Addr).Msg("Using redis state backend")
		return store, func() { store.Close() }, nil
	}

	store, err := state.NewFileStore(statePath, policy)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Str("path", statePath).Msg("Using file state backend")
	return store, func() {}, nil
}
