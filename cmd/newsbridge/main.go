package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/newsbridge/internal/config"
	"github.com/TobiSchelling/newsbridge/internal/database"
	"github.com/TobiSchelling/newsbridge/internal/fetch"
	"github.com/TobiSchelling/newsbridge/internal/logger"
	"github.com/TobiSchelling/newsbridge/internal/pipeline"
	"github.com/TobiSchelling/newsbridge/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	log        = logger.New("INFO")
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "newsbridge",
	Short:   "Bilingual news ingestion",
	Long:    "newsbridge imports Hebrew and English news from feeds, pages and an extraction API into one searchable store.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "DEBUG"
		}
		log = logger.New(level)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newsbridge", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/newsbridge/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources and the store; export DIFFBOT_TOKEN for URL imports.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Store: %s\n\n", cfg.Store.Driver)
		fmt.Println("Articles:")
		fmt.Printf("  Total: %d\n", stats.TotalArticles)
		fmt.Printf("  Categories: %d\n", stats.Categories)

		if len(stats.Sources) > 0 {
			fmt.Println("\nArticles by source:")
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range stats.Sources {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}

		fmt.Println("\nImports:")
		fmt.Printf("  Runs: %d\n", stats.ImportRuns)
		if stats.LastImportAt != nil {
			fmt.Printf("  Last: %s\n", stats.LastImportAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// --- import command ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import articles from a source",
}

var importFeedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Import the configured syndication feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), func(ctx context.Context, imp *pipeline.Importer) (*pipeline.Report, error) {
			return imp.ImportFeed(ctx)
		})
	},
}

var importPageCmd = &cobra.Command{
	Use:   "page",
	Short: "Import article cards from the configured listing pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), func(ctx context.Context, imp *pipeline.Importer) (*pipeline.Report, error) {
			return imp.ImportPage(ctx)
		})
	},
}

var importURLCmd = &cobra.Command{
	Use:   "url <target>",
	Short: "Extract and import a single article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), func(ctx context.Context, imp *pipeline.Importer) (*pipeline.Report, error) {
			return imp.ImportURL(ctx, args[0])
		})
	},
}

func init() {
	importCmd.AddCommand(importFeedCmd)
	importCmd.AddCommand(importPageCmd)
	importCmd.AddCommand(importURLCmd)
}

func runImport(ctx context.Context, run func(context.Context, *pipeline.Importer) (*pipeline.Report, error)) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := run(ctx, newImporter(store))
	if err != nil {
		return err
	}
	fmt.Println(report.Summary())
	return nil
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")

		fetcher := newFetcher()
		budget := fetcher.Budget(longestEndpointList(cfg)) + 30*time.Second
		log.Debug("import timeout", "budget", budget)

		srv := server.New(store, pipeline.NewImporter(cfg, store, fetcher, log), log, server.WithImportTimeout(budget))
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func newFetcher() *fetch.Fetcher {
	return fetch.New(fetch.Config{
		Timeout:   cfg.Fetch.Timeout,
		BaseDelay: cfg.Fetch.BaseDelay,
		MaxDelay:  cfg.Fetch.MaxDelay,
		UserAgent: cfg.Fetch.UserAgent,
	}, log)
}

func newImporter(store database.Store) *pipeline.Importer {
	return pipeline.NewImporter(cfg, store, newFetcher(), log)
}

// longestEndpointList is the endpoint count of the slowest possible import.
func longestEndpointList(c *config.Config) int {
	return max(len(c.Sources.Feed.Endpoints), len(c.Sources.Page.Endpoints), 1)
}

func openStore(ctx context.Context) (database.Store, error) {
	if cfg.Store.Driver == "postgres" {
		log.Debug("opening postgres store")
		pg, err := database.OpenPostgres(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}

	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "newsbridge.db")
	log.Debug("opening sqlite store", slog.String("path", dbPath))
	db, err := database.Open(dbPath, log)
	if err != nil {
		return nil, err
	}
	return db, nil
}
