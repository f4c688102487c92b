package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/brewgator/lightning-rest/internal/clightning"
	"github.com/brewgator/lightning-rest/internal/config"
	"github.com/brewgator/lightning-rest/internal/db"
	"github.com/brewgator/lightning-rest/internal/gateway"

	log "github.com/sirupsen/logrus"
)

// setLogger initializes the log format and level
func setLogger(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	customFormatter := new(log.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	customFormatter.FullTimestamp = true
	log.SetFormatter(customFormatter)
}

func main() {
	var (
		configPath = flag.String("config", "lightning-rest.yaml", "Path to YAML configuration file")
		host       = flag.String("host", "", "Host to serve on (overrides config)")
		port       = flag.Int("port", 0, "Port to serve on (overrides config)")
		rpcPath    = flag.String("rpc", "", "Path to the lightningd RPC socket (overrides config)")
		dbPath     = flag.String("db", "", "Path to SQLite call journal (overrides config)")
		mockMode   = flag.Bool("mock", false, "Serve an in-memory mock node instead of lightningd")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Explicit flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Server.Host = *host
		case "port":
			cfg.Server.Port = *port
		case "rpc":
			cfg.Lightning.RPCPath = *rpcPath
		case "db":
			cfg.Database.Path = *dbPath
		case "mock":
			cfg.Lightning.Mock = *mockMode
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	setLogger(cfg.Log.Level)

	node, err := connectNode(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize lightning node: %v (try -mock for testing)", err)
	}

	opts := []gateway.Option{
		gateway.WithTimeouts(cfg.ReadTimeout(), cfg.WriteTimeout()),
		gateway.WithRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	}

	if cfg.Database.Path != "" {
		journal, err := openJournal(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize call journal: %v", err)
		}
		defer journal.Close()
		opts = append(opts, gateway.WithJournal(journal))
	}

	// Setup CORS with environment-based configuration
	allowedOrigins := []string{
		fmt.Sprintf("http://localhost:%d", cfg.Server.Port),
		fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
	}
	if envOrigins := os.Getenv("ALLOWED_ORIGINS"); envOrigins != "" {
		allowedOrigins = strings.Split(envOrigins, ",")
		log.Infof("🔒 Using CORS origins from environment: %v", allowedOrigins)
	} else {
		log.Warnf("⚠️  Using default localhost CORS origins. Set ALLOWED_ORIGINS for browser clients on other hosts")
	}
	opts = append(opts, gateway.WithAllowedOrigins(allowedOrigins))

	server := gateway.NewServer(node, opts...)
	if err := server.Start(cfg.Addr()); err != nil {
		log.Fatalf("Failed to start gateway: %v", err)
	}
	fmt.Printf("🚀 lightning-rest serving on http://%s\n", server.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	fmt.Printf("\n🛑 Received %v, shutting down...\n", sig)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout())
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Shutdown: %v", err)
	}
}

func connectNode(cfg *config.Configuration) (clightning.Node, error) {
	if cfg.Lightning.Mock {
		node, err := clightning.NewMockNode(cfg.Lightning.Network)
		if err != nil {
			return nil, err
		}
		fmt.Printf("⚠️  Running in mock mode - serving an in-memory %s node\n", cfg.Lightning.Network)
		return node, nil
	}

	client, err := clightning.NewClient(cfg.Lightning.RPCPath, cfg.RPCTimeout())
	if err != nil {
		return nil, err
	}
	fmt.Printf("⚡ Connected to lightningd at %s\n", client.SocketPath())
	return client, nil
}

// openJournal opens the call journal and prunes rows past the retention window
func openJournal(cfg *config.Configuration) (*db.Database, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	journal, err := db.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	if retention := cfg.Retention(); retention > 0 {
		removed, err := journal.PruneRPCCalls(time.Now().Add(-retention))
		if err != nil {
			journal.Close()
			return nil, fmt.Errorf("failed to prune call journal: %w", err)
		}
		if removed > 0 {
			log.Infof("🧹 Pruned %d journal entries older than %d days", removed, cfg.Database.RetentionDays)
		}
	}

	fmt.Printf("📊 Call journal: %s\n", cfg.Database.Path)
	return journal, nil
}
