package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/brewgator/lightning-rest/internal/check"
	"github.com/brewgator/lightning-rest/internal/clightning"
	"github.com/brewgator/lightning-rest/internal/config"

	log "github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath = flag.String("config", "lightning-rest.yaml", "Path to YAML configuration file")
		gatewayURL = flag.String("gateway", "", "Gateway base URL (default: from config)")
		rpcPath    = flag.String("rpc", "", "Path to the lightningd RPC socket (default: from config)")
		force      = flag.Bool("force", false, "Create and delete invoices even when the node is not on testnet")
		timeout    = flag.Duration("timeout", 2*time.Minute, "Overall timeout for the check run")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *gatewayURL == "" {
		*gatewayURL = "http://" + cfg.Addr()
	}
	if *rpcPath == "" {
		*rpcPath = cfg.Lightning.RPCPath
	}
	if *rpcPath == "" {
		log.Fatalf("No RPC socket configured, pass -rpc")
	}

	node, err := clightning.NewClient(*rpcPath, cfg.RPCTimeout())
	if err != nil {
		log.Fatalf("Failed to connect to lightningd: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	checker := check.NewChecker(*gatewayURL, node, &http.Client{Timeout: cfg.WriteTimeout()})
	report, err := checker.Run(ctx, check.Options{Force: *force})
	if err != nil {
		log.Fatalf("Check run failed: %v", err)
	}

	fmt.Printf("🔎 Checking %s against %s (%s)\n\n", *gatewayURL, *rpcPath, report.Network)
	for _, res := range report.Results {
		switch {
		case res.Skipped:
			fmt.Printf("⏭️  %-26s %s\n", res.Name, res.Detail)
		case res.Passed:
			fmt.Printf("✅ %-26s %s\n", res.Name, res.Route)
		default:
			fmt.Printf("❌ %-26s %s\n   %s\n", res.Name, res.Route, res.Detail)
		}
	}

	if failed := report.Failed(); failed > 0 {
		fmt.Printf("\n%d of %d checks failed\n", failed, len(report.Results))
		os.Exit(1)
	}
	fmt.Println("\nAll checks passed")
}
