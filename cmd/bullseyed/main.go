package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"bullseye/config"
	"bullseye/core"
	"bullseye/observability/logging"
	"bullseye/rpc"
	"bullseye/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("bullseyed", strings.TrimSpace(cfg.NetworkName))

	treasury, err := cfg.Treasury()
	if err != nil {
		logger.Error("invalid treasury address", slog.Any("error", err))
		os.Exit(1)
	}

	dbPath := filepath.Join(cfg.DataDir, "goals")
	db, err := storage.NewLevelDB(dbPath)
	if err != nil {
		logger.Error("failed to open database", slog.String("path", dbPath), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node := core.NewNode(db, treasury)
	server := rpc.NewServer(node, logger)

	logger.Info("node ready",
		slog.String("data_dir", cfg.DataDir),
		slog.String("rpc_address", cfg.RPCAddress),
	)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("JSON-RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
