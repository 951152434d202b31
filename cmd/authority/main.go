// Package main runs the reference authority for the delta protocol.
package main

import (
	"flag"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kimhsiao/taskin/backend/internal/authority"
	"github.com/kimhsiao/taskin/backend/internal/config"
	"github.com/kimhsiao/taskin/backend/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file (default: ~/.taskin/config.yaml then ./.taskin/config.yaml)")
	addr := flag.String("addr", "", "listen address (default: authority.addr)")
	dsn := flag.String("dsn", "", "SQLite database (default: authority.dsn)")
	tokens := flag.String("tokens", "", "comma separated token=userID pairs (default: authority.tokens)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	logging.Init(os.Stderr, logging.LevelInfo)
	if err != nil {
		logging.Error("Failed to load config", err)
		os.Exit(1)
	}
	logging.Init(os.Stderr, logging.ParseLevel(cfg.Log.Level))

	if *addr == "" {
		*addr = cfg.Authority.Addr
	}
	if *dsn == "" {
		*dsn = cfg.Authority.DSN
	}
	pairs := cfg.Authority.Tokens
	if *tokens != "" {
		pairs = strings.Split(*tokens, ",")
	}

	verifier, err := authority.ParseTokens(pairs)
	if err != nil {
		logging.Error("Invalid tokens", err)
		os.Exit(1)
	}
	if len(verifier) == 0 {
		logging.Warn("No tokens configured, every request will be rejected")
	}

	store, err := authority.OpenStore(*dsn)
	if err != nil {
		logging.Error("Failed to open store", err, map[string]interface{}{"dsn": *dsn})
		os.Exit(1)
	}
	defer store.Close()

	gin.SetMode(gin.ReleaseMode)
	server := authority.NewServer(authority.NewService(store), verifier)
	logging.Info("Authority listening", map[string]interface{}{"addr": *addr, "dsn": *dsn})
	if err := server.Run(*addr); err != nil {
		logging.Error("Authority stopped", err)
		os.Exit(1)
	}
}
