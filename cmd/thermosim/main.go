package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"thermo-poller/internal/logger"
	"thermo-poller/internal/servermgr"
)

func main() {
	var (
		cfgPath   string
		logLevel  string
		logFormat string
	)
	flag.StringVar(&cfgPath, "config", "config/thermosim.yaml", "path to simulator YAML config")
	flag.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flag.StringVar(&logFormat, "log-format", "console", "json or console")
	flag.Parse()

	log, err := logger.New(logLevel, logFormat, "thermosim")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := servermgr.LoadConfig(cfgPath)
	if err != nil {
		log.Fatal("load config", zap.String("path", cfgPath), zap.Error(err))
	}
	mgr, err := servermgr.NewManager(cfg, log)
	if err != nil {
		log.Fatal("build simulator", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := mgr.Run(ctx); err != nil {
		log.Error("simulator exited", zap.Error(err))
		os.Exit(1)
	}
}
