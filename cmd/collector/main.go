package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"thermo-poller/internal/config"
	"thermo-poller/internal/logger"
	"thermo-poller/internal/monitor"
	"thermo-poller/pkg/collector"
)

func main() {
	var (
		opts      collector.Options
		logLevel  string
		logFormat string
		status    bool
	)
	flag.StringVar(&opts.ConfigPath, "config", "config/thermo.yaml", "path to YAML config (created with defaults if missing)")
	flag.StringVar(&opts.LogFolder, "log-folder", "", "enable history logging into this folder")
	flag.StringVar(&opts.Port, "port", "", "override serial.port")
	flag.BoolVar(&opts.NoMQTT, "no-mqtt", false, "do not connect to the MQTT broker")
	flag.StringVar(&logLevel, "log-level", "", "override log.level")
	flag.StringVar(&logFormat, "log-format", "", "override log.format")
	flag.BoolVar(&status, "status", false, "print zone status lines on every refresh")
	flag.Parse()

	// log settings live in the config file, so read it before the real run
	cfg, _, err := config.LoadOrCreate(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if logLevel == "" {
		logLevel = cfg.Log.Level
	}
	if logFormat == "" {
		logFormat = cfg.Log.Format
	}
	log, err := logger.New(logLevel, logFormat, "thermo-collector")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if status {
		opts.OnSummary = printStatus
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := collector.Run(ctx, opts, log); err != nil {
		log.Error("collector exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("collector stopped")
}

func printStatus(sum monitor.Summary) {
	link := "down"
	if sum.Connected {
		link = "up"
	}
	fmt.Printf("[%s] link %s, %d alarm(s)\n", sum.At.Format("15:04:05"), link, len(sum.Alarms))
	for _, z := range sum.MonitorZones() {
		fmt.Printf("  %-20s %s\n", z.Name, z.Text)
	}
	for _, a := range sum.Alarms {
		mark := "!"
		if a.Acked {
			mark = "ack"
		}
		fmt.Printf("  [%s] %s: %s\n", mark, a.Title, a.Detail)
	}
}
