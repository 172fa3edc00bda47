package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"thermo-poller/internal/collector"
	"thermo-poller/internal/config"
	"thermo-poller/internal/logger"
	"thermo-poller/internal/model"
)

// probe reads every enabled variable once (or every -every) and prints the
// decoded values. It is meant for commissioning a new bus.
func main() {
	var (
		configPath string
		port       string
		detect     bool
		every      time.Duration
		logLevel   string
	)
	flag.StringVar(&configPath, "config", "config/thermo.yaml", "path to YAML config")
	flag.StringVar(&port, "port", "", "override serial.port")
	flag.BoolVar(&detect, "detect", false, "also detect the block offset of every slave")
	flag.DurationVar(&every, "every", 0, "repeat the probe at this interval (0 = once)")
	flag.StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
	flag.Parse()

	log, err := logger.New(logLevel, "console", "probe")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("load config", zap.String("path", configPath), zap.Error(err))
	}
	if port != "" {
		cfg.Serial.Port = port
	}

	sess, err := collector.Connect(cfg.SerialSettings(), log)
	if err != nil {
		log.Fatal("connect", zap.Error(err))
	}
	defer sess.Close()

	snap := cfg.Snapshot()
	if detect {
		detectOffsets(collector.NewBlockMapper(cfg.BlockWindow(), sess, log), cfg.BlockWindow(), snap.Variables)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for {
		readAll(sess, snap.Variables, log)
		if every <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(every):
		}
	}
}

func readAll(sess collector.Session, vars []model.Variable, log *zap.Logger) {
	for _, v := range vars {
		if !v.Enabled {
			continue
		}
		raw, err := sess.ReadSingle(v.Slave, v.Kind, v.Address)
		if err != nil {
			log.Warn("read failed", zap.String("variable_id", v.ID), zap.Error(err))
			fmt.Printf("%s (%s@%d slave %d) = error: %v\n", v.Name, v.Kind, v.Address, v.Slave, err)
			continue
		}
		value := collector.Convert(v, raw)
		fmt.Printf("%s (%s@%d slave %d) = %s%s raw=%d\n",
			v.Name, v.Kind, v.Address, v.Slave,
			strconv.FormatFloat(value, 'f', v.Decimals, 64), v.Unit, raw)
	}
}

func detectOffsets(mapper *collector.BlockMapper, window collector.BlockWindow, vars []model.Variable) {
	type pair struct {
		slave uint8
		kind  model.RegisterKind
	}
	seen := make(map[pair]bool)
	for _, v := range vars {
		p := pair{v.Slave, v.Kind}
		if !v.Enabled || !window.Contains(v.Address) || seen[p] {
			continue
		}
		seen[p] = true
		if _, err := mapper.Read(p.slave, p.kind); err != nil {
			fmt.Printf("slave %d %s: block %d..%d unresolved: %v\n",
				p.slave, p.kind, window.Start, window.Start+window.Count-1, err)
			continue
		}
		off, _ := mapper.Offset(p.slave, p.kind)
		fmt.Printf("slave %d %s: block offset %d (reads %d..%d)\n",
			p.slave, p.kind, off, window.Start-off, window.Start-off+window.Count-1)
	}
}
