package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"thermo-poller/internal/collector"
	"thermo-poller/internal/config"
	"thermo-poller/internal/logger"
	"thermo-poller/internal/model"
	"thermo-poller/internal/output"
)

func main() {
	var (
		cfgPath  string
		varRef   string
		fromStr  string
		toStr    string
		since    time.Duration
		outJSON  string
		outCSV   string
		logLevel string
	)
	flag.StringVar(&cfgPath, "config", "config/thermo.yaml", "path to YAML config")
	flag.StringVar(&varRef, "var", "", "variable id or name (required)")
	flag.StringVar(&fromStr, "from", "", "range start, 2006-01-02 or 2006-01-02T15:04:05 (local time)")
	flag.StringVar(&toStr, "to", "", "range end (default now)")
	flag.DurationVar(&since, "since", 24*time.Hour, "range length when -from is empty")
	flag.StringVar(&outJSON, "json", "", "path to write JSON export (optional)")
	flag.StringVar(&outCSV, "csv", "", "path to write CSV export (optional)")
	flag.StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
	flag.Parse()

	log, err := logger.New(logLevel, "console", "thermo-export")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if varRef == "" {
		log.Fatal("-var is required")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal("load config", zap.String("path", cfgPath), zap.Error(err))
	}
	snap := cfg.Snapshot()
	v, ok := findVariable(snap.Variables, varRef)
	if !ok {
		log.Fatal("unknown variable", zap.String("var", varRef))
	}

	to := time.Now()
	if toStr != "" {
		if to, err = parseTime(toStr); err != nil {
			log.Fatal("parse -to", zap.Error(err))
		}
	}
	from := to.Add(-since)
	if fromStr != "" {
		if from, err = parseTime(fromStr); err != nil {
			log.Fatal("parse -from", zap.Error(err))
		}
	}

	samples, err := collector.ReadHistory(snap.Logging, v, from, to)
	if err != nil {
		log.Fatal("read history", zap.Error(err))
	}
	stats := collector.Summarize(samples)

	if outJSON != "" {
		exp := output.Export{
			VariableID: v.ID,
			Name:       v.Name,
			Unit:       v.Unit,
			From:       from,
			To:         to,
			Stats:      stats,
			Samples:    samples,
		}
		if err := output.WriteJSON(outJSON, exp); err != nil {
			log.Fatal("write json", zap.Error(err))
		}
		log.Info("wrote json", zap.String("path", outJSON))
	}
	if outCSV != "" {
		if err := output.WriteCSV(outCSV, samples); err != nil {
			log.Fatal("write csv", zap.Error(err))
		}
		log.Info("wrote csv", zap.String("path", outCSV))
	}

	fmt.Printf("%s %s .. %s: %d samples", v.Name, from.Format(collector.TimestampLayout), to.Format(collector.TimestampLayout), stats.Count)
	if stats.Count > 0 {
		fmt.Printf(", avg %.2f%s, min %.2f%s, max %.2f%s", stats.Avg, v.Unit, stats.Min, v.Unit, stats.Max, v.Unit)
	}
	fmt.Println()
}

func findVariable(vars []model.Variable, ref string) (model.Variable, bool) {
	for _, v := range vars {
		if v.ID == ref {
			return v, true
		}
	}
	for _, v := range vars {
		if strings.EqualFold(v.Name, ref) {
			return v, true
		}
	}
	return model.Variable{}, false
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(collector.TimestampLayout, s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", s)
	}
	return t, nil
}
