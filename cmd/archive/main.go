// Command archive exports stored candles of one table to S3 as Parquet.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/config"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/archive"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/store/sqlite"
)

func main() {
	var (
		configPath = flag.String("config", "config/collector.yml", "path to the YAML configuration file")
		table      = flag.String("table", sqlite.TableSpotKlines, "kline table to export")
		symbol     = flag.String("symbol", "BTCUSDT", "instrument symbol")
		interval   = flag.String("interval", "D", "kline interval")
		fromFlag   = flag.String("from", "", "range start, RFC 3339 (default: 24h before -to)")
		toFlag     = flag.String("to", "", "range end, RFC 3339 (default: now)")
	)
	flag.Parse()

	if err := run(*configPath, *table, *symbol, *interval, *fromFlag, *toFlag); err != nil {
		fmt.Fprintf(os.Stderr, "archive: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, table, symbol, interval, fromFlag, toFlag string) error {
	from, to, err := parseRange(fromFlag, toFlag, time.Now().UTC())
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.Init(logger.Options{
		Service: "crypto-scout-archive",
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(sqlite.Config{Path: cfg.SQLite.Path})
	if err != nil {
		return err
	}
	defer db.Close()

	klines, err := sqlite.NewKlineRepository(db, table)
	if err != nil {
		return err
	}
	client, err := archive.NewS3Client(ctx, cfg.Archive)
	if err != nil {
		return err
	}
	exporter, err := archive.NewExporter(client, cfg.Archive.Bucket, cfg.Archive.Prefix)
	if err != nil {
		return err
	}

	res, err := exporter.Export(ctx, table, klines, symbol, interval, from, to)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{
		"table":   table,
		"key":     res.Key,
		"records": res.Rows,
	}).Info("export finished")
	return nil
}

func parseRange(fromFlag, toFlag string, now time.Time) (time.Time, time.Time, error) {
	to := now
	if toFlag != "" {
		t, err := time.Parse(time.RFC3339, toFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to: %w", err)
		}
		to = t.UTC()
	}
	from := to.Add(-24 * time.Hour)
	if fromFlag != "" {
		t, err := time.Parse(time.RFC3339, fromFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -from: %w", err)
		}
		from = t.UTC()
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("-to %s is before -from %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return from, to, nil
}
