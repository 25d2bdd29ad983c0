// Command trailvision derives web-delivery renditions of camera-trap images
// and manages their access references.
//
// Usage:
//
//	trailvision process -key <sourceKey> [-public]
//	trailvision refresh -key <derivedKey>
//	trailvision expiring [-within <duration>]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trailvision/internal/blob"
	"trailvision/internal/config"
	"trailvision/internal/infra"
	"trailvision/internal/pipeline"
	"trailvision/internal/refs"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "trailvision:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: trailvision <process|refresh|expiring> [flags]")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "process":
		return runProcess(ctx, cfg, logger, args[1:])
	case "refresh":
		return runRefresh(ctx, cfg, logger, args[1:])
	case "expiring":
		return runExpiring(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func newPipeline(ctx context.Context, cfg config.Config, logger infra.Logger) (*pipeline.Store, error) {
	blobs, err := blob.Open(ctx)
	if err != nil {
		return nil, err
	}
	obs, err := pipeline.NewPrometheusObserver("", nil)
	if err != nil {
		return nil, err
	}
	return pipeline.New(blobs, logger, pipeline.Options{
		Specs:          cfg.Variants,
		SignedURLTTL:   cfg.SignedURLTTL,
		StorageTimeout: cfg.StorageTimeout,
		Observer:       obs,
	}), nil
}

func runProcess(ctx context.Context, cfg config.Config, logger infra.Logger, args []string) error {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	key := fs.String("key", "", "source object key")
	public := fs.Bool("public", false, "make derived images public-read and return permanent URLs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("process: -key required")
	}
	if !cfg.Enabled {
		logger.Warn().Msg("pipeline disabled, skipping")
		return printJSON(map[string]pipeline.Reference{})
	}

	store, err := newPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	outcomes, err := store.ProcessOutcomes(ctx, *key, *public)
	if err != nil {
		return err
	}

	ledger, err := refs.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()
	now := time.Now().UTC()
	var entries []refs.Entry
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		entries = append(entries, refs.Entry{
			SourceKey:  *key,
			Variant:    o.Variant,
			DerivedKey: o.Key,
			URL:        o.Reference.URL,
			Public:     o.Reference.Public,
			IssuedAt:   now,
			ExpiresAt:  o.Reference.ExpiresAt,
		})
	}
	if len(entries) > 0 {
		if err := ledger.Record(ctx, entries); err != nil {
			// Bookkeeping failure never fails processing.
			logger.Warn().Err(err).Msg("recording references failed")
		}
	}
	return printJSON(pipeline.References(outcomes))
}

func runRefresh(ctx context.Context, cfg config.Config, logger infra.Logger, args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ContinueOnError)
	key := fs.String("key", "", "derived object key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("refresh: -key required")
	}
	store, err := newPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	ref, err := store.RefreshReference(ctx, *key)
	if err != nil {
		return err
	}
	return printJSON(ref)
}

func runExpiring(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("expiring", flag.ContinueOnError)
	within := fs.Duration("within", 24*time.Hour, "list references expiring within this window")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ledger, err := refs.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()
	entries, err := ledger.Expiring(ctx, time.Now().Add(*within))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []refs.Entry{}
	}
	return printJSON(entries)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
