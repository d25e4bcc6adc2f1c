package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"shipfilter/internal/audit"
	"shipfilter/internal/config"
	"shipfilter/internal/dictionary"
	"shipfilter/internal/filterspec"
	"shipfilter/internal/pipeline"
	"shipfilter/internal/session"
	"shipfilter/internal/store"
	"shipfilter/internal/token"
)

// backend is everything a command needs to run filters. db and buffer are
// nil in offline mode.
type backend struct {
	svc    *pipeline.Service
	db     *store.Store
	buffer *audit.Buffer
}

func (b *backend) Close() {
	if b.buffer != nil {
		b.buffer.Stop()
	}
	if b.db != nil {
		b.db.Close()
	}
}

// openBackend wires the pipeline. With a schema file the pipeline runs
// offline against that schema with in-memory confirmations; otherwise it
// connects to the configured database.
func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger, schemaFile string) (*backend, error) {
	signer, err := token.NewSigner(cfg.Token.Secret, token.WithTTL(cfg.Token.TTL))
	if err != nil {
		return nil, err
	}
	opts := pipeline.Options{
		Dictionary: dictionary.Default(),
		Signer:     signer,
		Table:      cfg.Database.Table,
		Dialect:    cfg.Compiler.Dialect,
		Limits:     cfg.Limits,
		MaxRows:    cfg.Execute.MaxRows,
		Logger:     logger,
	}

	b := &backend{}
	if schemaFile != "" {
		schema, err := readSchema(schemaFile)
		if err != nil {
			return nil, err
		}
		opts.Schema = &schema
		opts.Confirmations = session.NewMemoryStore()
	} else {
		db, err := store.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", cfg.Database.Driver, err)
		}
		if err := db.Bootstrap(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("bootstrap system tables: %w", err)
		}
		logger.Info("database ready", zap.String("driver", db.Dialect.Name()), zap.String("table", cfg.Database.Table))
		b.db = db
		opts.DB = db
		opts.Confirmations = db
		if cfg.Audit.Enabled {
			b.buffer = audit.NewBuffer(db, logger, cfg.Audit.BufferSize, cfg.Audit.FlushIntervalMs)
			opts.Recorder = b.buffer
		}
	}

	b.svc, err = pipeline.New(opts)
	if err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// readSchema loads a JSON object mapping column names to declared types.
func readSchema(path string) (filterspec.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return filterspec.Snapshot{}, err
	}
	var cols map[string]string
	if err := json.Unmarshal(data, &cols); err != nil {
		return filterspec.Snapshot{}, fmt.Errorf("parse schema %s: %w", path, err)
	}
	if len(cols) == 0 {
		return filterspec.Snapshot{}, fmt.Errorf("schema %s has no columns", path)
	}
	return filterspec.NewSnapshot(cols), nil
}
