package main

import (
	"database/sql"

	"github.com/spf13/viper"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/adapters/jlog"
	"github.com/flowscribe/flowscribe/adapters/memstore"
	"github.com/flowscribe/flowscribe/adapters/sqlitestore"
	"github.com/flowscribe/flowscribe/screenshot"
)

// app holds the wired storage and session stack shared by the subcommands.
type app struct {
	logger   flowscribe.Logger
	db       *sql.DB
	kv       flowscribe.KVStore
	blobs    flowscribe.BlobStore
	pipeline *screenshot.Pipeline
	manager  *flowscribe.Manager
	flows    *flowscribe.FlowStore
}

// buildApp wires stores from config: a sqlite file when storage.path is set,
// otherwise everything in memory for throwaway sessions.
func buildApp() (*app, error) {
	logger := jlog.New()

	var (
		db    *sql.DB
		kv    flowscribe.KVStore
		blobs flowscribe.BlobStore
	)
	if path := viper.GetString("storage.path"); path != "" {
		var err error
		db, err = sqlitestore.Open(path)
		if err != nil {
			return nil, err
		}
		err = sqlitestore.InitSchema(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		kv = sqlitestore.NewKVStore(db)
		blobs = sqlitestore.NewBlobStore(db)
	} else {
		kv = memstore.New()
		blobs = memstore.NewBlobStore()
	}

	pipeline := screenshot.New(blobs, screenshot.WithLogger(logger))

	manager := flowscribe.NewManager(
		flowscribe.NewSessionStore(kv),
		flowscribe.WithManagerLogger(logger),
	)

	flows := flowscribe.NewFlowStore(kv, blobs,
		flowscribe.WithScreenshotRouter(pipeline),
		flowscribe.WithFlowStoreLogger(logger),
	)

	return &app{
		logger:   logger,
		db:       db,
		kv:       kv,
		blobs:    blobs,
		pipeline: pipeline,
		manager:  manager,
		flows:    flows,
	}, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
