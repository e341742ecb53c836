package main

import (
	"context"
	"fmt"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dream-push-backend/config"
	"dream-push-backend/internal/credential"
	"dream-push-backend/internal/db"
	"dream-push-backend/internal/gateway"
	"dream-push-backend/internal/logging"
	"dream-push-backend/internal/notification"
	"dream-push-backend/internal/processor"
	"dream-push-backend/internal/store"
)

// app is the wired dependency graph shared by the commands.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	db        *gorm.DB
	store     store.Store
	processor *processor.Service

	closers []func() error
}

func loadApp(ctx context.Context, configPath string) (_ *app, err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration from %s: %w", configPath, err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	log.Info("configuration loaded", zap.String("path", configPath))
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			err = errs.Combine(err, a.Close())
		}
	}()

	a.db, err = db.Init(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	a.closers = append(a.closers, func() error {
		sqlDB, err := a.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	a.store = store.NewGormStore(a.db)

	account, err := credential.LoadServiceAccount(cfg.Firebase)
	if err != nil {
		return nil, err
	}
	minter := credential.NewMinter(account, cfg.Firebase, log)
	source, closeSource, err := credential.NewSource(ctx, minter, cfg.CredentialCache, log)
	if err != nil {
		return nil, fmt.Errorf("set up access token source: %w", err)
	}
	a.closers = append(a.closers, closeSource)

	client := gateway.NewClient(cfg.Firebase, account.ProjectID, cfg.Processor.SendRatePerSec, log)
	vapid := gateway.NewVAPIDClient(cfg.Push, cfg.Firebase.RequestTimeout, log)
	if !vapid.Enabled() {
		log.Warn("vapid keys are not configured; browser subscriptions cannot be delivered")
	}
	dispatcher := notification.NewDispatcher(a.store, client, vapid, gateway.NewBuilder(cfg.Push), cfg.Processor.Concurrency, log)
	a.processor = processor.NewService(cfg.Processor, a.store, source, dispatcher, log)

	log.Info("pipeline initialized",
		zap.String("project", account.ProjectID),
		zap.String("send_url", client.SendURL()),
		zap.String("credential_cache", cfg.CredentialCache.Driver))
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var group errs.Group
	for i := len(a.closers) - 1; i >= 0; i-- {
		group.Add(a.closers[i]())
	}
	a.closers = nil
	_ = a.log.Sync()
	return group.Err()
}
