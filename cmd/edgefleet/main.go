/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/edgefleet/pkg/core"
	"github.com/carverauto/edgefleet/pkg/core/api"
	"github.com/carverauto/edgefleet/pkg/crypto/secrets"
	"github.com/carverauto/edgefleet/pkg/db"
	"github.com/carverauto/edgefleet/pkg/logger"
	"github.com/carverauto/edgefleet/pkg/models"
	"github.com/carverauto/edgefleet/pkg/natsleaf"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/edgefleet/core.json", "Path to edgefleet config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logr, err := logger.New(logger.Config{Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database, logr)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	store := db.New(pool, logr)
	defer store.Close()

	if err := db.RunMigrations(ctx, pool, logr); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Without a key the service still starts; flows that need the vault
	// refuse with a clear error instead.
	vault := secrets.Unconfigured()
	if cfg.Onboarding.EncryptionKey != "" {
		vault, err = secrets.NewCipherFromBase64(cfg.Onboarding.EncryptionKey)
		if err != nil {
			return fmt.Errorf("init secrets cipher: %w", err)
		}
	}

	minter, err := natsleaf.NewMinter(cfg.LeafCreds.AccountSeed)
	if err != nil {
		return fmt.Errorf("init credential minter: %w", err)
	}

	server := api.NewServer(
		core.NewOnboardingService(cfg.Onboarding, store, vault, logr),
		core.NewSiteService(cfg.LeafCreds, store, vault, minter, logr),
		core.NewBundleService(cfg.LeafCreds, store, vault, logr),
		logr,
	)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logr.Info().Str("addr", cfg.ListenAddr).Msg("Starting edgefleet API")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logr.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}

func loadConfig(path string) (*models.CoreServiceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg models.CoreServiceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8090"
	}

	if cfg.Database == nil {
		return nil, errors.New("config: database section is required")
	}

	if cfg.Onboarding == nil {
		cfg.Onboarding = &models.OnboardingConfig{}
	}

	if cfg.Onboarding.Enabled && cfg.Onboarding.EncryptionKey == "" {
		return nil, errors.New("config: onboarding.encryption_key is required when onboarding is enabled")
	}

	if cfg.LeafCreds == nil || cfg.LeafCreds.AccountSeed == "" {
		return nil, errors.New("config: leaf_creds.account_seed is required")
	}

	return &cfg, nil
}
