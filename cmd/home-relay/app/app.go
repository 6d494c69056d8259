/*
 * Copyright 2025 Home Relay Authors.
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

// Package app wires the relay's components together and runs them.
package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quietlane/home-relay/pkg/api"
	"github.com/quietlane/home-relay/pkg/bridge"
	"github.com/quietlane/home-relay/pkg/config"
	"github.com/quietlane/home-relay/pkg/fanout"
	"github.com/quietlane/home-relay/pkg/logger"
	"github.com/quietlane/home-relay/pkg/notify"
	"github.com/quietlane/home-relay/pkg/sensor"
)

const shutdownTimeout = 10 * time.Second

// Options contains runtime configuration derived from CLI flags.
type Options struct {
	ConfigPath string
}

// Run boots the relay and blocks until a shutdown signal or a fatal error.
func Run(ctx context.Context, opts Options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		return err
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logger.DefaultConfig()
	}

	mainLogger, err := logger.NewWithComponent(logCfg, "home-relay")
	if err != nil {
		return err
	}

	bus := fanout.New(mainLogger)
	configStore := config.NewStore(cfg.DashboardConfigPath, bus, mainLogger)

	cache, err := sensor.OpenCache(ctx, cfg.Sensors.CachePath)
	if err != nil {
		return err
	}
	defer cache.Close()

	engine := sensor.NewEngine(cfg.Sensors, configStore, cache, bus, mainLogger)

	if err := engine.LoadCache(ctx); err != nil {
		mainLogger.Warn().Err(err).Msg("Sensor cache unreadable, starting cold")
	}

	notifyStore, err := notify.OpenStore(ctx, cfg.Notifications.DBPath)
	if err != nil {
		return err
	}
	defer notifyStore.Close()

	scheduler := notify.NewScheduler(notifyStore, bus, cfg.Notifications, mainLogger)

	bridgeClient := bridge.New(cfg.MQTT, bus, mainLogger)
	bridgeClient.OnDeviceMessage(func(device string, payload []byte) {
		engine.HandleDeviceUpdate(ctx, device, payload)
	})
	engine.AttachBridge(bridgeClient)

	apiServer := api.NewAPIServer(cfg.CORS,
		api.WithLogger(mainLogger),
		api.WithSensors(engine),
		api.WithBridge(bridgeClient),
		api.WithNotifications(notifyStore, scheduler),
		api.WithConfigStore(configStore),
		api.WithBus(bus),
	)

	mainLogger.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("mqtt_host", cfg.MQTT.Host).
		Msg("Home relay starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := bridgeClient.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	g.Go(func() error {
		err := scheduler.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	g.Go(func() error {
		return apiServer.Start(cfg.ListenAddr)
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return apiServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	mainLogger.Info().Msg("Home relay stopped")

	return err
}
