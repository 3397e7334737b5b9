// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"scsibridge/pkg/api"
	"scsibridge/pkg/bridge"
	"scsibridge/pkg/engine"
	"scsibridge/pkg/logger"
)

import _ "net/http/pprof"

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	flag.Parse()

	config, err := loadServiceConfig(*configPath)
	if err != nil {
		logger.GetLogger().Error(err)
		os.Exit(1)
	}
	logger.SetLoggingConfig(config.LogLevel)
	log := logger.GetLogger()
	log.Info(bridge.VersionString())

	if config.PprofAddr != "" {
		go func() {
			err := http.ListenAndServe(config.PprofAddr, nil)
			log.Errorf("pprof: %v", err)
		}()
	}

	targetEngine := engine.New()
	bridgeService, err := bridge.New(targetEngine)
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}

	if config.AddDefaultTarget {
		if err := setupDefaultTarget(bridgeService, targetEngine, config); err != nil {
			log.Error(err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiServer := api.NewApiServer(bridgeService, targetEngine, config.SocketPath)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return apiServer.Run(groupCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error(err)
	}
	bridgeService.Shutdown()
	targetEngine.Drain()
	log.Info("daemon stopped")
}

// setupDefaultTarget registers the configured boot-time target with one
// session and, when a unit size is given, one memory-backed unit.
func setupDefaultTarget(
	bridgeService *bridge.Bridge,
	targetEngine *engine.LocalEngine,
	config serviceConfig,
) error {
	target, err := bridgeService.AddTarget(config.DefaultTargetName)
	if err != nil {
		return err
	}
	if config.DefaultUnitSize != 0 {
		_, err = targetEngine.AttachUnit(config.DefaultTargetName, config.DefaultUnitSize)
		if err != nil {
			return err
		}
	}
	_, err = bridgeService.AddSession(target, config.DefaultSessionName)
	return err
}
