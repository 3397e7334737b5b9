// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"scsibridge/pkg/api"
	"scsibridge/pkg/logger"
)

type serviceConfig struct {
	SocketPath string
	LogLevel   logger.LogLevel
	PprofAddr  string

	// The default target mirrors the historical single-target setup: one
	// target with one session appears at startup without any management
	// action.
	AddDefaultTarget   bool
	DefaultTargetName  string
	DefaultSessionName string
	DefaultUnitSize    uint64
}

func defaultServiceConfig() serviceConfig {
	return serviceConfig{
		SocketPath:         api.DefaultSocketPath,
		LogLevel:           logger.Info,
		PprofAddr:          "localhost:6060",
		AddDefaultTarget:   true,
		DefaultTargetName:  "scsi_bridge_tgt",
		DefaultSessionName: "scsi_bridge_host",
		DefaultUnitSize:    0,
	}
}

// scsibridged config.toml key mapping.
type fileConfig struct {
	SocketPath         string `toml:"socket_path"`
	LogLevel           string `toml:"log_level"`
	PprofAddr          string `toml:"pprof_addr"`
	AddDefaultTarget   bool   `toml:"add_default_target"`
	DefaultTargetName  string `toml:"default_target_name"`
	DefaultSessionName string `toml:"default_session_name"`
	DefaultUnitSize    uint64 `toml:"default_unit_size"`
}

// loadServiceConfig overlays config.toml values on the defaults; keys
// absent from the file keep their default.
func loadServiceConfig(path string) (serviceConfig, error) {
	cfg := defaultServiceConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serviceConfig{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("socket_path") {
		cfg.SocketPath = strings.TrimSpace(raw.SocketPath)
	}
	if meta.IsDefined("log_level") {
		level, err := parseLogLevel(raw.LogLevel)
		if err != nil {
			return serviceConfig{}, fmt.Errorf("load config: %w", err)
		}
		cfg.LogLevel = level
	}
	if meta.IsDefined("pprof_addr") {
		cfg.PprofAddr = strings.TrimSpace(raw.PprofAddr)
	}
	if meta.IsDefined("add_default_target") {
		cfg.AddDefaultTarget = raw.AddDefaultTarget
	}
	if meta.IsDefined("default_target_name") {
		cfg.DefaultTargetName = strings.TrimSpace(raw.DefaultTargetName)
	}
	if meta.IsDefined("default_session_name") {
		cfg.DefaultSessionName = strings.TrimSpace(raw.DefaultSessionName)
	}
	if meta.IsDefined("default_unit_size") {
		cfg.DefaultUnitSize = raw.DefaultUnitSize
	}

	if cfg.AddDefaultTarget {
		if cfg.DefaultTargetName == "" {
			return serviceConfig{}, fmt.Errorf(
				"load config: default_target_name must not be empty")
		}
		if cfg.DefaultSessionName == "" {
			return serviceConfig{}, fmt.Errorf(
				"load config: default_session_name must not be empty")
		}
	}
	return cfg, nil
}

func parseLogLevel(value string) (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return logger.Error, nil
	case "warning", "warn":
		return logger.Warning, nil
	case "info":
		return logger.Info, nil
	case "debug":
		return logger.Debug, nil
	default:
		return logger.Info, fmt.Errorf("unknown log level %q", value)
	}
}
