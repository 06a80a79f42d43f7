// Copyright 2011 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging builds the zap logger kiln's commands and engine share:
// a JSON file sink under the build directory plus, unless suppressed, a
// colorized console sink.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelFromString converts a config/flag string into a zapcore.Level,
// defaulting to info for anything unrecognized.
func LevelFromString(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config controls where and how verbosely New writes.
type Config struct {
	// LogDir holds build.log; typically <build directory>/logs.
	LogDir string
	// FileLevel/ConsoleLevel are independent: a build.log at debug level
	// with a quiet console is the usual default.
	FileLevel    zapcore.Level
	ConsoleLevel zapcore.Level
	// ConsoleEnabled set to false disables the console sink entirely, for commands that
	// render their own progress UI and don't want log lines interleaved.
	ConsoleEnabled bool
}

// DefaultConfig returns the logger configuration a plain `kiln build`
// invocation uses.
func DefaultConfig(buildDirectory string) *Config {
	return &Config{
		LogDir:         filepath.Join(buildDirectory, "logs"),
		FileLevel:      zapcore.DebugLevel,
		ConsoleLevel:   zapcore.WarnLevel,
		ConsoleEnabled: true,
	}
}

// New builds a zap.Logger per cfg. The returned logger's Sync should be
// called before the process exits.
func New(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig(".")
	}
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, err
	}

	fileEncCfg := zap.NewProductionEncoderConfig()
	fileEncCfg.TimeKey = "timestamp"
	fileEncCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileEnc := zapcore.NewJSONEncoder(fileEncCfg)

	logFile, err := os.OpenFile(filepath.Join(cfg.LogDir, "build.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	fileCore := zapcore.NewCore(fileEnc, zapcore.AddSync(logFile), cfg.FileLevel)

	if !cfg.ConsoleEnabled {
		return zap.New(fileCore, zap.AddCaller()), nil
	}

	consoleEncCfg := zap.NewDevelopmentEncoderConfig()
	consoleEncCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEnc := zapcore.NewConsoleEncoder(consoleEncCfg)
	consoleCore := zapcore.NewCore(consoleEnc, zapcore.AddSync(os.Stderr), cfg.ConsoleLevel)

	core := zapcore.NewTee(fileCore, consoleCore)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
