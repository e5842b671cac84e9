// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/autobrr/arrwarden/internal/domain"
)

const (
	bytesPerMegabyte  = 1 << 20
	monitorLogBackups = 2
)

// NewMonitorLogger builds the logger for a single monitor: human-readable
// lines appended to the monitor's own rotating file, plus the process writer.
// The returned closer releases the rotating file.
func NewMonitorLogger(m domain.MonitorConfig) (zerolog.Logger, io.Closer, error) {
	dir := filepath.Dir(m.LogFilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	rotator := &lumberjack.Logger{
		Filename:   m.LogFilePath,
		MaxSize:    megabytesCeil(m.MaxLogSizeBytes),
		MaxBackups: monitorLogBackups,
	}

	fileWriter := zerolog.ConsoleWriter{
		Out:        rotator,
		NoColor:    true,
		TimeFormat: time.RFC3339,
		PartsOrder: []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName},
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(fileWriter, currentProcessWriter())).
		With().
		Timestamp().
		Str("monitor", m.Name).
		Logger()

	return logger, rotator, nil
}

// lumberjack rotates on whole megabytes.
func megabytesCeil(n int64) int {
	if n <= 0 {
		return 1
	}
	mb := (n + bytesPerMegabyte - 1) / bytesPerMegabyte
	return int(mb)
}
