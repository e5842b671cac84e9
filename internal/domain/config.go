// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "time"

// Config is the process-wide configuration loaded from config.toml.
type Config struct {
	Version string `toml:"-" mapstructure:"-"`

	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`

	MetricsEnabled bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost    string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort    int    `toml:"metricsPort" mapstructure:"metricsPort"`

	Monitors []MonitorConfig `toml:"monitors" mapstructure:"monitors"`
}

// MonitorConfig defines one independently running queue monitor. Every field
// is required.
type MonitorConfig struct {
	Name               string  `toml:"name" mapstructure:"name"`
	LogFilePath        string  `toml:"logFilePath" mapstructure:"logFilePath"`
	RecordFilePath     string  `toml:"recordFilePath" mapstructure:"recordFilePath"`
	APIEndpoint        string  `toml:"apiEndpoint" mapstructure:"apiEndpoint"`
	APIKey             string  `toml:"apiKey" mapstructure:"apiKey"`
	RunIntervalSecs    float64 `toml:"runIntervalSecs" mapstructure:"runIntervalSecs"`
	MaxLogSizeBytes    int64   `toml:"maxLogSizeBytes" mapstructure:"maxLogSizeBytes"`
	MaxMediaSizeBytes  int64   `toml:"maxMediaSizeBytes" mapstructure:"maxMediaSizeBytes"`
	MaxDownloadTimeSec float64 `toml:"maxDownloadTimeSecs" mapstructure:"maxDownloadTimeSecs"`
	MaxErrTimeSecs     float64 `toml:"maxErrTimeSecs" mapstructure:"maxErrTimeSecs"`
	ReapIntervalSecs   float64 `toml:"reapIntervalSecs" mapstructure:"reapIntervalSecs"`
	HopelessThreshold  float64 `toml:"hopelessThreshold" mapstructure:"hopelessThreshold"`
	WarmupTimeSecs     float64 `toml:"warmupTimeSecs" mapstructure:"warmupTimeSecs"`
}

// RunInterval returns the poll interval as a time.Duration.
func (m MonitorConfig) RunInterval() time.Duration {
	return time.Duration(m.RunIntervalSecs * float64(time.Second))
}

// WarmupSamples is the number of time-remaining samples an item must collect
// before hopelessness is judged: floor(warmup / interval).
func (m MonitorConfig) WarmupSamples() int {
	if m.RunIntervalSecs <= 0 {
		return 0
	}
	return int(m.WarmupTimeSecs / m.RunIntervalSecs)
}
