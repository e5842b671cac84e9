// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/autobrr/arrwarden/internal/domain"
)

// requiredMonitorKeys lists every key a [[monitors]] table must define.
var requiredMonitorKeys = []string{
	"name",
	"logFilePath",
	"recordFilePath",
	"apiEndpoint",
	"apiKey",
	"runIntervalSecs",
	"maxLogSizeBytes",
	"maxMediaSizeBytes",
	"maxDownloadTimeSecs",
	"maxErrTimeSecs",
	"reapIntervalSecs",
	"hopelessThreshold",
	"warmupTimeSecs",
}

// validateMonitorKeys checks the raw decoded monitor tables for missing keys.
// Zero values are legal for some fields, so presence has to be checked before
// the tables are decoded into structs.
func validateMonitorKeys(raw any) error {
	if raw == nil {
		return nil
	}

	tables, ok := raw.([]any)
	if !ok {
		if typed, isMaps := raw.([]map[string]any); isMaps {
			tables = make([]any, len(typed))
			for i := range typed {
				tables[i] = typed[i]
			}
		} else {
			return fmt.Errorf("monitors must be an array of tables, got %T", raw)
		}
	}

	var errs []error
	for i, table := range tables {
		entry, ok := table.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("monitors[%d] must be a table", i))
			continue
		}
		present := make(map[string]struct{}, len(entry))
		for key := range entry {
			present[strings.ToLower(key)] = struct{}{}
		}
		for _, key := range requiredMonitorKeys {
			if _, ok := present[strings.ToLower(key)]; !ok {
				errs = append(errs, fmt.Errorf("monitors[%d]: %s is required", i, key))
			}
		}
	}

	return errors.Join(errs...)
}

// Validate checks value ranges on an unmarshalled configuration.
func Validate(cfg *domain.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var errs []error
	names := make(map[string]int, len(cfg.Monitors))
	records := make(map[string]int, len(cfg.Monitors))

	for i := range cfg.Monitors {
		m := &cfg.Monitors[i]
		m.APIEndpoint = strings.TrimRight(strings.TrimSpace(m.APIEndpoint), "/")
		prefix := fmt.Sprintf("monitors[%d]", i)

		if strings.TrimSpace(m.Name) == "" {
			errs = append(errs, fmt.Errorf("%s: name must not be empty", prefix))
		} else if prev, dup := names[m.Name]; dup {
			errs = append(errs, fmt.Errorf("%s: name %q already used by monitors[%d]", prefix, m.Name, prev))
		} else {
			names[m.Name] = i
		}

		if strings.TrimSpace(m.RecordFilePath) == "" {
			errs = append(errs, fmt.Errorf("%s: recordFilePath must not be empty", prefix))
		} else if prev, dup := records[m.RecordFilePath]; dup {
			errs = append(errs, fmt.Errorf("%s: recordFilePath %q already used by monitors[%d]", prefix, m.RecordFilePath, prev))
		} else {
			records[m.RecordFilePath] = i
		}

		if strings.TrimSpace(m.LogFilePath) == "" {
			errs = append(errs, fmt.Errorf("%s: logFilePath must not be empty", prefix))
		}
		if u, err := url.Parse(m.APIEndpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s: apiEndpoint %q is not an absolute URL", prefix, m.APIEndpoint))
		}
		if strings.TrimSpace(m.APIKey) == "" {
			errs = append(errs, fmt.Errorf("%s: apiKey must not be empty", prefix))
		}
		if m.RunIntervalSecs <= 0 {
			errs = append(errs, fmt.Errorf("%s: runIntervalSecs must be positive", prefix))
		}
		if m.MaxLogSizeBytes <= 0 {
			errs = append(errs, fmt.Errorf("%s: maxLogSizeBytes must be positive", prefix))
		}
		if m.MaxMediaSizeBytes <= 0 {
			errs = append(errs, fmt.Errorf("%s: maxMediaSizeBytes must be positive", prefix))
		}
		if m.MaxDownloadTimeSec <= 0 {
			errs = append(errs, fmt.Errorf("%s: maxDownloadTimeSecs must be positive", prefix))
		}
		if m.MaxErrTimeSecs < 0 {
			errs = append(errs, fmt.Errorf("%s: maxErrTimeSecs must not be negative", prefix))
		}
		if m.ReapIntervalSecs <= 0 {
			errs = append(errs, fmt.Errorf("%s: reapIntervalSecs must be positive", prefix))
		}
		if m.HopelessThreshold < 0 || m.HopelessThreshold > 1 {
			errs = append(errs, fmt.Errorf("%s: hopelessThreshold must be within [0, 1]", prefix))
		}
		if m.WarmupTimeSecs < 0 {
			errs = append(errs, fmt.Errorf("%s: warmupTimeSecs must not be negative", prefix))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
