// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"encoding/base64"
	"time"

	"grimm.is/peek/internal/errors"
	"grimm.is/peek/internal/model"
	"grimm.is/peek/internal/validation"
)

// Validate checks ranges and enumerations. Call after ApplyDefaults.
func (c *Config) Validate() error {
	for name, s := range map[string]string{"poll_interval": c.PollInterval, "stop_timeout": c.StopTimeout} {
		d, err := time.ParseDuration(s)
		if err != nil {
			return errors.Attr(errors.Wrapf(err, errors.KindValidation, "invalid %s", name), "value", s)
		}
		if d <= 0 {
			return errors.Attr(errors.Errorf(errors.KindValidation, "%s must be positive", name), "value", s)
		}
	}

	if c.Workers < 1 || c.Workers > model.MaxWorkers {
		return errors.Errorf(errors.KindValidation, "workers must be between 1 and %d, got %d", model.MaxWorkers, c.Workers)
	}
	if c.CacheSize < 1 || c.CacheSize > model.MaxCacheEntries {
		return errors.Errorf(errors.KindValidation, "cache_size must be between 1 and %d, got %d", model.MaxCacheEntries, c.CacheSize)
	}

	if err := validation.ValidateAllowlist("direction_mode", c.DirectionMode, []string{"listen_table", "port_range"}); err != nil {
		return err
	}
	if err := validation.ValidateAllowlist("log_level", c.LogLevel, []string{"debug", "info", "warn", "error"}); err != nil {
		return err
	}

	if c.Trust != nil {
		seen := make(map[string]bool)
		for _, p := range c.Trust.Publishers {
			if seen[p.Name] {
				return errors.Errorf(errors.KindValidation, "duplicate publisher %q", p.Name)
			}
			seen[p.Name] = true
			if err := validation.ValidateLabel("publisher", p.Name); err != nil {
				return err
			}
			if _, err := base64.StdEncoding.DecodeString(p.PublicKey); err != nil {
				return errors.Wrapf(err, errors.KindValidation, "publisher %q: public_key is not base64", p.Name)
			}
		}
	}

	if c.APIEnabled() {
		if err := validation.ValidateListenAddr("api", c.API.Listen); err != nil {
			return err
		}
	}
	if c.MetricsEnabled() {
		if err := validation.ValidateListenAddr("metrics", c.Metrics.Listen); err != nil {
			return err
		}
	}
	return nil
}
