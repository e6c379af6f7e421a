package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if !c.Venues.Polymarket.Enabled && !c.Venues.Predictfun.Enabled {
		return errors.New("at least one venue must be enabled")
	}
	if err := c.Venues.Polymarket.validate("venues.polymarket"); err != nil {
		return err
	}
	if err := c.Venues.Predictfun.validate("venues.predictfun"); err != nil {
		return err
	}

	if c.Connection.ReconnectBaseDelay <= 0 {
		return errors.New("connection.reconnect_base_delay must be > 0")
	}
	if c.Connection.ReconnectMaxAttempts < 1 {
		return errors.New("connection.reconnect_max_attempts must be >= 1")
	}
	if c.Connection.BufferSize < 1 {
		return errors.New("connection.buffer_size must be >= 1")
	}

	if c.Store.Enabled {
		if err := c.Store.DB.validate("store.db"); err != nil {
			return err
		}
		if c.Store.BatchSize < 1 {
			return errors.New("store.batch_size must be >= 1")
		}
		if c.Store.BufferSize < 1 {
			return errors.New("store.buffer_size must be >= 1")
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (v *VenueConfig) validate(prefix string) error {
	if !v.Enabled {
		return nil
	}
	if v.WSURL == "" {
		return fmt.Errorf("%s.ws_url is required", prefix)
	}
	if len(v.Markets) == 0 {
		return fmt.Errorf("%s.markets must list at least one market", prefix)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
