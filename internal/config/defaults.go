package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPolymarketWSURL   = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	DefaultPolymarketRestURL = "https://clob.polymarket.com"
	DefaultPredictfunWSURL   = "wss://ws.predict.fun/ws"

	DefaultReconnectBaseDelay   = 5 * time.Second
	DefaultReconnectMaxAttempts = 10
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
	DefaultPingInterval         = 15 * time.Second
	DefaultPingTimeout          = 45 * time.Second
	DefaultFrameBufferSize      = 1024

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultBatchSize     = 1000
	DefaultFlushInterval = 1 * time.Second
	DefaultBufferSize    = 10000

	DefaultHealthPort = 8080
)

func (c *Config) applyDefaults() {
	// Venue defaults
	if c.Venues.Polymarket.WSURL == "" {
		c.Venues.Polymarket.WSURL = DefaultPolymarketWSURL
	}
	if c.Venues.Polymarket.RestURL == "" {
		c.Venues.Polymarket.RestURL = DefaultPolymarketRestURL
	}
	if c.Venues.Predictfun.WSURL == "" {
		c.Venues.Predictfun.WSURL = DefaultPredictfunWSURL
	}

	// Connection defaults
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxAttempts == 0 {
		c.Connection.ReconnectMaxAttempts = DefaultReconnectMaxAttempts
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultFrameBufferSize
	}

	// Store defaults
	if c.Store.Enabled {
		applyDBDefaults(&c.Store.DB)
	}
	if c.Store.BatchSize == 0 {
		c.Store.BatchSize = DefaultBatchSize
	}
	if c.Store.FlushInterval == 0 {
		c.Store.FlushInterval = DefaultFlushInterval
	}
	if c.Store.BufferSize == 0 {
		c.Store.BufferSize = DefaultBufferSize
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
