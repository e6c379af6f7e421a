package config

import "time"

// Config is the root configuration for a streamer instance.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Venues     VenuesConfig     `yaml:"venues"`
	Connection ConnectionConfig `yaml:"connection"`
	Store      StoreConfig      `yaml:"store"`
	Health     HealthConfig     `yaml:"health"`
}

// InstanceConfig identifies this streamer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// VenuesConfig holds per-venue settings.
type VenuesConfig struct {
	Polymarket VenueConfig `yaml:"polymarket"`
	Predictfun VenueConfig `yaml:"predictfun"`
}

// VenueConfig holds one venue's endpoints and market list.
type VenueConfig struct {
	Enabled bool     `yaml:"enabled"`
	WSURL   string   `yaml:"ws_url"`
	RestURL string   `yaml:"rest_url"`
	APIKey  string   `yaml:"api_key"`
	Markets []string `yaml:"markets"`
}

// ConnectionConfig holds WebSocket connection settings shared by all
// venues.
type ConnectionConfig struct {
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxAttempts int           `yaml:"reconnect_max_attempts"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
}

// StoreConfig holds snapshot writer settings. The writer is optional;
// with Enabled false the streamer runs cache-only.
type StoreConfig struct {
	Enabled       bool          `yaml:"enabled"`
	DB            DBConfig      `yaml:"db"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
