package types

// Config represents the gateway configuration.
// Files may be JSON, JSONC, YAML or TOML; field names are shared.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty" toml:"$schema,omitempty"`

	Port     int    `json:"port,omitempty" yaml:"port,omitempty" toml:"port,omitempty"`
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty" toml:"hostname,omitempty"`
	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty" toml:"logLevel,omitempty"`

	Registry    RegistryConfig    `json:"registry,omitempty" yaml:"registry,omitempty" toml:"registry,omitempty"`
	Credentials CredentialsConfig `json:"credentials,omitempty" yaml:"credentials,omitempty" toml:"credentials,omitempty"`
	Auth        AuthConfig        `json:"auth,omitempty" yaml:"auth,omitempty" toml:"auth,omitempty"`
	Restart     RestartConfig     `json:"restart,omitempty" yaml:"restart,omitempty" toml:"restart,omitempty"`
	Bus         BusConfig         `json:"bus,omitempty" yaml:"bus,omitempty" toml:"bus,omitempty"`
	CORS        CORSConfig        `json:"cors,omitempty" yaml:"cors,omitempty" toml:"cors,omitempty"`
	Media       MediaConfig       `json:"media,omitempty" yaml:"media,omitempty" toml:"media,omitempty"`
	Driver      DriverConfig      `json:"driver,omitempty" yaml:"driver,omitempty" toml:"driver,omitempty"`
}

// RegistryConfig selects and configures the session registry backend.
type RegistryConfig struct {
	// Path of the registry file (or database for the sqlite backend).
	Path string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	// Backend is "file" (default) or "sqlite".
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty" toml:"backend,omitempty"`
	// Watch re-reads the registry file on external edits and creates new sessions.
	Watch bool `json:"watch,omitempty" yaml:"watch,omitempty" toml:"watch,omitempty"`
}

// CredentialsConfig points at the per-session credential storage.
type CredentialsConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
}

// AuthConfig lists the users allowed to obtain API tokens.
type AuthConfig struct {
	Users    []string `json:"users,omitempty" yaml:"users,omitempty" toml:"users,omitempty"`
	TokenTTL Duration `json:"tokenTTL,omitempty" yaml:"tokenTTL,omitempty" toml:"tokenTTL,omitempty"`
}

// RestartConfig controls how disconnected sessions are rebuilt.
// A zero InitialInterval restarts immediately and unconditionally.
type RestartConfig struct {
	InitialInterval Duration `json:"initialInterval,omitempty" yaml:"initialInterval,omitempty" toml:"initialInterval,omitempty"`
	MaxInterval     Duration `json:"maxInterval,omitempty" yaml:"maxInterval,omitempty" toml:"maxInterval,omitempty"`
	MaxElapsed      Duration `json:"maxElapsed,omitempty" yaml:"maxElapsed,omitempty" toml:"maxElapsed,omitempty"`
}

// BusConfig tunes observer delivery.
type BusConfig struct {
	QueueSize int `json:"queueSize,omitempty" yaml:"queueSize,omitempty" toml:"queueSize,omitempty"`
}

// CORSConfig lists allowed origins. Empty means "*".
type CORSConfig struct {
	Origins []string `json:"origins,omitempty" yaml:"origins,omitempty" toml:"origins,omitempty"`
}

// MediaConfig bounds uploaded and fetched media.
type MediaConfig struct {
	MaxBytes int64 `json:"maxBytes,omitempty" yaml:"maxBytes,omitempty" toml:"maxBytes,omitempty"`
}

// DriverConfig configures the built-in loopback messaging driver.
type DriverConfig struct {
	PairDelay Duration `json:"pairDelay,omitempty" yaml:"pairDelay,omitempty" toml:"pairDelay,omitempty"`
}
