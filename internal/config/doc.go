// Package config provides configuration loading, merging, and path management
// for the gateway.
//
// # Configuration Loading
//
// Load merges configuration from several sources in priority order:
//
//  1. .env in the working directory (variables already set are kept)
//  2. Global config (~/.config/wagate/, or WAGATE_CONFIG_DIR)
//  3. Project config (wagate.* and .wagate/wagate.* in the working directory)
//  4. WAGATE_CONFIG file
//  5. WAGATE_CONFIG_CONTENT inline JSON
//  6. Environment variables
//
// Later sources override earlier ones field by field. A missing file is
// skipped; a file that exists but does not parse stops the load.
//
// # Supported Formats
//
// The extension selects the parser:
//   - wagate.json, wagate.jsonc - JSON with comments, via tidwall/jsonc
//   - wagate.yaml, wagate.yml - YAML, via gopkg.in/yaml.v3
//   - wagate.toml - TOML, via BurntSushi/toml
//
// Durations accept Go duration strings ("90s", "1h") or bare milliseconds.
//
// # Variable Interpolation
//
// Configuration files support two placeholders:
//   - {env:VAR_NAME} - Expands to environment variable values
//   - {file:path} - Expands to file contents, escaped for a double-quoted string
//
// Example:
//
//	{
//	  "port": 8000,
//	  "auth": {
//	    "users": ["{env:WAGATE_ADMIN}"],
//	    "tokenTTL": "1h"
//	  },
//	  "restart": { "initialInterval": "2s", "maxInterval": "1m" }
//	}
//
// # Environment Variable Overrides
//
//   - PORT, WAGATE_PORT - listen port
//   - WAGATE_HOSTNAME - listen address
//   - WAGATE_REGISTRY - registry path
//   - WAGATE_REGISTRY_BACKEND - "file" or "sqlite"
//   - WAGATE_AUTH_USERS - comma-separated user list
//   - WAGATE_LOG_LEVEL - log level
//
// # Path Management
//
// Paths follow the XDG Base Directory layout:
//   - Data: ~/.local/share/wagate (registry, credentials)
//   - Config: ~/.config/wagate
//   - State: ~/.local/state/wagate (logs)
//
// On Windows, these paths use APPDATA.
package config
