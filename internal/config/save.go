package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"easypass/internal/security"
)

const tomlHeader = `# easypass configuration
#
# Type the trigger prefix, a site and a terminator, e.g. ";;github.com<Space>",
# and the text is replaced with the password for that site.
#
# Leave master_key empty and set EASYPASS_MASTER_KEY, or run
# "easypass run --prompt" to be asked for it on start.

`

// SaveConfig saves the configuration to a file with owner-only
// permissions. The format follows the extension; TOML is the default.
func SaveConfig(cfg *Config, path string) error {
	data, err := Marshal(cfg, filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	defer security.Wipe(data)

	if err := security.WriteSecretFile(path, data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SetAutostart rewrites the autostart setting in the file at path,
// keeping everything else as written. Environment overrides are not
// applied, so a key from EASYPASS_MASTER_KEY never reaches the file.
func SetAutostart(path string, enabled bool) error {
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if cfg.keyOwned {
			security.WipeString(&cfg.Default.MasterKey)
		}
	}()

	if cfg.Default.Autostart == enabled {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	cfg.Default.Autostart = enabled
	return SaveConfig(cfg, path)
}

// Marshal encodes cfg in the format named by ext (".toml", ".json",
// ".yaml" or ".yml", with or without the dot). Anything else is TOML.
func Marshal(cfg *Config, ext string) ([]byte, error) {
	switch strings.TrimPrefix(ext, ".") {
	case "json":
		return json.MarshalIndent(cfg, "", "  ")
	case "yaml", "yml":
		return yaml.Marshal(cfg)
	default:
		return encodeToTOML(cfg)
	}
}

func encodeToTOML(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(tomlHeader)
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
