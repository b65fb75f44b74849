package launcher

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jugelauncher/launcher/auth"
	"github.com/jugelauncher/launcher/common"
)

// AuthConfig identifies the OAuth application at the identity provider.
type AuthConfig struct {
	ClientID  string         `yaml:"client_id"`
	Scope     string         `yaml:"scope"`
	Endpoints auth.Endpoints `yaml:"endpoints"`
}

// Config is the launcher's minimal runtime configuration, read from a YAML
// file with environment overrides.
type Config struct {
	BaseDir         string     `yaml:"base_dir"`
	ManifestBaseURL string     `yaml:"manifest_base_url"`
	Auth            AuthConfig `yaml:"auth"`
	Trace           bool       `yaml:"trace"`
}

// LoadConfig reads path (missing file is fine, defaults apply) and then
// applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	raw, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	cfg.applyEnvironment()
	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *Config) applyEnvironment() {
	cfg.BaseDir = common.EnvOrDefault("JUGE_BASE_DIR", cfg.BaseDir)
	cfg.ManifestBaseURL = common.EnvOrDefault("JUGE_MANIFEST_URL", cfg.ManifestBaseURL)
	cfg.Auth.ClientID = common.EnvOrDefault("JUGE_AUTH_CLIENT_ID", cfg.Auth.ClientID)
	if v, ok := common.LookupEnvBool("JUGE_TRACE"); ok {
		cfg.Trace = v
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.BaseDir == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			cfg.BaseDir = filepath.Join(dir, "jugelauncher")
		} else {
			cfg.BaseDir = "jugelauncher"
		}
	}
	if cfg.Auth.Scope == "" {
		cfg.Auth.Scope = "openid profile offline_access"
	}
}
