package main

import (
	"flag"
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

// Location of the config file on disk; overridden by flags, following the
// same -c/-f convention as the rest of the pack's daemons.
var configFile = flag.String("c", "/etc/smtpd.yaml", "Path to YAML config file")
var foreground = flag.Bool("f", true, "Use text log output (false selects JSON logs)")

const defaultMaxReceiveLength = 32 * 1024 * 1024

// Config is the top-level YAML document.
type Config struct {
	Hostname   string         `yaml:"hostname"`
	ServerName string         `yaml:"server_name"`
	MaxSize    int            `yaml:"max_size"`
	SmtpUtf8   bool           `yaml:"smtp_utf8"`
	Listeners  []ListenConfig `yaml:"listeners"`
	Maildir    string         `yaml:"maildir"`
	UserDB     string         `yaml:"user_db"`
	TLS        *TLSConfig     `yaml:"tls"`
}

// ListenConfig is one bind address, either plain (optionally upgradeable
// via STARTTLS) or implicit-TLS.
type ListenConfig struct {
	Address     string `yaml:"address"`
	ImplicitTLS bool   `yaml:"implicit_tls"`
}

// TLSConfig points at the PKCS#12 identity used for both STARTTLS and
// implicit-TLS listeners.
type TLSConfig struct {
	PKCS12File     string `yaml:"pkcs12_file"`
	PKCS12Password string `yaml:"pkcs12_password"`
}

// ParseConfig loads and validates the YAML configuration at path.
func ParseConfig(path string) (*Config, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{MaxSize: defaultMaxReceiveLength}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Hostname == "" {
		return nil, fmt.Errorf("config: hostname is required")
	}
	if len(cfg.Listeners) == 0 {
		return nil, fmt.Errorf("config: at least one listener is required")
	}
	return cfg, nil
}
