// Package config handles loading and parsing of ipfsgate configuration.
//
// Values are layered, lowest precedence first: built-in defaults, an
// optional YAML file, environment variables, and command-line flags. The
// resulting Config is immutable for the lifetime of the process.
package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// OperationMode selects how GetObject responses are served.
type OperationMode string

const (
	// ModeProxy streams object bytes from the CAS node through the gateway.
	ModeProxy OperationMode = "proxy"
	// ModeRedirect answers with a 307 redirect to the public gateway.
	ModeRedirect OperationMode = "redirect"
	// ModeAuto proxies for private client addresses and redirects otherwise.
	ModeAuto OperationMode = "auto"
)

// ParseMode validates a mode string.
func ParseMode(s string) (OperationMode, error) {
	switch OperationMode(strings.ToLower(s)) {
	case ModeProxy:
		return ModeProxy, nil
	case ModeRedirect:
		return ModeRedirect, nil
	case ModeAuto:
		return ModeAuto, nil
	}
	return "", fmt.Errorf("%q is not an operation mode", s)
}

// AuthConfig holds the static SigV4 credential pair. When absent, the
// authentication layer is not installed at all.
type AuthConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// LogValue redacts the secret key from structured log output.
func (a AuthConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("access_key", a.AccessKey),
		slog.String("secret_key", "REDACTED"),
	)
}

// String redacts the secret key from debug formatting.
func (a AuthConfig) String() string {
	return fmt.Sprintf("AuthConfig{AccessKey: %s, SecretKey: REDACTED}", a.AccessKey)
}

// RPCCredentials is the optional basic-auth pair for the CAS node RPC.
type RPCCredentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LogValue redacts the password from structured log output.
func (c RPCCredentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", c.Username),
		slog.String("password", "REDACTED"),
	)
}

// String redacts the password from debug formatting.
func (c RPCCredentials) String() string {
	return fmt.Sprintf("RpcCredentials{Username: %s, Password: REDACTED}", c.Username)
}

// ExperimentalFlags gates behaviors that may change between releases.
type ExperimentalFlags struct {
	// TrimEmptyFolders removes empty MFS directories in the background
	// after a delete. May take a while for deeply nested keys.
	TrimEmptyFolders bool `yaml:"trim_empty_folders"`
	// AutoMime derives the content type from the key's extension when the
	// request carries no Content-Type header.
	AutoMime bool `yaml:"auto_mime"`
	// PrivateCIDRs lists extra ranges treated as private in mode=auto.
	PrivateCIDRs []string `yaml:"private_cidrs"`
}

// Config is the top-level configuration for ipfsgate.
type Config struct {
	// Bind is the address to expose the service on.
	Bind string `yaml:"bind"`
	// Port is the TCP port to expose the service on.
	Port int `yaml:"port"`
	// DatabasePath is the location of the SQLite metadata index.
	DatabasePath string `yaml:"database_path"`
	// RPCAddress is the CAS node RPC endpoint (often a Kubo service).
	RPCAddress string `yaml:"rpc_address"`
	// RPCCredentials optionally authenticates against the CAS node.
	RPCCredentials *RPCCredentials `yaml:"rpc_credentials"`
	// Gateway is the public gateway used in 307 redirect responses.
	Gateway string `yaml:"gateway"`
	// Mode is the GetObject operation mode: proxy, redirect, or auto.
	Mode OperationMode `yaml:"mode"`
	// FolderPrefix is the root folder used on the CAS node MFS namespace.
	FolderPrefix string `yaml:"folder_prefix"`
	// IPExtraction selects where the client IP is read from. Use
	// "rightmost-x-forwarded-for" or "x-real-ip" only behind a trusted
	// reverse proxy; "connect-info" reads the TCP peer address.
	IPExtraction string `yaml:"ip_extraction"`
	// Auth protects all S3 endpoints with SigV4 when provided.
	Auth *AuthConfig `yaml:"auth"`
	// ConcurrentMultipartUpload bounds in-memory multipart uploads.
	ConcurrentMultipartUpload int `yaml:"concurrent_multipart_upload"`
	// Experimental flags.
	Experimental ExperimentalFlags `yaml:"experimental"`

	// Logging settings.
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// LogValue renders the configuration with secrets redacted.
func (c *Config) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("bind", c.Bind),
		slog.Int("port", c.Port),
		slog.String("database_path", c.DatabasePath),
		slog.String("rpc_address", c.RPCAddress),
		slog.String("gateway", c.Gateway),
		slog.String("mode", string(c.Mode)),
		slog.String("folder_prefix", c.FolderPrefix),
		slog.String("ip_extraction", c.IPExtraction),
		slog.Int("concurrent_multipart_upload", c.ConcurrentMultipartUpload),
		slog.Bool("trim_empty_folders", c.Experimental.TrimEmptyFolders),
		slog.Bool("auto_mime", c.Experimental.AutoMime),
	}
	if c.Auth != nil {
		attrs = append(attrs, slog.Any("auth", *c.Auth))
	}
	if c.RPCCredentials != nil {
		attrs = append(attrs, slog.Any("rpc_credentials", *c.RPCCredentials))
	}
	return slog.GroupValue(attrs...)
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		Bind:                      "::",
		Port:                      3000,
		DatabasePath:              "metadata.db",
		RPCAddress:                "http://localhost:5001/api/v0",
		Gateway:                   "https://dweb.link",
		Mode:                      ModeAuto,
		FolderPrefix:              "buckets",
		IPExtraction:              "connect-info",
		ConcurrentMultipartUpload: 10,
		Experimental: ExperimentalFlags{
			TrimEmptyFolders: true,
			AutoMime:         true,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads an optional YAML file over the defaults and then applies
// environment variables. Flag overrides are applied by the CLI afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides fields from the environment. Variable names follow
// the flag names: BIND, PORT, DATABASE_PATH, RPC_ADDRESS, RPC_USERNAME,
// RPC_PASSWORD, GATEWAY, MODE, FOLDER_PREFIX, IP_EXTRACTION,
// AUTH_ACCESS_KEY, AUTH_SECRET_KEY, CONCURRENT_MULTIPART_UPLOAD, and the
// EXPERIMENTAL_* flags.
func (c *Config) applyEnv() error {
	setStr := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	setStr("BIND", &c.Bind)
	setStr("DATABASE_PATH", &c.DatabasePath)
	setStr("RPC_ADDRESS", &c.RPCAddress)
	setStr("GATEWAY", &c.Gateway)
	setStr("FOLDER_PREFIX", &c.FolderPrefix)
	setStr("IP_EXTRACTION", &c.IPExtraction)
	setStr("LOG_LEVEL", &c.LogLevel)
	setStr("LOG_FORMAT", &c.LogFormat)

	if v, ok := os.LookupEnv("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing PORT: %w", err)
		}
		c.Port = port
	}
	if v, ok := os.LookupEnv("MODE"); ok {
		mode, err := ParseMode(v)
		if err != nil {
			return err
		}
		c.Mode = mode
	}
	if v, ok := os.LookupEnv("CONCURRENT_MULTIPART_UPLOAD"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing CONCURRENT_MULTIPART_UPLOAD: %w", err)
		}
		c.ConcurrentMultipartUpload = n
	}

	if user, ok := os.LookupEnv("RPC_USERNAME"); ok {
		pass := os.Getenv("RPC_PASSWORD")
		c.RPCCredentials = &RPCCredentials{Username: user, Password: pass}
	}
	if ak, ok := os.LookupEnv("AUTH_ACCESS_KEY"); ok {
		sk := os.Getenv("AUTH_SECRET_KEY")
		c.Auth = &AuthConfig{AccessKey: ak, SecretKey: sk}
	}

	if v, ok := os.LookupEnv("EXPERIMENTAL_TRIM_EMPTY_FOLDERS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing EXPERIMENTAL_TRIM_EMPTY_FOLDERS: %w", err)
		}
		c.Experimental.TrimEmptyFolders = b
	}
	if v, ok := os.LookupEnv("EXPERIMENTAL_AUTO_MIME"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing EXPERIMENTAL_AUTO_MIME: %w", err)
		}
		c.Experimental.AutoMime = b
	}
	if v, ok := os.LookupEnv("EXPERIMENTAL_PRIVATE_CIDRS"); ok {
		c.Experimental.PrivateCIDRs = strings.Split(v, ",")
	}

	return nil
}

// Validate checks cross-field constraints and value formats.
func (c *Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	switch c.IPExtraction {
	case "connect-info", "rightmost-x-forwarded-for", "x-real-ip":
	default:
		return fmt.Errorf("%q is not an ip extraction source", c.IPExtraction)
	}
	if c.ConcurrentMultipartUpload < 1 {
		return fmt.Errorf("concurrent_multipart_upload must be at least 1")
	}
	if c.Auth != nil && (c.Auth.AccessKey == "" || c.Auth.SecretKey == "") {
		return fmt.Errorf("auth requires both access_key and secret_key")
	}
	if _, err := c.PrivatePrefixes(); err != nil {
		return err
	}
	return nil
}

// PrivatePrefixes parses the experimental private CIDR list.
func (c *Config) PrivatePrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.Experimental.PrivateCIDRs))
	for _, s := range c.Experimental.PrivateCIDRs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("parsing private CIDR %q: %w", s, err)
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, nil
}
