package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Port != 3000 || cfg.Bind != "::" {
		t.Errorf("default bind = %s:%d, want :::3000", cfg.Bind, cfg.Port)
	}
	if cfg.Mode != ModeAuto {
		t.Errorf("default mode = %q, want auto", cfg.Mode)
	}
	if cfg.FolderPrefix != "buckets" {
		t.Errorf("default folder prefix = %q, want buckets", cfg.FolderPrefix)
	}
	if !cfg.Experimental.TrimEmptyFolders || !cfg.Experimental.AutoMime {
		t.Error("experimental defaults should enable trim_empty_folders and auto_mime")
	}
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"proxy", "redirect", "auto", "Auto", "PROXY"} {
		if _, err := ParseMode(valid); err != nil {
			t.Errorf("ParseMode(%q): %v", valid, err)
		}
	}
	if _, err := ParseMode("passthrough"); err == nil {
		t.Error("ParseMode accepted an unknown mode")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "sideways" }},
		{"bad ip extraction", func(c *Config) { c.IPExtraction = "leftmost" }},
		{"zero multipart capacity", func(c *Config) { c.ConcurrentMultipartUpload = 0 }},
		{"auth missing secret", func(c *Config) { c.Auth = &AuthConfig{AccessKey: "AK"} }},
		{"bad private cidr", func(c *Config) { c.Experimental.PrivateCIDRs = []string{"10.0.0.0"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}

func TestPrivatePrefixes(t *testing.T) {
	cfg := Default()
	cfg.Experimental.PrivateCIDRs = []string{"203.0.113.0/24", " 2001:db8::/32 ", ""}
	prefixes, err := cfg.PrivatePrefixes()
	if err != nil {
		t.Fatalf("PrivatePrefixes: %v", err)
	}
	if len(prefixes) != 2 {
		t.Errorf("parsed %d prefixes, want 2", len(prefixes))
	}
}

func TestSecretsNeverFormatted(t *testing.T) {
	const secret = "SUPERSECRETVALUE"
	const password = "RPCPASSWORDVALUE"

	auth := AuthConfig{AccessKey: "AK", SecretKey: secret}
	creds := RPCCredentials{Username: "admin", Password: password}

	for _, formatted := range []string{
		auth.String(),
		fmt.Sprintf("%v", auth),
		fmt.Sprintf("%+v", auth),
		creds.String(),
		fmt.Sprintf("%v", creds),
		fmt.Sprintf("%+v", creds),
	} {
		if strings.Contains(formatted, secret) || strings.Contains(formatted, password) {
			t.Errorf("secret leaked into %q", formatted)
		}
		if !strings.Contains(formatted, "REDACTED") {
			t.Errorf("formatted value %q does not mark redaction", formatted)
		}
	}
}

func TestSecretsNeverLogged(t *testing.T) {
	const secret = "SUPERSECRETVALUE"
	const password = "RPCPASSWORDVALUE"

	cfg := Default()
	cfg.Auth = &AuthConfig{AccessKey: "AK", SecretKey: secret}
	cfg.RPCCredentials = &RPCCredentials{Username: "admin", Password: password}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("startup", "config", cfg)

	out := buf.String()
	if strings.Contains(out, secret) || strings.Contains(out, password) {
		t.Errorf("secret leaked into log output: %s", out)
	}
	if !strings.Contains(out, "AK") {
		t.Errorf("access key missing from log output: %s", out)
	}
}
