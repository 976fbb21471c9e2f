// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	defaults := map[string]any{
		"database.type":         "sqlite",
		"database.dsn":          "./warden.db",
		"language":              "en",
		"reconcile.concurrency": 4,
	}
	c, err := LoadConfig[Config](&cobra.Command{}, defaults, nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Database.Type != "sqlite" || c.Database.Dsn != "./warden.db" {
		t.Errorf("database defaults not applied: %+v", c.Database)
	}
	if c.Reconcile.Concurrency != 4 {
		t.Errorf("concurrency default = %d", c.Reconcile.Concurrency)
	}
}

func TestLoadConfigReadsExplicitFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	yaml := "database:\n  type: postgres\n  dsn: postgresql://warden@db/warden\nreconcile:\n  admin_group: sudo\narchive:\n  root: /srv/archives\n"
	file := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := LoadConfig[Config](&cobra.Command{}, map[string]any{"database.type": "sqlite"}, &file)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Database.Type != "postgres" {
		t.Errorf("file value must beat default, got %q", c.Database.Type)
	}
	if c.Reconcile.AdminGroup != "sudo" || c.Archive.Root != "/srv/archives" {
		t.Errorf("nested values lost: %+v", c)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("WARDEN_DATABASE_TYPE", "mysql")

	yaml := "database:\n  type: postgres\n"
	file := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := LoadConfig[Config](&cobra.Command{}, nil, &file)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Database.Type != "mysql" {
		t.Errorf("env must beat file, got %q", c.Database.Type)
	}
}

func TestWriteConfigFileCreatesFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var c Config
	c.Database.Type = "sqlite"
	c.Database.Dsn = "./warden.db"
	c.Language = "en"

	if err := WriteConfigFile(&c, false); err != nil {
		t.Fatalf("WriteConfigFile failed: %v", err)
	}

	path, err := getConfigPath(false)
	if err != nil {
		t.Fatalf("getConfigPath failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected config file at %s: %v", path, err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %o", info.Mode().Perm())
	}
}
