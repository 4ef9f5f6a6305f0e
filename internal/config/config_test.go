package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[server]
addr = "0.0.0.0:9000"
message_limit = 50

[graph]
width = 1024

[graph.layout]
iterations = 60
repulsion = 4500.0

[notify]
capacity = 10

[[agents]]
id = "main"
name = "Main"
role = "coordinator"
spawn = ["ops"]
channels = ["general"]

[[agents]]
id = "ops"
alias = "ops-bot"
channels = ["general", "alerts"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:9000" || cfg.Server.MessageLimit != 50 {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.DBPath != "./clawpulse.db" || cfg.Server.RefreshIntervalMS != 5000 {
		t.Fatalf("server defaults not kept: %+v", cfg.Server)
	}
	if cfg.Graph.Width != 1024 || cfg.Graph.Height != 600 {
		t.Fatalf("unexpected canvas: %+v", cfg.Graph)
	}
	if cfg.Graph.Layout.Iterations != 60 || cfg.Graph.Layout.Repulsion != 4500 {
		t.Fatalf("unexpected layout params: %+v", cfg.Graph.Layout)
	}
	if cfg.Graph.Layout.Damping != 0.8 {
		t.Fatalf("expected default damping to survive partial layout table, got %v", cfg.Graph.Layout.Damping)
	}
	if cfg.Notify.Capacity != 10 || cfg.Notify.DedupeWindowMS != 10000 {
		t.Fatalf("unexpected notify config: %+v", cfg.Notify)
	}
	if cfg.Feed.Buffer != 64 {
		t.Fatalf("expected default feed buffer, got %d", cfg.Feed.Buffer)
	}
	if len(cfg.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(cfg.Agents))
	}
	if cfg.Agents[0].Spawn[0] != "ops" || cfg.Agents[1].Alias != "ops-bot" {
		t.Fatalf("unexpected agents: %+v", cfg.Agents)
	}
	if cfg.Path != path {
		t.Fatalf("expected path %s, got %s", path, cfg.Path)
	}
	if _, ok := cfg.Raw["server"]; !ok {
		t.Fatalf("expected raw config to include server table")
	}
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadMissingDefaultPathYieldsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load default config: %v", err)
	}
	if cfg.Server.Addr != Default().Server.Addr {
		t.Fatalf("expected default addr, got %s", cfg.Server.Addr)
	}
	if cfg.Path != "" {
		t.Fatalf("expected no path for absent default file, got %s", cfg.Path)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[server\naddr = "), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandHome("~/.clawpulse/config.toml")
	if err != nil {
		t.Fatalf("expand home: %v", err)
	}
	want := filepath.Join(home, ".clawpulse", "config.toml")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
