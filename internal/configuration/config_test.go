package configuration

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"mongo": {"uri": "mongodb://localhost:27017", "database": "chat"},
		"auth": {"secret": "s"},
		"server": {"app_port": 8080, "socket_port": 8081}
	}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ChatDatabase.MessagesCollection != "messages" {
		t.Fatalf("messages collection default = %q", cfg.ChatDatabase.MessagesCollection)
	}
	if cfg.ChatDatabase.SummariesCollection != "conversation_summaries" {
		t.Fatalf("summaries collection default = %q", cfg.ChatDatabase.SummariesCollection)
	}
	if cfg.ChatDatabase.SocketRoute != "ws" {
		t.Fatalf("socket route default = %q", cfg.ChatDatabase.SocketRoute)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"mongo": {"uri": "mongodb://localhost:27017", "database": "chat"},
		"server": {"app_port": 8080, "socket_port": 8081}
	}`)

	t.Setenv("MONGO_URI", "mongodb://db.internal:27017")
	t.Setenv("AUTH_SECRET", "env-secret")
	t.Setenv("APP_PORT", "9090")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ChatDatabase.Uri != "mongodb://db.internal:27017" {
		t.Fatalf("mongo uri = %q", cfg.ChatDatabase.Uri)
	}
	if cfg.Auth.Secret != "env-secret" {
		t.Fatalf("auth secret = %q", cfg.Auth.Secret)
	}
	if cfg.Server.AppPort != 9090 {
		t.Fatalf("app port = %d", cfg.Server.AppPort)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
