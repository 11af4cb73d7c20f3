package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "storage:\n  path: " + filepath.Join(dir, "weekwatch.bolt") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.APIPort != 8080 {
		t.Errorf("api_port = %d, want 8080", cfg.Server.APIPort)
	}
	if cfg.Storage.Type != "bolt" {
		t.Errorf("storage type = %q, want bolt", cfg.Storage.Type)
	}
	if cfg.Tracking.Timezone != "Asia/Seoul" {
		t.Errorf("timezone = %q, want Asia/Seoul", cfg.Tracking.Timezone)
	}
	if cfg.Tracking.MinSessionDuration != "20m" {
		t.Errorf("min_session_duration = %q, want 20m", cfg.Tracking.MinSessionDuration)
	}
	if cfg.Evaluation.WeeklyGoal != "4h" {
		t.Errorf("weekly_goal = %q, want 4h", cfg.Evaluation.WeeklyGoal)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad storage type", "storage:\n  type: mysql\n"},
		{"bad timezone", "tracking:\n  timezone: Mars/Olympus\n"},
		{"bad duration", "tracking:\n  min_session_duration: twenty\n"},
		{"bad tier", "evaluation:\n  weekly_goal: lots\n"},
		{"webhook enabled without url", "webhook:\n  enabled: true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			content := tt.content
			if tt.name != "bad storage type" {
				content += "storage:\n  path: " + filepath.Join(dir, "x.bolt") + "\n"
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
