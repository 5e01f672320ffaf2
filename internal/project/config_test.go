package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConfigExists(t *testing.T) {
	tempDir := t.TempDir()
	if ConfigExists(tempDir) {
		t.Error("ConfigExists should return false when config doesn't exist")
	}

	if err := os.MkdirAll(filepath.Join(tempDir, Dir), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tempDir, Dir, ConfigFile), []byte(`{"max_turns": 3}`), 0644); err != nil {
		t.Fatal(err)
	}
	if !ConfigExists(tempDir) {
		t.Error("ConfigExists should return true when config exists")
	}
}

func TestLoadConfig_NotExists(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Errorf("LoadConfig should not error when file doesn't exist: %v", err)
	}
	if cfg != nil {
		t.Error("LoadConfig should return nil when file doesn't exist")
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	tempDir := t.TempDir()

	cfg := &ProjectConfig{WorkDir: "out", MaxTurns: 6, SandboxMode: "docker"}
	if err := SaveConfig(tempDir, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(tempDir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := &ProjectConfig{WorkDir: filepath.Join(tempDir, "out"), MaxTurns: 6, SandboxMode: "docker"}
	if diff := cmp.Diff(want, loaded); diff != "" {
		t.Errorf("LoadConfig mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tempDir, Dir), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tempDir, Dir, ConfigFile), []byte(`{"max_turns": "six"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(tempDir); err == nil {
		t.Error("LoadConfig should fail on a mistyped field")
	}
}

func TestSettings(t *testing.T) {
	var nilCfg *ProjectConfig
	if got := nilCfg.Settings(); len(got) != 0 {
		t.Errorf("nil Settings() = %v, want empty", got)
	}

	cfg := &ProjectConfig{MaxTurns: 4, BlockTimeout: "2m", TerminationPhrase: "FIN"}
	want := map[string]string{"max_turns": "4", "block_timeout": "2m", "termination_phrase": "FIN"}
	if diff := cmp.Diff(want, cfg.Settings()); diff != "" {
		t.Errorf("Settings() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRules(t *testing.T) {
	tempDir := t.TempDir()

	rules, err := LoadRules(tempDir)
	if err != nil || rules != "" {
		t.Fatalf("LoadRules on empty dir = %q, %v", rules, err)
	}

	if err := os.MkdirAll(filepath.Join(tempDir, Dir), 0755); err != nil {
		t.Fatal(err)
	}
	expected := "Use matplotlib for charts.\nPrint the final numbers."
	if err := os.WriteFile(filepath.Join(tempDir, Dir, RulesFile), []byte(expected+"\n\n"), 0644); err != nil {
		t.Fatal(err)
	}

	rules, err = LoadRules(tempDir)
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	if rules != expected {
		t.Errorf("Expected rules:\n%s\nGot:\n%s", expected, rules)
	}
}
