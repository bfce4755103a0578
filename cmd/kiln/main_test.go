package main

import (
	"testing"

	"github.com/agentic-metallurgy/kiln/internal/config"
)

func TestConfigPathUsesFlagWhenSet(t *testing.T) {
	orig := cfgFile
	defer func() { cfgFile = orig }()

	cfgFile = "/tmp/custom-kiln.yaml"
	if got := configPath(); got != "/tmp/custom-kiln.yaml" {
		t.Errorf("expected the --config flag value, got %q", got)
	}
}

func TestConfigPathFallsBackToDefault(t *testing.T) {
	orig := cfgFile
	defer func() { cfgFile = orig }()

	cfgFile = ""
	if got := configPath(); got != config.DefaultConfigPath() {
		t.Errorf("expected the default config path, got %q", got)
	}
}
