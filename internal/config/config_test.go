package config

import "testing"

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yml")
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for a missing file", err)
	}
	if cfg.Name != "goqtt" {
		t.Errorf("Name = %q, want %q", cfg.Name, "goqtt")
	}
	if !cfg.TCP.Enabled {
		t.Errorf("TCP.Enabled = false, want true by default")
	}
}

func TestCapabilitiesTranslatesBrokerConfig(t *testing.T) {
	cfg := Default()
	cfg.Broker.MaxQoS = 1

	caps := cfg.Capabilities()
	if caps.MaxQoS != 1 {
		t.Errorf("MaxQoS = %v, want 1", caps.MaxQoS)
	}
	if !caps.RetainAvailable {
		t.Errorf("RetainAvailable = false, want true (default)")
	}
}

func TestClampQoS(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-1, 0},
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
	}
	for _, tt := range tests {
		if got := int(clampQoS(tt.in)); got != tt.want {
			t.Errorf("clampQoS(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
