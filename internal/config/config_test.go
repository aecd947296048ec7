package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"argus/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !cfg.Eligibility.RequireVerifiedInvestigator || !cfg.Eligibility.RequireVerifiedAgency {
		t.Fatalf("default eligibility rules should require verification: %+v", cfg.Eligibility)
	}
	if cfg.Routes.MandateAssigned != "/agency/mandates/{mandate}" {
		t.Fatalf("unexpected assigned route %q", cfg.Routes.MandateAssigned)
	}
}

func TestFromYAMLValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing marketplace name",
			yaml: "marketplace:\n  name: \"\"\n",
			want: "marketplace.name",
		},
		{
			name: "relative route",
			yaml: "marketplace:\n  name: test\nroutes:\n  mandate_assigned: agency/mandates\n",
			want: "must start with /",
		},
		{
			name: "webhook without url",
			yaml: "marketplace:\n  name: test\nwebhooks:\n  - secret: s\n",
			want: "webhooks[0].url",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	workspace := t.TempDir()
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Marketplace.Name != "argus" {
		t.Fatalf("expected default config, got %+v", cfg.Marketplace)
	}

	custom := "marketplace:\n  name: nordpi\nnotifications:\n  enabled: false\n"
	if err := os.WriteFile(filepath.Join(workspace, "argus.yml"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = config.LoadOptional(workspace)
	if err != nil {
		t.Fatalf("load optional with file: %v", err)
	}
	if cfg.Marketplace.Name != "nordpi" || cfg.Notifications.Enabled {
		t.Fatalf("expected file config, got %+v", cfg)
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault()))
	if err != nil {
		t.Fatalf("generated default does not parse: %v", err)
	}
	if !cfg.Notifications.Enabled {
		t.Fatalf("generated default should enable notifications")
	}
}
