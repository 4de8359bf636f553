package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")
	t.Setenv("GATEWAY_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
	if cfg.GatewaySecret != "" {
		t.Fatalf("expected empty GATEWAY_SECRET when unset, got %q", cfg.GatewaySecret)
	}
}

func TestLoadOrgDefault(t *testing.T) {
	t.Setenv("DEFAULT_ORG_ID", "")

	cfg := Load()
	if cfg.OrgID != "org-demo" {
		t.Fatalf("expected default org-demo, got %q", cfg.OrgID)
	}
}
