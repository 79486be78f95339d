package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driver != DriverMemory || cfg.Currency != "inr" || cfg.DueDays != 10 || cfg.Concurrency != 8 {
		t.Errorf("defaults: got %+v", cfg)
	}
	if cfg.HasDefaultRule() {
		t.Error("no default rule expected")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BILLING_DRIVER", "Postgres")
	t.Setenv("BILLING_DATABASE_URL", "postgres://localhost/billing")
	t.Setenv("BILLING_TAX_BP", "500")
	t.Setenv("BILLING_DUE_DAYS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driver != DriverPostgres {
		t.Errorf("driver: got %q, want postgres", cfg.Driver)
	}
	if cfg.TaxBasisPoints != 500 || !cfg.HasDefaultRule() {
		t.Errorf("tax: got %d", cfg.TaxBasisPoints)
	}
	if cfg.DueDays != 7 {
		t.Errorf("due days: got %d, want 7", cfg.DueDays)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"BILLING_DRIVER": "sqlite"}},
		{"missing url", map[string]string{"BILLING_DRIVER": "mysql"}},
		{"bad int", map[string]string{"BILLING_CONCURRENCY": "many"}},
		{"zero concurrency", map[string]string{"BILLING_CONCURRENCY": "0"}},
		{"discount over 100%", map[string]string{"BILLING_DISCOUNT_BP": "10001"}},
		{"bad timeout", map[string]string{"HTTP_SHUTDOWN_TIMEOUT": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
