package config

import "testing"

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{Port: 8080},
		Embedding: EmbeddingConfig{
			Providers: map[string]ProviderConfig{
				"nebius": {
					APIKey:  "test-key",
					BaseURL: "https://api.example.com/v1/",
				},
			},
			Vectorizers: map[string]VectorizerConfig{
				"baseline": {
					Provider:   "nebius",
					TextModel:  "clip-vit-b-32",
					ImageModel: "clip-vit-b-32-vision",
					Dimensions: 512,
				},
			},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingVectorizers(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Vectorizers = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing vectorizers")
	}
}

func TestValidate_UnknownProviderReference(t *testing.T) {
	cfg := validConfig()
	v := cfg.Embedding.Vectorizers["baseline"]
	v.Provider = "missing"
	cfg.Embedding.Vectorizers["baseline"] = v

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown provider reference")
	}
}

func TestValidate_MissingTextModel(t *testing.T) {
	cfg := validConfig()
	v := cfg.Embedding.Vectorizers["baseline"]
	v.TextModel = ""
	cfg.Embedding.Vectorizers["baseline"] = v

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing text model")
	}
}

func TestValidate_InvalidBudgetAction(t *testing.T) {
	cfg := validConfig()
	p := cfg.Embedding.Providers["nebius"]
	p.Budget.Action = "invalid_action"
	cfg.Embedding.Providers["nebius"] = p

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid budget action")
	}

	expected := `embedding.providers.nebius.budget.action must be "warn" or "reject", got "invalid_action"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidBudgetActions(t *testing.T) {
	for _, action := range []string{"", "warn", "reject"} {
		t.Run("action="+action, func(t *testing.T) {
			cfg := validConfig()
			p := cfg.Embedding.Providers["nebius"]
			p.Budget.Action = action
			cfg.Embedding.Providers["nebius"] = p

			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for valid action %q: %v", action, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("ReadTimeoutSec = %d, want 10", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("WriteTimeoutSec = %d, want 60", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Taxonomy.CategoryProfile != "baseline" {
		t.Errorf("CategoryProfile = %q, want baseline", cfg.Taxonomy.CategoryProfile)
	}
	if cfg.Taxonomy.AttributeProfile != "fast" {
		t.Errorf("AttributeProfile = %q, want fast", cfg.Taxonomy.AttributeProfile)
	}
	if cfg.Taxonomy.TagThreshold != 0.25 {
		t.Errorf("TagThreshold = %v, want 0.25", cfg.Taxonomy.TagThreshold)
	}
	if cfg.Report.SimilarityFloor != 0.2 {
		t.Errorf("SimilarityFloor = %v, want 0.2", cfg.Report.SimilarityFloor)
	}
	if len(cfg.Tagging.TextFieldsFull) != 2 {
		t.Errorf("TextFieldsFull = %v, want title+description default", cfg.Tagging.TextFieldsFull)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TAXOTAG_TEST_KEY", "secret")

	out := expandEnvVars([]byte("api_key: ${TAXOTAG_TEST_KEY}\nurl: ${TAXOTAG_TEST_MISSING:-http://fallback}"))
	want := "api_key: secret\nurl: http://fallback"
	if string(out) != want {
		t.Errorf("expandEnvVars:\ngot:  %q\nwant: %q", out, want)
	}
}
