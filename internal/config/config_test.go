package config

import "testing"

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresWebhookSecret(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "production", Port: 8080, PublicBaseURL: "https://app.example.com"},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "intake", SSLMode: "require"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without VAPI_WEBHOOK_SECRET")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "intake", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Vapi.BaseURL != "https://api.vapi.ai" {
		t.Fatalf("expected vendor base url default, got %q", c.Vapi.BaseURL)
	}
	if c.OpenAI.Model == "" {
		t.Fatalf("expected model default")
	}
}

func TestValidate_RejectsUnknownEnv(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "qa", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Name: "intake"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown APP_ENV")
	}
}
