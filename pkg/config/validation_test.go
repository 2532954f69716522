package config

import (
	"errors"
	"strings"
	"testing"
)

func validBase() *Config {
	cfg := NewDefaultConfig()
	cfg.Repositories = []Repository{
		{Name: "oss", URL: "https://download.example.com/oss", Type: RepoTypeHTTP},
		{Name: "extras", URL: "https://git.example.com/extras.git", Type: RepoTypeGit, Tag: "v1.0"},
	}
	cfg.Products = []Product{
		{Name: "tumbleweed", Repositories: []string{"oss"}},
		{Name: "enterprise", Repositories: []string{"oss", "extras"}, Registration: RegistrationMandatory},
	}
	return cfg
}

func TestValidateConfig_Valid(t *testing.T) {
	if err := ValidateConfig(validBase()); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidateConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "duplicate repository",
			mutate: func(c *Config) { c.Repositories[1].Name = "oss" },
			field:  "repository[1].name",
		},
		{
			name:   "missing repository name",
			mutate: func(c *Config) { c.Repositories[0].Name = "" },
			field:  "repository[0].name",
		},
		{
			name:   "missing repository url",
			mutate: func(c *Config) { c.Repositories[0].URL = "" },
			field:  "repository[0].url",
		},
		{
			name:   "invalid repository url",
			mutate: func(c *Config) { c.Repositories[0].URL = "not-a-valid-url" },
			field:  "repository[0].url",
		},
		{
			name:   "missing repository type",
			mutate: func(c *Config) { c.Repositories[0].Type = "" },
			field:  "repository[0].type",
		},
		{
			name:   "invalid repository type",
			mutate: func(c *Config) { c.Repositories[0].Type = "ftp" },
			field:  "repository[0].type",
		},
		{
			name:   "conflicting refs",
			mutate: func(c *Config) { c.Repositories[1].Branch = "main" },
			field:  "repository[1]",
		},
		{
			name:   "ref on http repository",
			mutate: func(c *Config) { c.Repositories[0].Branch = "main" },
			field:  "repository[0]",
		},
		{
			name:   "duplicate product",
			mutate: func(c *Config) { c.Products[1].Name = "tumbleweed" },
			field:  "product[1].name",
		},
		{
			name:   "missing product name",
			mutate: func(c *Config) { c.Products[0].Name = "" },
			field:  "product[0].name",
		},
		{
			name:   "product without repositories",
			mutate: func(c *Config) { c.Products[0].Repositories = nil },
			field:  "product[0].repositories",
		},
		{
			name:   "product with unknown repository",
			mutate: func(c *Config) { c.Products[1].Repositories = []string{"oss", "missing"} },
			field:  "product[1].repositories[1]",
		},
		{
			name:   "invalid registration mode",
			mutate: func(c *Config) { c.Products[0].Registration = "sometimes" },
			field:  "product[0].registration",
		},
		{
			name:   "invalid bus",
			mutate: func(c *Config) { c.DBus.Bus = "user" },
			field:  "dbus.bus",
		},
		{
			name:   "invalid listen address",
			mutate: func(c *Config) { c.Server.Listen = "localhost" },
			field:  "server.listen",
		},
		{
			name:   "invalid registration url",
			mutate: func(c *Config) { c.Registration.URL = "scc" },
			field:  "registration.url",
		},
		{
			name:   "negative retries",
			mutate: func(c *Config) { c.HTTP.RetryAttempts = -1 },
			field:  "http.retry_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q (%s)", tt.field, verr.Field, verr.Message)
			}
		})
	}
}

func TestValidateConfig_DuplicateMessage(t *testing.T) {
	cfg := validBase()
	cfg.Repositories[1].Name = "oss"

	err := ValidateConfig(cfg)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate error, got: %v", err)
	}
}

func TestValidateConfig_URLForms(t *testing.T) {
	urls := []string{
		"git@github.com:installd/extras.git",
		"file:///srv/repos/oss",
		"http://mirror.example.com/oss",
	}

	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			cfg := validBase()
			cfg.Repositories[1].URL = u
			if err := ValidateConfig(cfg); err != nil {
				t.Errorf("expected %s to be valid: %v", u, err)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Field:   "product[0].name",
		Message: "name is required",
	}

	expected := "product[0].name: name is required"
	if err.Error() != expected {
		t.Errorf("expected '%s', got '%s'", expected, err.Error())
	}
}
