package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConfig validates the entire configuration.
func ValidateConfig(cfg *Config) error {
	if err := validateSettings(cfg); err != nil {
		return err
	}

	repoNames := make(map[string]bool)
	for i, repo := range cfg.Repositories {
		if err := validateRepository(&repo, i); err != nil {
			return err
		}
		if repoNames[repo.Name] {
			return &ValidationError{
				Field:   fmt.Sprintf("repository[%d].name", i),
				Message: fmt.Sprintf("duplicate repository name: %s", repo.Name),
			}
		}
		repoNames[repo.Name] = true
	}

	productNames := make(map[string]bool)
	for i, prod := range cfg.Products {
		if err := validateProduct(&prod, i, repoNames); err != nil {
			return err
		}
		if productNames[prod.Name] {
			return &ValidationError{
				Field:   fmt.Sprintf("product[%d].name", i),
				Message: fmt.Sprintf("duplicate product name: %s", prod.Name),
			}
		}
		productNames[prod.Name] = true
	}

	return nil
}

func validateSettings(cfg *Config) error {
	if cfg.DBus.Bus != "" && cfg.DBus.Bus != BusSystem && cfg.DBus.Bus != BusSession {
		return &ValidationError{
			Field:   "dbus.bus",
			Message: fmt.Sprintf("invalid bus: %s (must be 'system' or 'session')", cfg.DBus.Bus),
		}
	}

	if cfg.Server.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Server.Listen); err != nil {
			return &ValidationError{Field: "server.listen", Message: err.Error()}
		}
	}

	if cfg.Registration.URL != "" {
		if err := validateURL(cfg.Registration.URL); err != nil {
			return &ValidationError{Field: "registration.url", Message: err.Error()}
		}
	}

	if cfg.HTTP.RetryAttempts < 0 {
		return &ValidationError{Field: "http.retry_attempts", Message: "must not be negative"}
	}

	return nil
}

func validateRepository(repo *Repository, index int) error {
	prefix := fmt.Sprintf("repository[%d]", index)

	if repo.Name == "" {
		return &ValidationError{Field: prefix + ".name", Message: "name is required"}
	}

	if repo.URL == "" {
		return &ValidationError{Field: prefix + ".url", Message: "url is required"}
	}

	if err := validateURL(repo.URL); err != nil {
		return &ValidationError{Field: prefix + ".url", Message: err.Error()}
	}

	if repo.Type == "" {
		return &ValidationError{Field: prefix + ".type", Message: "type is required"}
	}

	if repo.Type != RepoTypeGit && repo.Type != RepoTypeHTTP {
		return &ValidationError{
			Field:   prefix + ".type",
			Message: fmt.Sprintf("invalid type: %s (must be 'git' or 'http')", repo.Type),
		}
	}

	refCount := 0
	for _, ref := range []string{repo.Branch, repo.Tag, repo.Commit} {
		if ref != "" {
			refCount++
		}
	}
	if refCount > 1 {
		return &ValidationError{
			Field:   prefix,
			Message: "only one of branch, tag, or commit can be specified",
		}
	}
	if refCount > 0 && repo.Type == RepoTypeHTTP {
		return &ValidationError{
			Field:   prefix,
			Message: "branch, tag, and commit only apply to git repositories",
		}
	}

	return nil
}

func validateProduct(prod *Product, index int, repoNames map[string]bool) error {
	prefix := fmt.Sprintf("product[%d]", index)

	if prod.Name == "" {
		return &ValidationError{Field: prefix + ".name", Message: "name is required"}
	}

	if len(prod.Repositories) == 0 {
		return &ValidationError{Field: prefix + ".repositories", Message: "at least one repository is required"}
	}

	for i, repoName := range prod.Repositories {
		if !repoNames[repoName] {
			return &ValidationError{
				Field:   fmt.Sprintf("%s.repositories[%d]", prefix, i),
				Message: fmt.Sprintf("unknown repository: %s", repoName),
			}
		}
	}

	switch prod.Registration {
	case RegistrationNone, RegistrationOptional, RegistrationMandatory:
	default:
		return &ValidationError{
			Field:   prefix + ".registration",
			Message: fmt.Sprintf("invalid registration: %s (must be 'optional' or 'mandatory')", prod.Registration),
		}
	}

	return nil
}

func validateURL(rawURL string) error {
	if strings.HasPrefix(rawURL, "git@") {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme == "" {
		return fmt.Errorf("URL must have a scheme (http, https, git, or file)")
	}

	if u.Scheme == "file" {
		if u.Path == "" {
			return fmt.Errorf("file:// URL must have a path")
		}
		return nil
	}

	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}
