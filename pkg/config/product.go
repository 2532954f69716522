package config

// RegistrationMode tells whether a product must be registered before it
// can be installed.
type RegistrationMode string

const (
	RegistrationNone      RegistrationMode = ""
	RegistrationOptional  RegistrationMode = "optional"
	RegistrationMandatory RegistrationMode = "mandatory"
)

// Product is an installable product built from a set of repositories.
type Product struct {
	Name         string
	DisplayName  string
	Description  string
	Version      string
	Arch         string
	Repositories []string // Repository names
	Registration RegistrationMode
}

// ProductFile is the raw TOML structure for a product.
type ProductFile struct {
	Name         string   `toml:"name"`
	DisplayName  string   `toml:"display_name,omitempty"`
	Description  string   `toml:"description,omitempty"`
	Version      string   `toml:"version,omitempty"`
	Arch         string   `toml:"arch,omitempty"`
	Repositories []string `toml:"repositories"`
	Registration string   `toml:"registration,omitempty"`
}

// Label returns the display name, falling back to the name.
func (p *Product) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// HasRepository returns true if the product contains the named repository.
func (p *Product) HasRepository(name string) bool {
	for _, r := range p.Repositories {
		if r == name {
			return true
		}
	}
	return false
}

func (p *Product) removeRepository(name string) {
	for i, r := range p.Repositories {
		if r == name {
			p.Repositories = append(p.Repositories[:i], p.Repositories[i+1:]...)
			return
		}
	}
}
