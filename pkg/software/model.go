package software

import (
	"errors"

	"github.com/tierone/installd/pkg/config"
)

const (
	// BusyName is the name the subsystem uses in the busy registry.
	BusyName = "software"

	// DefaultConcurrency bounds the number of repositories probed at once.
	DefaultConcurrency = 4
)

var (
	// ErrUnknownProduct is returned when selecting a product that is not
	// configured.
	ErrUnknownProduct = errors.New("unknown product")

	// ErrNoProductAvailable is returned by Probe when no configured product
	// can be installed from the reachable repositories.
	ErrNoProductAvailable = errors.New("no product available")

	// ErrNoProduct is returned when an operation needs a selected product.
	ErrNoProduct = errors.New("no product selected")

	// ErrNoProposal is returned by Install before a proposal was made.
	ErrNoProposal = errors.New("no software proposal")

	// ErrNotProbed is returned by Propose for repositories without a
	// successful probe.
	ErrNotProbed = errors.New("repository not probed")
)

// Product is the client view of a configured product.
type Product struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"displayName"`
	Description  string   `json:"description,omitempty"`
	Version      string   `json:"version,omitempty"`
	Arch         string   `json:"arch,omitempty"`
	Repositories []string `json:"repositories"`
	Registration string   `json:"registration,omitempty"`
	Available    bool     `json:"available"`
}

func productFromConfig(p config.Product, available bool) Product {
	return Product{
		Name:         p.Name,
		DisplayName:  p.Label(),
		Description:  p.Description,
		Version:      p.Version,
		Arch:         p.Arch,
		Repositories: append([]string(nil), p.Repositories...),
		Registration: string(p.Registration),
		Available:    available,
	}
}

// Repository is the client view of a probed repository.
type Repository struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Type        string `json:"type"`
	Probed      bool   `json:"probed"`
	Success     bool   `json:"success"`
	ResolvedRef string `json:"resolvedRef,omitempty"`
	Error       string `json:"error,omitempty"`
	DurationMS  int64  `json:"durationMs"`
}

// ProposedRepository is a repository the proposal installs from.
type ProposedRepository struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	Type         string `json:"type"`
	RequestedRef string `json:"requestedRef,omitempty"`
	ResolvedRef  string `json:"resolvedRef"`
}

// Proposal is the software to install.
type Proposal struct {
	Product      Product              `json:"product"`
	Repositories []ProposedRepository `json:"repositories"`
}
