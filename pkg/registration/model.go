// Package registration registers the installed system against a
// subscription service.
package registration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tierone/installd/pkg/config"
)

// BusyName is the name the subsystem reports to the busy registry.
const BusyName = "registration"

var (
	// ErrInvalidCode is returned for an empty registration code.
	ErrInvalidCode = errors.New("registration code is required")

	// ErrAlreadyRegistered is returned by Register on a registered system.
	ErrAlreadyRegistered = errors.New("system is already registered")

	// ErrNotRegistered is returned by Deregister on an unregistered system.
	ErrNotRegistered = errors.New("system is not registered")

	// ErrNoProduct is returned when no product is selected.
	ErrNoProduct = errors.New("no product selected")
)

// Requirement tells whether the selected product needs registration.
type Requirement uint8

const (
	NotRequired Requirement = iota
	Optional
	Mandatory
)

func (r Requirement) String() string {
	switch r {
	case Optional:
		return "optional"
	case Mandatory:
		return "mandatory"
	default:
		return "not_required"
	}
}

// MarshalText encodes the requirement by its label.
func (r Requirement) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a requirement label.
func (r *Requirement) UnmarshalText(text []byte) error {
	switch string(text) {
	case "not_required":
		*r = NotRequired
	case "optional":
		*r = Optional
	case "mandatory":
		*r = Mandatory
	default:
		return fmt.Errorf("invalid registration requirement %q", text)
	}
	return nil
}

// RequirementFor maps a product registration mode.
func RequirementFor(mode config.RegistrationMode) Requirement {
	switch mode {
	case config.RegistrationOptional:
		return Optional
	case config.RegistrationMandatory:
		return Mandatory
	default:
		return NotRequired
	}
}

// Service is the repository service enabled by a product activation.
type Service struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// State is the registration state reported to clients. Code is masked.
type State struct {
	Registered  bool        `json:"registered"`
	Code        string      `json:"code,omitempty"`
	Email       string      `json:"email,omitempty"`
	Service     *Service    `json:"service,omitempty"`
	Requirement Requirement `json:"requirement"`
}

// MaskCode hides all but the last four characters of a code.
func MaskCode(code string) string {
	const visible = 4
	if len(code) <= visible {
		return strings.Repeat("*", len(code))
	}
	return strings.Repeat("*", len(code)-visible) + code[len(code)-visible:]
}
