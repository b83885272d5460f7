package sensor

import (
	"regexp"

	"github.com/urbanfield/deployment-core/internal/apperr"
)

// Validation constants.
const (
	maxNameLength        = 100
	maxDescriptionLength = 500
	maxIDLength          = 64
)

// idPattern matches client-supplied ids: URL-safe, no uppercase, no edge
// hyphens. Derived ids satisfy this by construction.
var idPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// validateName checks the human-readable name.
func validateName(name string) error {
	if name == "" {
		return apperr.BadRequest("sensor name is required")
	}
	if len(name) > maxNameLength {
		return apperr.BadRequest("sensor name exceeds %d characters", maxNameLength)
	}
	return nil
}

// validateDescription checks the optional description.
func validateDescription(description string) error {
	if len(description) > maxDescriptionLength {
		return apperr.BadRequest("sensor description exceeds %d characters", maxDescriptionLength)
	}
	return nil
}

// validateExplicitID checks a caller-supplied id.
func validateExplicitID(id string) error {
	if len(id) > maxIDLength {
		return apperr.BadRequest("sensor id exceeds %d characters", maxIDLength)
	}
	if !idPattern.MatchString(id) {
		return apperr.BadRequest("sensor id must be lowercase alphanumeric with hyphens")
	}
	return nil
}
