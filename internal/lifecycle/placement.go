package lifecycle

import (
	"github.com/urbanfield/deployment-core/internal/apperr"
	"github.com/urbanfield/deployment-core/internal/document"
)

// Placement field names shared by platforms and permanent hosts.
const (
	FieldStatic         = "static"
	FieldLocationSensor = "updateLocationWithSensor"
)

// ResolveBool computes the value a boolean field will have after the patch
// is applied: the patched value when present, otherwise the current one.
func ResolveBool(patch document.Patch, field string, current bool) bool {
	f, present := patch[field]
	if !present {
		return current
	}
	if f.IsUnset() {
		return false
	}
	v, ok := f.Value().(bool)
	return ok && v
}

// ResolveRef computes the value a string reference field will have after
// the patch is applied. Returns nil when the field ends up absent.
func ResolveRef(patch document.Patch, field string, current *string) *string {
	f, present := patch[field]
	if !present {
		return current
	}
	if f.IsUnset() {
		return nil
	}
	if v, ok := f.Value().(string); ok {
		return &v
	}
	return nil
}

// CheckPlacement rejects a patch whose resulting state is inconsistent: a
// static resource cannot carry a location-source sensor reference. The
// patch may clear one field while setting the other; only the combined
// outcome matters.
func CheckPlacement(patch document.Patch, currentStatic bool, currentRef *string) error {
	static := ResolveBool(patch, FieldStatic, currentStatic)
	ref := ResolveRef(patch, FieldLocationSensor, currentRef)

	if static && ref != nil {
		return apperr.BadRequest(
			"a static resource cannot use a sensor to update its location; clear %s first",
			FieldLocationSensor)
	}
	return nil
}

// PatchSetsRef reports whether the patch assigns (not clears) the given
// reference field, returning the assigned id.
func PatchSetsRef(patch document.Patch, field string) (string, bool) {
	f, present := patch[field]
	if !present || f.IsUnset() {
		return "", false
	}
	v, ok := f.Value().(string)
	return v, ok
}
