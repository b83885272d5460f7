package document

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/urbanfield/deployment-core/internal/apperr"
)

// Field is one tri-state entry of a Patch: a field is either set to a value
// or removed from the document entirely. A field absent from the Patch is
// left untouched. This makes the wire convention "null means unset"
// explicit in the type system instead of overloading nil.
type Field struct {
	value any
	unset bool
}

// Set returns a Field that assigns v to the field.
func Set(v any) Field {
	return Field{value: v}
}

// Unset returns a Field that removes the field from the document.
func Unset() Field {
	return Field{unset: true}
}

// IsUnset reports whether the field removes rather than assigns.
func (f Field) IsUnset() bool {
	return f.unset
}

// Value returns the assigned value; only meaningful when !IsUnset().
func (f Field) Value() any {
	return f.value
}

// Patch maps document field names to tri-state updates.
type Patch map[string]Field

// ParsePatch decodes a JSON object into a Patch, translating the wire
// convention "null means remove the field" into an explicit Unset. Only
// field names in allowed are accepted; anything else is a BadRequest.
func ParsePatch(raw json.RawMessage, allowed []string) (Patch, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apperr.BadRequest("update payload must be a JSON object: %v", err)
	}

	ok := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		ok[name] = true
	}

	patch := make(Patch, len(fields))
	for name, value := range fields {
		if !ok[name] {
			return nil, apperr.BadRequest("unknown field %q", name)
		}
		if string(value) == "null" {
			patch[name] = Unset()
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, apperr.BadRequest("field %q is not valid JSON: %v", name, err)
		}
		patch[name] = Set(v)
	}
	return patch, nil
}

// fieldName restricts patch and filter keys to simple identifiers so they
// can be spliced into JSON paths safely.
var fieldName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// buildDocExpr renders a Patch into a SQL expression updating the doc
// column, plus the bound arguments. Sets become json_set with json(?)
// arguments (values marshalled to JSON text), unsets become json_remove.
// Field order is made deterministic so queries are stable.
func buildDocExpr(p Patch) (expr string, args []any, err error) {
	if len(p) == 0 {
		return "", nil, apperr.BadRequest("update patch is empty")
	}

	names := make([]string, 0, len(p))
	for name := range p {
		if !fieldName.MatchString(name) {
			return "", nil, apperr.BadRequest("invalid field name %q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	expr = "doc"

	var setPairs string
	for _, name := range names {
		f := p[name]
		if f.unset {
			continue
		}
		encoded, merr := json.Marshal(f.value)
		if merr != nil {
			return "", nil, apperr.BadRequest("field %q is not encodable: %v", name, merr)
		}
		setPairs += fmt.Sprintf(", '$.%s', json(?)", name)
		args = append(args, string(encoded))
	}
	if setPairs != "" {
		expr = "json_set(" + expr + setPairs + ")"
	}

	var removePaths string
	for _, name := range names {
		if p[name].unset {
			removePaths += fmt.Sprintf(", '$.%s'", name)
		}
	}
	if removePaths != "" {
		expr = "json_remove(" + expr + removePaths + ")"
	}

	return expr, args, nil
}

// removeExpr renders a json_remove expression for the given field names,
// used by soft delete to clear derived fields that would otherwise dangle.
func removeExpr(fields []string) (string, error) {
	if len(fields) == 0 {
		return "doc", nil
	}
	expr := "doc"
	var paths string
	for _, name := range fields {
		if !fieldName.MatchString(name) {
			return "", apperr.BadRequest("invalid field name %q", name)
		}
		paths += fmt.Sprintf(", '$.%s'", name)
	}
	return "json_remove(" + expr + paths + ")", nil
}
