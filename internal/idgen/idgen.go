// Package idgen produces client-facing identifiers and registration keys
// for deployment resources.
//
// Two kinds of output are security-relevant in different ways: ids must be
// URL-safe and collision-resistant but are public; registration keys are
// shared secrets used by devices to claim themselves, so they are drawn
// from crypto/rand.
package idgen

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// registrationKeyLength is the fixed length of registration keys.
	registrationKeyLength = 10

	// suffixLength is the length of collision-disambiguation suffixes.
	suffixLength = 5

	// maxSlugLength bounds the name-derived segment of a ResourceID so the
	// total id stays under maxResourceIDLength for any input name.
	maxSlugLength = 24

	// maxResourceIDLength is the upper bound on a generated resource id.
	maxResourceIDLength = 44

	lowercaseAlphabet    = "abcdefghijklmnopqrstuvwxyz"
	alphanumericAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// DeriveID derives a URL-safe id from a human-readable name.
//
// The name is lowercased, whitespace and underscores become single hyphens,
// and any character outside [a-z0-9-] is stripped. Hyphen runs are collapsed
// and edge hyphens trimmed. An empty name produces a fully random id.
func DeriveID(name string) string {
	slug := Slugify(name)
	if slug == "" {
		return uuid.New().String()
	}
	return slug
}

// Slugify converts a name into a [a-z0-9-] slug. Unlike DeriveID it returns
// an empty string for names with no usable characters.
func Slugify(name string) string {
	slug := strings.ToLower(name)

	// Whitespace and underscores become hyphens before stripping, so word
	// boundaries survive even when punctuation is removed.
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "\t", "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	var b strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	slug = b.String()

	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}

// Suffix returns a short random lowercase alphanumeric string used to
// disambiguate a collided id.
func Suffix() string {
	return randomString(alphanumericAlphabet, suffixLength)
}

// RegistrationKey returns a new 10-character lowercase-alphabetic
// registration key. Keys act as shared secrets for device registration and
// are generated from crypto/rand.
func RegistrationKey() string {
	return randomString(lowercaseAlphabet, registrationKeyLength)
}

// ResourceID builds a prefixed, bounded-length id for a new resource:
// "<prefix>-<slug>-<suffix>" when a name is given, "<prefix>-<suffix>"
// otherwise. The slug segment is truncated so the total length stays under
// 44 characters regardless of the input name.
func ResourceID(prefix, name string) string {
	parts := []string{prefix}

	if slug := Slugify(name); slug != "" {
		if len(slug) > maxSlugLength {
			slug = strings.TrimRight(slug[:maxSlugLength], "-")
		}
		parts = append(parts, slug)
	}

	parts = append(parts, Suffix())
	id := strings.Join(parts, "-")

	if len(id) >= maxResourceIDLength {
		id = id[:maxResourceIDLength-1]
		id = strings.TrimRight(id, "-")
	}
	return id
}

// randomString draws n characters uniformly from the given alphabet using
// crypto/rand. rand.Int only fails when the system entropy source is
// broken, in which case there is nothing sensible to do but panic.
func randomString(alphabet string, n int) string {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("idgen: entropy source unavailable: " + err.Error())
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b)
}
