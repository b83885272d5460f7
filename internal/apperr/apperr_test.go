package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindBadRequest, "BadRequest"},
		{KindForbidden, "Forbidden"},
		{KindNotFound, "NotFound"},
		{KindDeleted, "NotFound.IsDeleted"},
		{KindConflict, "Conflict"},
		{KindDatabase, "DatabaseError"},
		{KindUnknown, "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestHasKind(t *testing.T) {
	t.Run("matches own kind", func(t *testing.T) {
		err := Conflict("id %q is taken", "sensor-1")
		if !HasKind(err, KindConflict) {
			t.Error("HasKind(Conflict, KindConflict) = false, want true")
		}
		if HasKind(err, KindNotFound) {
			t.Error("HasKind(Conflict, KindNotFound) = true, want false")
		}
	})

	t.Run("deleted counts as not found", func(t *testing.T) {
		err := Deleted("sensor", "sensor-1", time.Now().Add(-time.Hour))
		if !HasKind(err, KindNotFound) {
			t.Error("HasKind(Deleted, KindNotFound) = false, want true")
		}
		if !HasKind(err, KindDeleted) {
			t.Error("HasKind(Deleted, KindDeleted) = false, want true")
		}
	})

	t.Run("matches through wrapping", func(t *testing.T) {
		err := fmt.Errorf("creating sensor: %w", Forbidden("already registered"))
		if !HasKind(err, KindForbidden) {
			t.Error("HasKind did not unwrap the taxonomy error")
		}
	})

	t.Run("foreign error has no kind", func(t *testing.T) {
		if HasKind(errors.New("boom"), KindDatabase) {
			t.Error("plain error matched a taxonomy kind")
		}
	})
}

func TestDeletedMessageIncludesAge(t *testing.T) {
	deletedAt := time.Now().Add(-90 * time.Minute)
	err := Deleted("platform", "buoy-3", deletedAt)

	if err.DeletedAt == nil || !err.DeletedAt.Equal(deletedAt) {
		t.Fatalf("DeletedAt = %v, want %v", err.DeletedAt, deletedAt)
	}
	if !strings.Contains(err.Public, "ago") {
		t.Errorf("Public = %q, want elapsed-time phrasing", err.Public)
	}
	if !strings.Contains(err.Public, "buoy-3") {
		t.Errorf("Public = %q, want resource id", err.Public)
	}
}

func TestCensorStripsPrivateDetail(t *testing.T) {
	err := Database("could not save sensor", errors.New("sqlite: disk I/O error"))

	censored := err.Censor()
	if censored.Private != "" {
		t.Errorf("Censor() kept private detail %q", censored.Private)
	}
	if censored.Public != "could not save sensor" {
		t.Errorf("Censor() changed public message to %q", censored.Public)
	}
	if censored.Kind != KindDatabase {
		t.Errorf("Censor() changed kind to %v", censored.Kind)
	}

	// The original must still carry the detail for local logging.
	if !strings.Contains(err.Error(), "disk I/O") {
		t.Errorf("Error() = %q, want private detail included", err.Error())
	}
}

func TestFromWrapsForeignErrors(t *testing.T) {
	t.Run("taxonomy error passes through", func(t *testing.T) {
		orig := BadRequest("bad geometry")
		if got := From(fmt.Errorf("wrapped: %w", orig)); got != orig {
			t.Errorf("From() = %v, want original error", got)
		}
	})

	t.Run("foreign error becomes database error", func(t *testing.T) {
		got := From(errors.New("connection reset"))
		if got.Kind != KindDatabase {
			t.Errorf("From() kind = %v, want KindDatabase", got.Kind)
		}
		if got.Private != "connection reset" {
			t.Errorf("From() private = %q, want original message", got.Private)
		}
		if strings.Contains(got.Public, "connection reset") {
			t.Errorf("From() leaked detail into public message: %q", got.Public)
		}
	})
}
