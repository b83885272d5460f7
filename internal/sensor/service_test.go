package sensor

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/urbanfield/deployment-core/internal/apperr"
	"github.com/urbanfield/deployment-core/internal/document"
	"github.com/urbanfield/deployment-core/internal/infrastructure/logging"
)

// fakeDirectory satisfies Directory with a fixed answer.
type fakeDirectory struct {
	err error
}

func (d fakeDirectory) Live(_ context.Context, _ string) error { return d.err }

func setupService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE sensors (
			id TEXT NOT NULL,
			registration_key TEXT,
			doc TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted_at TEXT
		);
		CREATE UNIQUE INDEX idx_sensors_live_id ON sensors(id) WHERE deleted_at IS NULL;
		CREATE UNIQUE INDEX idx_sensors_live_key ON sensors(registration_key)
			WHERE deleted_at IS NULL AND registration_key IS NOT NULL;
		CREATE TABLE platforms (
			id TEXT NOT NULL,
			registration_key TEXT,
			doc TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted_at TEXT
		);
		CREATE UNIQUE INDEX idx_platforms_live_id ON platforms(id) WHERE deleted_at IS NULL;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	svc := NewService(NewStore(db), fakeDirectory{}, fakeDirectory{}, logging.Default())
	return svc, db
}

// insertPlatform seeds a platform row directly; the platform service has
// its own tests.
func insertPlatform(t *testing.T, db *sql.DB, id, deployment string) {
	t.Helper()
	doc := `{}`
	if deployment != "" {
		doc = `{"hasDeployment":"` + deployment + `"}`
	}
	_, err := db.Exec(`
		INSERT INTO platforms (id, doc, created_at, updated_at)
		VALUES (?, json(?), '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`, id, doc)
	if err != nil {
		t.Fatalf("seeding platform %q: %v", id, err)
	}
}

func strPtr(s string) *string { return &s }

func TestCreate(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	t.Run("derived id and registration key", func(t *testing.T) {
		sen, err := svc.Create(ctx, CreateParams{Name: "Rain Gauge North"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if sen.ID != "rain-gauge-north" {
			t.Errorf("id = %q, want rain-gauge-north", sen.ID)
		}
		if len(sen.RegistrationKey) != 10 {
			t.Errorf("registration key length = %d, want 10", len(sen.RegistrationKey))
		}
	})

	t.Run("derived collision retried once with suffix", func(t *testing.T) {
		sen, err := svc.Create(ctx, CreateParams{Name: "Rain Gauge North"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if !strings.HasPrefix(sen.ID, "rain-gauge-north-") {
			t.Errorf("retried id = %q, want rain-gauge-north-<suffix>", sen.ID)
		}
	})

	t.Run("explicit id collision surfaces conflict", func(t *testing.T) {
		if _, err := svc.Create(ctx, CreateParams{ID: "rg-1", Name: "A"}); err != nil {
			t.Fatal(err)
		}
		_, err := svc.Create(ctx, CreateParams{ID: "rg-1", Name: "B"})
		if !apperr.HasKind(err, apperr.KindConflict) {
			t.Errorf("error = %v, want Conflict", err)
		}
	})

	t.Run("missing name rejected", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateParams{})
		if !apperr.HasKind(err, apperr.KindBadRequest) {
			t.Errorf("error = %v, want BadRequest", err)
		}
	})

	t.Run("both placement mechanisms rejected", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateParams{
			Name:          "Twice Placed",
			IsHostedBy:    strPtr("p1"),
			PermanentHost: strPtr("h1"),
		})
		if !apperr.HasKind(err, apperr.KindForbidden) {
			t.Errorf("error = %v, want Forbidden", err)
		}
	})
}

func TestUpdatePlacement(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	hosted, err := svc.Create(ctx, CreateParams{Name: "Hosted", IsHostedBy: strPtr("buoy-1")})
	if err != nil {
		t.Fatal(err)
	}
	carried, err := svc.Create(ctx, CreateParams{Name: "Carried", PermanentHost: strPtr("van-1")})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("permanent host on hosted sensor forbidden", func(t *testing.T) {
		_, err := svc.Update(ctx, hosted.ID, document.Patch{
			"permanentHost": document.Set("van-1"),
		})
		if !apperr.HasKind(err, apperr.KindForbidden) {
			t.Errorf("error = %v, want Forbidden", err)
		}
	})

	t.Run("hosting a carried sensor forbidden", func(t *testing.T) {
		_, err := svc.Host(ctx, carried.ID, "buoy-1")
		if !apperr.HasKind(err, apperr.KindForbidden) {
			t.Errorf("error = %v, want Forbidden", err)
		}
	})

	t.Run("swap mechanisms in one patch", func(t *testing.T) {
		sen, err := svc.Update(ctx, hosted.ID, document.Patch{
			"isHostedBy":    document.Unset(),
			"permanentHost": document.Set("van-1"),
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if sen.IsHostedBy != nil {
			t.Error("isHostedBy survived the swap")
		}
		if sen.PermanentHost == nil || *sen.PermanentHost != "van-1" {
			t.Errorf("permanentHost = %v, want van-1", sen.PermanentHost)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, err := svc.Update(ctx, carried.ID, document.Patch{
			"registrationKey": document.Set("xxxxxxxxxx"),
		})
		if !apperr.HasKind(err, apperr.KindBadRequest) {
			t.Errorf("error = %v, want BadRequest", err)
		}
	})

	t.Run("dead platform reference rejected", func(t *testing.T) {
		svc.platforms = fakeDirectory{err: apperr.NotFound("platform not found")}
		defer func() { svc.platforms = fakeDirectory{} }()

		_, err := svc.Update(ctx, hosted.ID, document.Patch{
			"isHostedBy": document.Set("gone"),
		})
		if !apperr.HasKind(err, apperr.KindNotFound) {
			t.Errorf("error = %v, want NotFound", err)
		}
	})
}

func TestRegistration(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	sen, err := svc.Create(ctx, CreateParams{Name: "Anemometer"})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("claim by key", func(t *testing.T) {
		got, err := svc.Register(ctx, sen.RegistrationKey, "weather-mast-3")
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		if got.RegisteredAs == nil || *got.RegisteredAs != "weather-mast-3" {
			t.Errorf("registeredAs = %v, want weather-mast-3", got.RegisteredAs)
		}
	})

	t.Run("second claim forbidden even with identical value", func(t *testing.T) {
		_, err := svc.Register(ctx, sen.RegistrationKey, "weather-mast-3")
		if !apperr.HasKind(err, apperr.KindForbidden) {
			t.Errorf("error = %v, want Forbidden", err)
		}
	})

	t.Run("deregister is idempotent", func(t *testing.T) {
		if err := svc.Deregister(ctx, sen.ID); err != nil {
			t.Fatalf("Deregister() error = %v", err)
		}
		if err := svc.Deregister(ctx, sen.ID); err != nil {
			t.Errorf("second Deregister() error = %v, want nil", err)
		}
	})

	t.Run("deregister of deleted sensor reports IsDeleted", func(t *testing.T) {
		if err := svc.Delete(ctx, sen.ID); err != nil {
			t.Fatal(err)
		}
		err := svc.Deregister(ctx, sen.ID)
		if apperr.KindOf(err) != apperr.KindDeleted {
			t.Errorf("error = %v, want IsDeleted", err)
		}
	})
}

func TestDelete(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	sen, err := svc.Create(ctx, CreateParams{Name: "Tide Gauge", IsHostedBy: strPtr("pier-2")})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, sen.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	t.Run("lookup reports IsDeleted", func(t *testing.T) {
		_, err := svc.Get(ctx, sen.ID, false)
		if apperr.KindOf(err) != apperr.KindDeleted {
			t.Errorf("error = %v, want IsDeleted", err)
		}
	})

	t.Run("override returns tombstone without placement", func(t *testing.T) {
		got, err := svc.Get(ctx, sen.ID, true)
		if err != nil {
			t.Fatalf("Get(includeDeleted) error = %v", err)
		}
		if got.DeletedAt == nil {
			t.Error("tombstone missing DeletedAt")
		}
		if got.IsHostedBy != nil {
			t.Error("hosting reference survived delete")
		}
	})
}

func TestUnhostByDeployment(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	insertPlatform(t, db, "buoy-in-d", "harbour-study")
	insertPlatform(t, db, "buoy-elsewhere", "other-study")

	inDeployment, err := svc.Create(ctx, CreateParams{
		Name: "S One", IsHostedBy: strPtr("buoy-in-d"), HasDeployment: strPtr("harbour-study"),
	})
	if err != nil {
		t.Fatal(err)
	}
	outsider, err := svc.Create(ctx, CreateParams{
		Name: "S Two", IsHostedBy: strPtr("buoy-in-d"),
	})
	if err != nil {
		t.Fatal(err)
	}
	unrelated, err := svc.Create(ctx, CreateParams{
		Name: "S Three", IsHostedBy: strPtr("buoy-elsewhere"),
	})
	if err != nil {
		t.Fatal(err)
	}

	n, err := svc.UnhostByDeployment(ctx, "harbour-study")
	if err != nil {
		t.Fatalf("UnhostByDeployment() error = %v", err)
	}
	if n != 1 {
		t.Errorf("unhosted %d sensors, want 1", n)
	}

	check := func(id string, wantHosted bool) {
		t.Helper()
		sen, err := svc.Get(ctx, id, false)
		if err != nil {
			t.Fatal(err)
		}
		if (sen.IsHostedBy != nil) != wantHosted {
			t.Errorf("sensor %q hosted = %v, want %v", id, sen.IsHostedBy != nil, wantHosted)
		}
	}

	// The deployment's own sensor keeps its hosting; the outsider hosted
	// on the deployment's platform loses it; unrelated sensors untouched.
	check(inDeployment.ID, true)
	check(outsider.ID, false)
	check(unrelated.ID, true)
}

func TestHostedOnAndCarriedBy(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	hosted, err := svc.Create(ctx, CreateParams{Name: "GPS", IsHostedBy: strPtr("buoy-1")})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.HostedOn(ctx, hosted.ID, "buoy-1"); err != nil {
		t.Errorf("HostedOn() error = %v", err)
	}
	if err := svc.HostedOn(ctx, hosted.ID, "buoy-2"); !apperr.HasKind(err, apperr.KindForbidden) {
		t.Errorf("HostedOn(wrong platform) error = %v, want Forbidden", err)
	}
	if err := svc.CarriedBy(ctx, hosted.ID, "van-1"); !apperr.HasKind(err, apperr.KindForbidden) {
		t.Errorf("CarriedBy(unattached) error = %v, want Forbidden", err)
	}
}
