package location

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/urbanfield/deployment-core/internal/apperr"
	"github.com/urbanfield/deployment-core/internal/infrastructure/logging"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE locations (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			geometry TEXT NOT NULL,
			start_date TEXT NOT NULL,
			end_date TEXT
		);
		CREATE UNIQUE INDEX idx_locations_current ON locations(owner_id) WHERE end_date IS NULL;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	return NewStore(db, logging.Default())
}

func point(lng, lat float64) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"type":        "Point",
		"coordinates": []float64{lng, lat},
	})
	return b
}

func TestCreateClosesPreviousCurrent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, CreateParams{
		OwnerID:   "buoy-1",
		Geometry:  point(-1.4, 54.9),
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("first Create() error = %v", err)
	}

	moveDate := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	second, err := store.Create(ctx, CreateParams{
		OwnerID:   "buoy-1",
		Geometry:  point(-1.5, 55.0),
		StartDate: moveDate,
	})
	if err != nil {
		t.Fatalf("second Create() error = %v", err)
	}

	t.Run("current is the newest record", func(t *testing.T) {
		cur, err := store.Current(ctx, "buoy-1")
		if err != nil {
			t.Fatalf("Current() error = %v", err)
		}
		if cur.ID != second.ID {
			t.Errorf("current id = %q, want %q", cur.ID, second.ID)
		}
		if cur.EndDate != nil {
			t.Error("current record has an end date")
		}
	})

	t.Run("previous record closed at the move date", func(t *testing.T) {
		history, err := store.History(ctx, "buoy-1", 0, 0)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("history length = %d, want 2", len(history))
		}
		closed := history[1]
		if closed.ID != first.ID {
			t.Fatalf("oldest record id = %q, want %q", closed.ID, first.ID)
		}
		if closed.EndDate == nil || !closed.EndDate.Equal(moveDate) {
			t.Errorf("closed EndDate = %v, want %v", closed.EndDate, moveDate)
		}
	})
}

func TestAtMostOneCurrentPerOwner(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.Create(ctx, CreateParams{
			OwnerID:  "van-1",
			Geometry: point(float64(i), float64(i)),
		}); err != nil {
			t.Fatalf("Create() #%d error = %v", i, err)
		}
	}

	history, err := store.History(ctx, "van-1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	open := 0
	for _, loc := range history {
		if loc.EndDate == nil {
			open++
		}
	}
	if open != 1 {
		t.Errorf("open records = %d, want 1", open)
	}
}

func TestOwnersAreIndependent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, CreateParams{OwnerID: "buoy-1", Geometry: point(0, 0)}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create(ctx, CreateParams{OwnerID: "buoy-2", Geometry: point(1, 1)}); err != nil {
		t.Fatal(err)
	}

	for _, owner := range []string{"buoy-1", "buoy-2"} {
		if _, err := store.Current(ctx, owner); err != nil {
			t.Errorf("Current(%q) error = %v", owner, err)
		}
	}
}

func TestValidation(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params CreateParams
	}{
		{"missing owner", CreateParams{Geometry: point(0, 0)}},
		{"missing geometry", CreateParams{OwnerID: "buoy-1"}},
		{"invalid geometry", CreateParams{OwnerID: "buoy-1", Geometry: json.RawMessage("{not json")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Create(ctx, tt.params)
			if !apperr.HasKind(err, apperr.KindBadRequest) {
				t.Errorf("Create() error = %v, want BadRequest", err)
			}
		})
	}
}

func TestCurrent_NoRecord(t *testing.T) {
	store := setupStore(t)

	_, err := store.Current(context.Background(), "nowhere")
	if !apperr.HasKind(err, apperr.KindNotFound) {
		t.Errorf("Current() error = %v, want NotFound", err)
	}
}
