package sensor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/urbanfield/deployment-core/internal/apperr"
	"github.com/urbanfield/deployment-core/internal/document"
)

// Store wraps the sensors collection and adds the one query the generic
// document layer cannot express: the cascading bulk unhost.
type Store struct {
	*document.Collection
	db *sql.DB
}

// NewStore returns a Store over the sensors table.
func NewStore(db *sql.DB) *Store {
	return &Store{
		Collection: document.NewCollection(db, "sensors", "sensor"),
		db:         db,
	}
}

// UnhostByDeployment clears the hosting reference of every live sensor that
// is hosted on one of the deployment's platforms but does not itself belong
// to the deployment. This runs as a single conditional statement so the
// cascade is all-or-nothing; a failure is one aggregate error, never a
// partially applied loop.
func (s *Store) UnhostByDeployment(ctx context.Context, deploymentID string) (int64, error) {
	query := `
		UPDATE sensors
		SET doc = json_remove(doc, '$.isHostedBy'), updated_at = ?
		WHERE deleted_at IS NULL
		  AND json_extract(doc, '$.isHostedBy') IN (
			SELECT id FROM platforms
			WHERE deleted_at IS NULL
			  AND json_extract(doc, '$.hasDeployment') = ?
		  )
		  AND (json_extract(doc, '$.hasDeployment') IS NULL
		       OR json_extract(doc, '$.hasDeployment') != ?)`

	result, err := s.db.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339Nano), deploymentID, deploymentID)
	if err != nil {
		return 0, apperr.Database(
			fmt.Sprintf("could not unhost sensors for deployment %q", deploymentID), err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, apperr.Database(
			fmt.Sprintf("could not unhost sensors for deployment %q", deploymentID), err)
	}
	return n, nil
}
