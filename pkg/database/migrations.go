package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreatePartialUniqueIndexes creates the partial/composite indexes that back
// this service's invariants and are not reliably produced by ent's
// declarative auto-migration path (entClient.Schema.Create), used by tests
// that skip golang-migrate and migrate straight from schema annotations.
//
// Production startup runs the embedded SQL migrations instead (see
// runMigrations in client.go), which already create these indexes; this is
// a defensive, idempotent second pass.
func CreatePartialUniqueIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	// I-ACTIVE: at most one ACTIVE GroupJourney per group.
	_, err := db.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_group_journeys_one_active_per_group
		ON group_journeys (group_id) WHERE status = 'ACTIVE'`)
	if err != nil {
		return fmt.Errorf("failed to create one-active-journey-per-group index: %w", err)
	}

	return nil
}

// CreateGINIndexes creates GIN indexes over the JSONB columns ent's
// declarative schema does not express natively: JourneyInstance.route_points
// and RideEvent.data (the free-form structured payload).
// Idempotent; safe to call from both production startup and test setup.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_journey_instances_route_points_gin
		ON journey_instances USING GIN (route_points)`)
	if err != nil {
		return fmt.Errorf("failed to create route_points GIN index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_ride_events_data_gin
		ON ride_events USING GIN (data)`)
	if err != nil {
		return fmt.Errorf("failed to create ride_events data GIN index: %w", err)
	}

	return nil
}
