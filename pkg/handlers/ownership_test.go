package handlers

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkOwnershipChain_PrunesBelowMinAndStopsAtNaturalPerson(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// root <- holdco (60%) <- alice (natural person, 80% of holdco);
	// root <- tiny (1%) falls below minOwnershipPct and is never walked.
	mock.ExpectQuery("SELECT owner_id, ownership_pct FROM ownership_edges").
		WithArgs("root").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "ownership_pct"}).AddRow("holdco", 0.6).AddRow("tiny", 0.01))
	mock.ExpectQuery("SELECT is_natural_person FROM entities").
		WithArgs("root").
		WillReturnRows(sqlmock.NewRows([]string{"is_natural_person"}).AddRow(false))

	mock.ExpectQuery("SELECT owner_id, ownership_pct FROM ownership_edges").
		WithArgs("holdco").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "ownership_pct"}).AddRow("alice", 0.8))
	mock.ExpectQuery("SELECT is_natural_person FROM entities").
		WithArgs("holdco").
		WillReturnRows(sqlmock.NewRows([]string{"is_natural_person"}).AddRow(false))

	mock.ExpectQuery("SELECT owner_id, ownership_pct FROM ownership_edges").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "ownership_pct"}))
	mock.ExpectQuery("SELECT is_natural_person FROM entities").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"is_natural_person"}).AddRow(true))

	tx, err := db.Begin()
	require.NoError(t, err)

	candidates, err := WalkOwnershipChain(context.Background(), tx, "root")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "alice", candidates[0].PersonID)
	assert.InDelta(t, 0.48, candidates[0].CumulativePct, 0.0001)
}
