package materializer

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onboardkit/semos/pkg/canonicalize"
)

func canonicalHashOf(v any) (string, error) {
	return canonicalize.CanonicalHash(v)
}

func TestMaterialize_NoPriorAuditProjectsUniverseAndRecordsAuditRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT document_hash FROM materialization_audit`).
		WithArgs("cbu-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO universes`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT name FROM universes WHERE cbu_id = \$1`).
		WithArgs("cbu-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Equities"))
	for _, table := range []string{"universes", "ssis", "booking_rules", "isdas"} {
		mock.ExpectQuery(`SELECT count\(\*\) FROM ` + table).
			WithArgs("cbu-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	}
	mock.ExpectQuery(`SELECT count\(\*\) FROM csas`).
		WithArgs("cbu-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO materialization_audit`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Begin()
	require.NoError(t, err)

	document := map[string]any{
		"universes": []any{map[string]any{"name": "Equities"}},
	}
	audit, cerr := Materialize(context.Background(), tx, "cbu-1", document, false)
	require.Nil(t, cerr)
	assert.Equal(t, []string{"universes"}, audit.SectionsProjected)
	assert.Equal(t, 1, audit.Counts["universes"])
	assert.False(t, audit.Force)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_UnchangedHashSkipsProjectionWithoutForce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	document := map[string]any{
		"universes": []any{map[string]any{"name": "Equities"}},
	}
	hash, err := canonicalHashOf(document)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT document_hash FROM materialization_audit`).
		WithArgs("cbu-1").
		WillReturnRows(sqlmock.NewRows([]string{"document_hash"}).AddRow(hash))
	for _, table := range []string{"universes", "ssis", "booking_rules", "isdas"} {
		mock.ExpectQuery(`SELECT count\(\*\) FROM ` + table).
			WithArgs("cbu-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	}
	mock.ExpectQuery(`SELECT count\(\*\) FROM csas`).
		WithArgs("cbu-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO materialization_audit`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Begin()
	require.NoError(t, err)

	audit, cerr := Materialize(context.Background(), tx, "cbu-1", document, false)
	require.Nil(t, cerr)
	assert.Empty(t, audit.SectionsProjected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_ForceReprojectsEvenWhenHashUnchanged(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	document := map[string]any{
		"universes": []any{map[string]any{"name": "Equities"}},
	}
	hash, err := canonicalHashOf(document)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT document_hash FROM materialization_audit`).
		WithArgs("cbu-1").
		WillReturnRows(sqlmock.NewRows([]string{"document_hash"}).AddRow(hash))
	mock.ExpectExec(`INSERT INTO universes`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT name FROM universes WHERE cbu_id = \$1`).
		WithArgs("cbu-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Equities"))
	for _, table := range []string{"universes", "ssis", "booking_rules", "isdas"} {
		mock.ExpectQuery(`SELECT count\(\*\) FROM ` + table).
			WithArgs("cbu-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	}
	mock.ExpectQuery(`SELECT count\(\*\) FROM csas`).
		WithArgs("cbu-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO materialization_audit`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Begin()
	require.NoError(t, err)

	audit, cerr := Materialize(context.Background(), tx, "cbu-1", document, true)
	require.Nil(t, cerr)
	assert.Equal(t, []string{"universes"}, audit.SectionsProjected)
	assert.True(t, audit.Force)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_OrphanUniverseIsSweptWhenAbsentFromDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT document_hash FROM materialization_audit`).
		WithArgs("cbu-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO universes`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT name FROM universes WHERE cbu_id = \$1`).
		WithArgs("cbu-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Equities").AddRow("Bonds"))
	mock.ExpectExec(`DELETE FROM universes WHERE cbu_id = \$1 AND name = \$2`).
		WithArgs("cbu-1", "Bonds").
		WillReturnResult(sqlmock.NewResult(0, 1))
	for _, table := range []string{"universes", "ssis", "booking_rules", "isdas"} {
		mock.ExpectQuery(`SELECT count\(\*\) FROM ` + table).
			WithArgs("cbu-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	}
	mock.ExpectQuery(`SELECT count\(\*\) FROM csas`).
		WithArgs("cbu-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO materialization_audit`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Begin()
	require.NoError(t, err)

	document := map[string]any{
		"universes": []any{map[string]any{"name": "Equities"}},
	}
	_, cerr := Materialize(context.Background(), tx, "cbu-1", document, false)
	require.Nil(t, cerr)
	assert.NoError(t, mock.ExpectationsWereMet())
}
