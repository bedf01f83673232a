package handlers

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onboardkit/semos/pkg/contracts"
)

func TestTransferCapital_RejectsInsufficientBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT balance_minor, currency FROM capital_positions").
		WithArgs("pos-a").
		WillReturnRows(sqlmock.NewRows([]string{"balance_minor", "currency"}).AddRow(int64(500), "USD"))

	tx, err := db.Begin()
	require.NoError(t, err)

	args := map[string]any{
		"source_position_id": "pos-a",
		"target_position_id": "pos-b",
		"transfer_amount":    int64(1000),
		"transfer_currency":  "USD",
	}
	_, cerr := TransferCapital(context.Background(), tx, &contracts.Op{}, args)
	require.NotNil(t, cerr)
	assert.Equal(t, contracts.CodeBlocked, cerr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferCapital_MovesBalanceAndRecordsPairedMovements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT balance_minor, currency FROM capital_positions").
		WithArgs("pos-a").
		WillReturnRows(sqlmock.NewRows([]string{"balance_minor", "currency"}).AddRow(int64(5000), "USD"))
	mock.ExpectExec("UPDATE capital_positions SET balance_minor = balance_minor - \\$2").
		WithArgs("pos-a", int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO capital_positions").
		WithArgs("pos-b", "USD").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE capital_positions SET balance_minor = balance_minor \\+ \\$2").
		WithArgs("pos-b", int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO capital_movements").
		WillReturnResult(sqlmock.NewResult(0, 2))

	tx, err := db.Begin()
	require.NoError(t, err)

	args := map[string]any{
		"source_position_id": "pos-a",
		"target_position_id": "pos-b",
		"transfer_amount":    int64(1000),
		"transfer_currency":  "USD",
	}
	result, cerr := TransferCapital(context.Background(), tx, &contracts.Op{}, args)
	require.Nil(t, cerr)
	assert.Equal(t, contracts.ResultRecord, result.Kind)
	assert.NotEmpty(t, result.Record["reference"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileCapital_ComputesUnallocatedRemainder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT issued_units FROM instruments").
		WithArgs("instr-1").
		WillReturnRows(sqlmock.NewRows([]string{"issued_units"}).AddRow(int64(1000)))
	mock.ExpectQuery("SELECT holder_id, units FROM holdings").
		WithArgs("instr-1").
		WillReturnRows(sqlmock.NewRows([]string{"holder_id", "units"}).
			AddRow("holder-a", int64(400)).
			AddRow("holder-b", int64(300)))
	mock.ExpectExec("UPDATE instruments SET unallocated_units").
		WithArgs("instr-1", int64(300)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Begin()
	require.NoError(t, err)

	result, cerr := ReconcileCapital(context.Background(), tx, &contracts.Op{}, map[string]any{"instrument_id": "instr-1"})
	require.Nil(t, cerr)
	assert.Equal(t, int64(300), result.Record["unallocated_units"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
