package importer_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovvlad/residence-go/cmd/internal/db"
	"github.com/zhukovvlad/residence-go/cmd/internal/services/importer"
	"github.com/zhukovvlad/residence-go/cmd/internal/testutil"
	"github.com/zhukovvlad/residence-go/cmd/pkg/logging"
)

func newPostgresPipeline(t *testing.T, conn *sql.DB, groupSize int) *importer.ImportService {
	t.Helper()
	store := db.NewPostgresStore(conn, db.Limits{})
	require.NoError(t, store.EnsureSchema(context.Background()))
	testutil.CleanupTables(t, conn)

	now := func() time.Time { return testutil.FixedNow }
	committer := importer.NewBatchCommitter(store, logging.NewNop(), importer.CommitterOptions{
		GroupSize:          groupSize,
		ExistenceBatchSize: 2,
		Now:                now,
	})
	return importer.NewImportService(store, importer.NewFileValidator(now), committer, nil, logging.NewNop())
}

func countRows(t *testing.T, conn *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(query, args...).Scan(&n))
	return n
}

func TestImportRun_Postgres(t *testing.T) {
	conn := testutil.StartPostgres(t)
	svc := newPostgresPipeline(t, conn, 2)
	ctx := context.Background()

	// GIVEN: three students committed by a first run
	first, err := svc.Run(ctx, importer.RunRequest{
		FileName: "first.csv",
		TenantID: "tenant-a",
		Data: testutil.StudentCSV(
			testutil.StudentRow(testutil.IDNumber1980),
			testutil.StudentRow(testutil.IDNumber1992),
			testutil.StudentRow(testutil.IDNumber2000),
		),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Result.SuccessCount)

	// WHEN: a second file repeats them and adds one new student
	second, err := svc.Run(ctx, importer.RunRequest{
		FileName:   "second.csv",
		TenantID:   "tenant-a",
		OperatorID: "op-1",
		Data: testutil.StudentCSV(
			testutil.StudentRow(testutil.IDNumber1980),
			testutil.StudentRow(testutil.IDNumber1992),
			testutil.StudentRow(testutil.IDNumber2000),
			testutil.StudentRow(testutil.IDNumber2004),
		),
	}, nil)
	require.NoError(t, err)

	// THEN: only the new student is written, the others are reported as existing
	res := second.Result
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 3, res.DuplicateCount)
	assert.Zero(t, res.ErrorCount)
	testutil.AssertPartition(t, res.TotalAttempted, res.SuccessCount, res.DuplicateCount, res.ErrorCount)
	for _, d := range res.Duplicates {
		assert.Equal(t, importer.ReasonAlreadyExists, d.Reason)
	}

	assert.Equal(t, 4, countRows(t, conn, "SELECT count(*) FROM students"))
	assert.Equal(t, 4, countRows(t, conn, "SELECT count(*) FROM addresses"))
	assert.Equal(t, 4, countRows(t, conn,
		"SELECT count(*) FROM students s JOIN addresses a ON a.id = s.address_id WHERE a.province = 'Gauteng'"))
	assert.Equal(t, 1, countRows(t, conn,
		"SELECT count(*) FROM import_runs WHERE id = $1 AND operator_id = 'op-1' AND success_count = 1 AND duplicate_count = 3",
		second.RunID))
}

func TestPostgresStore_AtomicWriteRollsBack(t *testing.T) {
	conn := testutil.StartPostgres(t)
	store := db.NewPostgresStore(conn, db.Limits{})
	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))

	// GIVEN: an address followed by a student pointing at a missing address
	ops := []db.Operation{
		{Collection: db.CollectionAddresses, Key: "6f1c2a8e-6a56-4b43-9d3a-3f4b4c0e2a01", Record: map[string]any{
			"tenant_id": "tenant-a", "street_address": "1 Main Road", "town_city": "Durban", "province": "KwaZulu-Natal",
		}},
		{Collection: db.CollectionStudents, Key: "6f1c2a8e-6a56-4b43-9d3a-3f4b4c0e2a02", Record: map[string]any{
			"tenant_id": "tenant-a", "id_number": testutil.IDNumber1980, "first_names": "Sipho", "surname": "Nkosi",
			"funded": true, "address_id": "6f1c2a8e-6a56-4b43-9d3a-3f4b4c0e2aff",
		}},
	}

	// WHEN
	err := store.AtomicWrite(ctx, ops)

	// THEN: the foreign key failure undoes the address insert too
	require.Error(t, err)
	assert.Zero(t, countRows(t, conn, "SELECT count(*) FROM addresses"))

	existing, err := store.ExistingKeys(ctx, db.CollectionStudents, importer.ColIDNumber, []string{testutil.IDNumber1980})
	require.NoError(t, err)
	assert.Empty(t, existing)
}
