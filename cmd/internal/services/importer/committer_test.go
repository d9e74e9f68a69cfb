package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/zhukovvlad/residence-go/cmd/internal/db"
	mockdb "github.com/zhukovvlad/residence-go/cmd/internal/db/mock"
	"github.com/zhukovvlad/residence-go/cmd/internal/testutil"
	"github.com/zhukovvlad/residence-go/cmd/pkg/logging"
)

func makeStudents(ids ...string) []ValidatedStudent {
	out := make([]ValidatedStudent, len(ids))
	for i, id := range ids {
		out[i] = ValidatedStudent{
			Row:        i + 2,
			IDNumber:   id,
			FirstNames: "Student",
			Surname:    id,
			Funded:     true,
			Address:    HomeAddress{Street: "1 Main Road", TownCity: "Durban", Province: "KwaZulu-Natal"},
		}
	}
	return out
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	got     []CommittedStudent
	linkage []LinkageContext
}

func (r *recordingNotifier) Notify(s CommittedStudent, l LinkageContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
	r.linkage = append(r.linkage, l)
}

func newMockStore(t *testing.T, limits db.Limits) *mockdb.MockStore {
	ctrl := gomock.NewController(t)
	store := mockdb.NewMockStore(ctrl)
	store.EXPECT().Limits().Return(limits).AnyTimes()
	return store
}

func assertPartition(t *testing.T, r *ImportResult) {
	t.Helper()
	testutil.AssertPartition(t, r.TotalAttempted, r.SuccessCount, r.DuplicateCount, r.ErrorCount)
	assert.Len(t, r.Duplicates, r.DuplicateCount)
	assert.Len(t, r.Errors, r.ErrorCount)
}

var testLinkage = LinkageContext{TenantID: "tenant-1", OperatorID: "op-7", RunID: "6f1c1c56-5f0e-4a57-9a57-1f1d3c7f0b11"}

func TestGroupSizeFor(t *testing.T) {
	assert.Equal(t, 250, GroupSizeFor(db.DefaultPostgresLimits))
	assert.Equal(t, 50, GroupSizeFor(db.DynamoLimits))
	assert.Equal(t, 1, GroupSizeFor(db.Limits{MaxWriteOps: 1}))
	assert.Equal(t, 1, GroupSizeFor(db.Limits{}))
}

func TestNewBatchCommitter_ClampsSizes(t *testing.T) {
	store := newMockStore(t, db.Limits{MaxWriteOps: 10, MaxQueryValues: 3})

	c := NewBatchCommitter(store, logging.NewNop(), CommitterOptions{GroupSize: 100, ExistenceBatchSize: 40})
	assert.Equal(t, 5, c.GroupSize())
	assert.Equal(t, 3, c.detector.batchSize)

	c = NewBatchCommitter(store, logging.NewNop(), CommitterOptions{GroupSize: 2, ExistenceBatchSize: 1})
	assert.Equal(t, 2, c.GroupSize())
	assert.Equal(t, 1, c.detector.batchSize)
}

func TestBatchCommitter_EmptyInput(t *testing.T) {
	// GIVEN: a store that must not be touched
	ctrl := gomock.NewController(t)
	store := mockdb.NewMockStore(ctrl)
	store.EXPECT().Limits().Return(db.DefaultPostgresLimits).Times(1)
	c := NewBatchCommitter(store, logging.NewNop(), CommitterOptions{})

	// WHEN
	result, err := c.Commit(context.Background(), nil, testLinkage, func(BatchProgress) {
		t.Fatal("no progress expected for empty input")
	})

	// THEN
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Duplicates: []DuplicateStudent{}, Errors: []ImportError{}}, *result)
}

func TestBatchCommitter_NoStore(t *testing.T) {
	c := NewBatchCommitter(nil, logging.NewNop(), CommitterOptions{})

	_, err := c.Commit(context.Background(), makeStudents("a"), testLinkage, nil)

	assert.ErrorIs(t, err, ErrNoStore)
}

func TestBatchCommitter_GroupsAndProgress(t *testing.T) {
	// GIVEN: 5 students, 4 ops per write -> groups of 2
	store := newMockStore(t, db.Limits{MaxWriteOps: 4, MaxQueryValues: 50})
	store.EXPECT().ExistingKeys(gomock.Any(), db.CollectionStudents, ColIDNumber, gomock.Any()).
		Return(nil, nil).Times(3)

	var writeSizes []int
	store.EXPECT().AtomicWrite(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ops []db.Operation) error {
			writeSizes = append(writeSizes, len(ops))
			return nil
		}).Times(3)

	c := NewBatchCommitter(store, logging.NewNop(), CommitterOptions{NewID: sequentialIDs()})
	var snapshots []BatchProgress

	// WHEN
	result, err := c.Commit(context.Background(), makeStudents("a", "b", "c", "d", "e"), testLinkage,
		func(p BatchProgress) { snapshots = append(snapshots, p) })

	// THEN
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 2}, writeSizes)
	assert.Equal(t, 5, result.SuccessCount)
	assertPartition(t, result)
	assert.False(t, result.Cancelled)

	require.Len(t, snapshots, 3)
	assert.Equal(t, BatchProgress{CurrentGroup: 1, TotalGroups: 3, ImportedCount: 2, TotalCount: 5, Percentage: 33}, snapshots[0])
	assert.Equal(t, BatchProgress{CurrentGroup: 3, TotalGroups: 3, ImportedCount: 5, TotalCount: 5, Percentage: 100}, snapshots[2])
}

func TestBatchCommitter_LinkedRecords(t *testing.T) {
	// GIVEN
	store := newMockStore(t, db.DefaultPostgresLimits)
	store.EXPECT().ExistingKeys(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	var ops []db.Operation
	store.EXPECT().AtomicWrite(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, got []db.Operation) error {
			ops = got
			return nil
		})

	notifier := &recordingNotifier{}
	c := NewBatchCommitter(store, logging.NewNop(), CommitterOptions{NewID: sequentialIDs(), Notifier: notifier})
	students := makeStudents(testutil.IDNumber1980)
	students[0].Email = testutil.String("s@example.com")
	students[0].YearOfStudy = testutil.Int(3)

	// WHEN
	result, err := c.Commit(context.Background(), students, testLinkage, nil)

	// THEN: address first, student references it
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	require.Len(t, ops, 2)

	address, student := ops[0], ops[1]
	assert.Equal(t, db.CollectionAddresses, address.Collection)
	assert.Equal(t, "id-001", address.Key)
	assert.Equal(t, "Durban", address.Record["town_city"])
	assert.Nil(t, address.Record["suburb"])

	assert.Equal(t, db.CollectionStudents, student.Collection)
	assert.Equal(t, "id-002", student.Key)
	assert.Equal(t, address.Key, student.Record["address_id"])
	assert.Equal(t, testutil.IDNumber1980, student.Record["id_number"])
	assert.Equal(t, "tenant-1", student.Record["tenant_id"])
	assert.Equal(t, testLinkage.RunID, student.Record["import_run_id"])
	assert.Equal(t, "s@example.com", student.Record["email"])
	assert.Equal(t, 3, student.Record["year_of_study"])
	assert.Nil(t, student.Record["funded_amount"])

	require.Len(t, notifier.got, 1)
	assert.Equal(t, "id-002", notifier.got[0].StudentID)
	assert.Equal(t, "id-001", notifier.got[0].AddressID)
	assert.Equal(t, testLinkage, notifier.linkage[0])
}

func TestBatchCommitter_AllDuplicatesSkipWrite(t *testing.T) {
	// GIVEN: the store already has every identifier
	store := newMockStore(t, db.DefaultPostgresLimits)
	store.EXPECT().ExistingKeys(gomock.Any(), db.CollectionStudents, ColIDNumber, []string{"a", "b"}).
		Return([]string{"a", "b"}, nil)
	store.EXPECT().AtomicWrite(gomock.Any(), gomock.Any()).Times(0)

	notifier := &recordingNotifier{}
	c := NewBatchCommitter(store, logging.NewNop(), CommitterOptions{Notifier: notifier})

	// WHEN
	result, err := c.Commit(context.Background(), makeStudents("a", "b"), testLinkage, nil)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, 2, result.DuplicateCount)
	assert.Equal(t, 0, result.SuccessCount)
	assertPartition(t, result)
	for _, d := range result.Duplicates {
		assert.Equal(t, ReasonAlreadyExists, d.Reason)
	}
	assert.Equal(t, "Student a", result.Duplicates[0].Name)
	assert.Empty(t, notifier.got)
}

func TestBatchCommitter_PartialDuplicates(t *testing.T) {
	store := newMockStore(t, db.DefaultPostgresLimits)
	store.EXPECT().ExistingKeys(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return([]string{"b"}, nil)
	store.EXPECT().AtomicWrite(gomock.Any(), gomock.Len(4)).Return(nil)

	c := NewBatchCommitter(store, logging.NewNop(), CommitterOptions{})

	result, err := c.Commit(context.Background(), makeStudents("a", "b", "c"), testLinkage, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.DuplicateCount)
	assert.Equal(t, "b", result.Duplicates[0].IDNumber)
	assertPartition(t, result)
}

func TestBatchCommitter_FailedGroupDoesNotAbortRun(t *testing.T) {
	// GIVEN: groups of 2, the first write fails
	store := newMockStore(t, db.Limits{MaxWriteOps: 4, MaxQueryValues: 50})
	store.EXPECT().ExistingKeys(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).Times(2)
	gomock.InOrder(
		store.EXPECT().AtomicWrite(gomock.Any(), gomock.Any()).
			Return(errors.New(`pq: permission denied for table students`)),
		store.EXPECT().AtomicWrite(gomock.Any(), gomock.Any()).Return(nil),
	)

	notifier := &recordingNotifier{}
	c := NewBatchCommitter(store, logging.NewNop(), CommitterOptions{Notifier: notifier})

	// WHEN
	result, err := c.Commit(context.Background(), makeStudents("a", "b", "c", "d"), testLinkage, nil)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 2, result.ErrorCount)
	assertPartition(t, result)

	_, want := ClassifyError(errors.New("permission denied"))
	assert.Equal(t, "a", result.Errors[0].IDNumber)
	assert.Equal(t, "b", result.Errors[1].IDNumber)
	for _, e := range result.Errors {
		assert.Equal(t, want, e.Error)
	}
	assert.Len(t, notifier.got, 2, "only committed students reach the CRM")
}

func TestBatchCommitter_ExistenceQueryFailure(t *testing.T) {
	store := newMockStore(t, db.DefaultPostgresLimits)
	store.EXPECT().ExistingKeys(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("dial tcp: i/o timeout"))
	store.EXPECT().AtomicWrite(gomock.Any(), gomock.Any()).Times(0)

	c := NewBatchCommitter(store, logging.NewNop(), CommitterOptions{})

	result, err := c.Commit(context.Background(), makeStudents("a", "b"), testLinkage, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, result.ErrorCount)
	assertPartition(t, result)
}

func TestBatchCommitter_ExistenceSubBatches(t *testing.T) {
	// GIVEN: groups of 3 but only 2 values per existence query
	store := newMockStore(t, db.Limits{MaxWriteOps: 6, MaxQueryValues: 2})
	gomock.InOrder(
		store.EXPECT().ExistingKeys(gomock.Any(), db.CollectionStudents, ColIDNumber, []string{"a", "b"}).Return(nil, nil),
		store.EXPECT().ExistingKeys(gomock.Any(), db.CollectionStudents, ColIDNumber, []string{"c"}).Return([]string{"c"}, nil),
	)
	store.EXPECT().AtomicWrite(gomock.Any(), gomock.Len(4)).Return(nil)

	c := NewBatchCommitter(store, logging.NewNop(), CommitterOptions{})

	result, err := c.Commit(context.Background(), makeStudents("a", "b", "c"), testLinkage, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.DuplicateCount)
}

func TestBatchCommitter_DuplicateWithinRun(t *testing.T) {
	// GIVEN: groups of 1 and the same identifier twice
	store := newMockStore(t, db.Limits{MaxWriteOps: 2, MaxQueryValues: 50})
	store.EXPECT().ExistingKeys(gomock.Any(), gomock.Any(), gomock.Any(), []string{"a"}).Return(nil, nil).Times(1)
	store.EXPECT().AtomicWrite(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	c := NewBatchCommitter(store, logging.NewNop(), CommitterOptions{})

	// WHEN
	result, err := c.Commit(context.Background(), makeStudents("a", "a"), testLinkage, nil)

	// THEN: the second one never reaches the store
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	require.Len(t, result.Duplicates, 1)
	assert.Equal(t, ReasonDuplicateInFile, result.Duplicates[0].Reason)
	assertPartition(t, result)
}

func TestBatchCommitter_DuplicateWithinGroup(t *testing.T) {
	store := newMockStore(t, db.DefaultPostgresLimits)
	store.EXPECT().ExistingKeys(gomock.Any(), gomock.Any(), gomock.Any(), []string{"a", "b"}).Return(nil, nil)
	store.EXPECT().AtomicWrite(gomock.Any(), gomock.Len(4)).Return(nil)

	c := NewBatchCommitter(store, logging.NewNop(), CommitterOptions{})

	result, err := c.Commit(context.Background(), makeStudents("a", "b", "a"), testLinkage, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.DuplicateCount)
	assertPartition(t, result)
}

func TestBatchCommitter_Cancellation(t *testing.T) {
	// GIVEN: cancellation arrives while the first group is reported
	store := newMockStore(t, db.Limits{MaxWriteOps: 4, MaxQueryValues: 50})
	store.EXPECT().ExistingKeys(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)
	store.EXPECT().AtomicWrite(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewBatchCommitter(store, logging.NewNop(), CommitterOptions{})

	// WHEN
	result, err := c.Commit(ctx, makeStudents("a", "b", "c", "d", "e"), testLinkage, func(BatchProgress) { cancel() })

	// THEN: remaining groups are neither attempted nor counted
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Equal(t, 2, result.TotalAttempted)
	assert.Equal(t, 2, result.SuccessCount)
	assertPartition(t, result)
}

func TestBatchCommitter_WriteIgnoresCancellation(t *testing.T) {
	// GIVEN: the context is cancelled during the existence check
	store := newMockStore(t, db.DefaultPostgresLimits)
	ctx, cancel := context.WithCancel(context.Background())
	store.EXPECT().ExistingKeys(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, string, []string) ([]string, error) {
			cancel()
			return nil, nil
		})
	store.EXPECT().AtomicWrite(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ []db.Operation) error {
			return ctx.Err()
		})

	c := NewBatchCommitter(store, logging.NewNop(), CommitterOptions{})

	// WHEN
	result, err := c.Commit(ctx, makeStudents("a"), testLinkage, nil)

	// THEN: the in-flight group still completes
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
}
