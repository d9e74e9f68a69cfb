package importer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zhukovvlad/residence-go/cmd/internal/db"
	"github.com/zhukovvlad/residence-go/cmd/pkg/logging"
)

// OpsPerStudent - сколько записей добавляет один студент в атомарную запись:
// адрес и сам студент.
const OpsPerStudent = 2

const (
	ReasonAlreadyExists   = "identifier already exists"
	ReasonDuplicateInFile = "duplicate identifier within file"
)

// ErrNoStore: писать некуда.
var ErrNoStore = errors.New("no student store configured")

// ProgressFunc получает снимок после каждой группы. Вызывается из цикла записи.
type ProgressFunc func(BatchProgress)

// CRMNotifier получает каждого записанного студента. Реализация не должна блокировать.
type CRMNotifier interface {
	Notify(student CommittedStudent, linkage LinkageContext)
}

// GroupSizeFor - наибольшая группа, запись которой укладывается в лимит хранилища.
func GroupSizeFor(limits db.Limits) int {
	return max(1, limits.MaxWriteOps/OpsPerStudent)
}

type CommitterOptions struct {
	// По умолчанию GroupSizeFor(store.Limits()).
	GroupSize int
	// По умолчанию store.Limits().MaxQueryValues.
	ExistenceBatchSize int
	Notifier           CRMNotifier
	NewID              func() string
	Now                func() time.Time
}

// BatchCommitter пишет проверенных студентов группами.
type BatchCommitter struct {
	store     db.Store
	logger    *logging.Logger
	detector  *DuplicateDetector
	groupSize int
	notifier  CRMNotifier
	newID     func() string
	now       func() time.Time
}

func NewBatchCommitter(store db.Store, logger *logging.Logger, opts CommitterOptions) *BatchCommitter {
	c := &BatchCommitter{
		store:     store,
		logger:    logger,
		groupSize: opts.GroupSize,
		notifier:  opts.Notifier,
		newID:     opts.NewID,
		now:       opts.Now,
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.now == nil {
		c.now = time.Now
	}
	if store == nil {
		return c
	}

	limits := store.Limits()
	if c.groupSize <= 0 || c.groupSize > GroupSizeFor(limits) {
		c.groupSize = GroupSizeFor(limits)
	}
	batch := opts.ExistenceBatchSize
	if batch <= 0 || (limits.MaxQueryValues > 0 && batch > limits.MaxQueryValues) {
		batch = limits.MaxQueryValues
	}
	c.detector = NewDuplicateDetector(store, batch)
	return c
}

// GroupSize reports the effective group size.
func (c *BatchCommitter) GroupSize() int {
	return c.groupSize
}

// runState живёт в пределах одного вызова Commit.
type runState struct {
	result    *ImportResult
	committed map[string]struct{}
	linkage   LinkageContext
}

// Commit записывает студентов последовательными группами. Ошибка группы попадает в
// результат, запуск продолжается; ошибкой возвращается только отсутствие хранилища.
// Отмена ctx останавливает запуск перед следующей группой, но не посреди записи.
func (c *BatchCommitter) Commit(ctx context.Context, students []ValidatedStudent, linkage LinkageContext, onProgress ProgressFunc) (*ImportResult, error) {
	result := &ImportResult{Duplicates: []DuplicateStudent{}, Errors: []ImportError{}}
	if len(students) == 0 {
		return result, nil
	}
	if c.store == nil {
		return nil, ErrNoStore
	}

	logger := c.logger.GetLoggerWithFields(map[string]interface{}{
		"run_id":    linkage.RunID,
		"tenant_id": linkage.TenantID,
	})
	state := &runState{
		result:    result,
		committed: make(map[string]struct{}, len(students)),
		linkage:   linkage,
	}

	// Записи не должны обрываться отменой посреди транзакции.
	writeCtx := context.WithoutCancel(ctx)

	groups := chunk(students, c.groupSize)
	logger.Infof("committing %d students in %d groups of up to %d", len(students), len(groups), c.groupSize)

	for i, group := range groups {
		if err := ctx.Err(); err != nil {
			logger.Warnf("run cancelled before group %d/%d: %v", i+1, len(groups), err)
			result.Cancelled = true
			break
		}

		started := time.Now()
		c.commitGroup(writeCtx, group, state, logger.GetLoggerWithField("group", i+1))
		groupDuration.Observe(time.Since(started).Seconds())

		if onProgress != nil {
			onProgress(BatchProgress{
				CurrentGroup:  i + 1,
				TotalGroups:   len(groups),
				ImportedCount: result.SuccessCount,
				TotalCount:    len(students),
				Percentage:    (i + 1) * 100 / len(groups),
			})
		}
	}

	result.DuplicateCount = len(result.Duplicates)
	result.ErrorCount = len(result.Errors)
	logger.Infof("commit finished: attempted=%d success=%d duplicates=%d errors=%d cancelled=%t",
		result.TotalAttempted, result.SuccessCount, result.DuplicateCount, result.ErrorCount, result.Cancelled)
	return result, nil
}

func (c *BatchCommitter) commitGroup(ctx context.Context, group []ValidatedStudent, state *runState, logger *logging.Logger) {
	result := state.result
	result.TotalAttempted += len(group)

	candidates := make([]ValidatedStudent, 0, len(group))
	inGroup := make(map[string]struct{}, len(group))
	for _, s := range group {
		_, done := state.committed[s.IDNumber]
		_, pending := inGroup[s.IDNumber]
		if done || pending {
			c.duplicate(result, s, ReasonDuplicateInFile)
			continue
		}
		inGroup[s.IDNumber] = struct{}{}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return
	}

	ids := make([]string, len(candidates))
	for i, s := range candidates {
		ids[i] = s.IDNumber
	}
	existing, err := c.detector.Existing(ctx, ids)
	if err != nil {
		c.fail(result, candidates, err, logger)
		return
	}

	toCommit := make([]ValidatedStudent, 0, len(candidates))
	for _, s := range candidates {
		if _, ok := existing[s.IDNumber]; ok {
			c.duplicate(result, s, ReasonAlreadyExists)
			continue
		}
		toCommit = append(toCommit, s)
	}
	if len(toCommit) == 0 {
		logger.Info("group holds only existing students, nothing to write")
		return
	}

	now := c.now().UTC()
	committed := make([]CommittedStudent, len(toCommit))
	ops := make([]db.Operation, 0, len(toCommit)*OpsPerStudent)
	for i, s := range toCommit {
		cs := CommittedStudent{Student: s, AddressID: c.newID(), StudentID: c.newID()}
		committed[i] = cs
		ops = append(ops,
			db.Operation{Collection: db.CollectionAddresses, Key: cs.AddressID, Record: addressRecord(s.Address, state.linkage, now)},
			db.Operation{Collection: db.CollectionStudents, Key: cs.StudentID, Record: studentRecord(s, cs.AddressID, state.linkage, now)},
		)
	}

	if err := c.store.AtomicWrite(ctx, ops); err != nil {
		c.fail(result, toCommit, err, logger)
		return
	}

	result.SuccessCount += len(toCommit)
	studentsTotal.WithLabelValues("committed").Add(float64(len(toCommit)))
	logger.Infof("group committed: %d students", len(toCommit))

	for _, cs := range committed {
		state.committed[cs.Student.IDNumber] = struct{}{}
		if c.notifier != nil {
			c.notifier.Notify(cs, state.linkage)
		}
	}
}

func (c *BatchCommitter) duplicate(result *ImportResult, s ValidatedStudent, reason string) {
	result.Duplicates = append(result.Duplicates, DuplicateStudent{
		IDNumber: s.IDNumber,
		Name:     s.FullName(),
		Reason:   reason,
	})
	studentsTotal.WithLabelValues("duplicate").Inc()
}

func (c *BatchCommitter) fail(result *ImportResult, students []ValidatedStudent, err error, logger *logging.Logger) {
	category, message := ClassifyError(err)
	logger.Errorf("group of %d students failed (%s): %v", len(students), category, err)
	commitFailuresTotal.WithLabelValues(string(category)).Inc()
	studentsTotal.WithLabelValues("failed").Add(float64(len(students)))

	for _, s := range students {
		result.Errors = append(result.Errors, ImportError{
			IDNumber: s.IDNumber,
			Name:     s.FullName(),
			Error:    message,
		})
	}
}
