package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zhukovvlad/residence-go/cmd/internal/db"
	"github.com/zhukovvlad/residence-go/cmd/internal/util"
	"github.com/zhukovvlad/residence-go/cmd/pkg/logging"
)

// ErrInvalidRows: в файле есть невалидные строки, а пропускать их не просили.
// В этом случае ничего не записывается.
var ErrInvalidRows = errors.New("file has invalid rows")

// RunStatus - стадия запуска импорта.
type RunStatus string

const (
	StatusValidating RunStatus = "validating"
	StatusCommitting RunStatus = "committing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// RunProgress - состояние запуска, которое опрашивает клиент.
type RunProgress struct {
	RunID    string    `json:"runId"`
	TenantID string    `json:"tenantId"`
	Status   RunStatus `json:"status"`
	BatchProgress
	Error string `json:"error,omitempty"`
	// Result появляется в финальном снимке completed.
	Result    *ImportResult `json:"result,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// ProgressSink сохраняет снимки запуска для опроса.
type ProgressSink interface {
	Save(ctx context.Context, p RunProgress) error
}

// RunRequest описывает один загруженный файл. RunID можно задать заранее, чтобы
// идентификатор был известен до конца запуска; пустой - сгенерируем сами.
type RunRequest struct {
	RunID       string
	FileName    string
	Data        []byte
	TenantID    string
	OperatorID  string
	SkipInvalid bool
}

// RunOutcome - всё, что возвращает Run. Result равен nil, если ничего не
// записано.
type RunOutcome struct {
	RunID    string
	Report   *ValidationReport
	Students []ValidatedStudent
	Result   *ImportResult
}

// DryRun - результат Validate. Unconvertible - строки, которые прошли проверку,
// но не превратились в студентов.
type DryRun struct {
	Report        *ValidationReport
	Students      []ValidatedStudent
	Unconvertible []ImportError
}

// ImportService отвечает за полный цикл импорта: проверка файла, запись группами,
// прогресс и итоговая запись о запуске.
type ImportService struct {
	validator *FileValidator
	committer *BatchCommitter
	store     db.Store
	progress  ProgressSink
	logger    *logging.Logger
	now       func() time.Time
}

// NewImportService собирает конвейер. progress может быть nil.
func NewImportService(
	store db.Store,
	validator *FileValidator,
	committer *BatchCommitter,
	progress ProgressSink,
	logger *logging.Logger,
) *ImportService {
	return &ImportService{
		validator: validator,
		committer: committer,
		store:     store,
		progress:  progress,
		logger:    logger,
		now:       time.Now,
	}
}

// Validate - пробный прогон: проверка файла и конвертация, без обращений к хранилищу.
func (s *ImportService) Validate(filename string, data []byte) (*DryRun, error) {
	report, err := s.validator.ValidateFile(filename, data)
	if err != nil {
		return nil, err
	}
	observeValidation(report)
	students, unconvertible := s.validator.Convert(report)
	return &DryRun{Report: report, Students: students, Unconvertible: unconvertible}, nil
}

// Run проверяет файл и записывает валидные строки. Ошибки уровня файла и
// ErrInvalidRows возвращаются вместе с тем, что уже известно о запуске.
func (s *ImportService) Run(ctx context.Context, req RunRequest, onProgress ProgressFunc) (*RunOutcome, error) {
	started := s.now()
	out := &RunOutcome{RunID: req.RunID}
	if out.RunID == "" {
		out.RunID = uuid.NewString()
	}
	logger := s.logger.GetLoggerWithFields(map[string]interface{}{
		"run_id":    out.RunID,
		"tenant_id": req.TenantID,
	})
	linkage := LinkageContext{TenantID: req.TenantID, OperatorID: req.OperatorID, RunID: out.RunID}

	save := func(p RunProgress) {
		p.RunID = out.RunID
		p.TenantID = req.TenantID
		s.saveProgress(ctx, p, logger)
	}
	save(RunProgress{Status: StatusValidating})

	report, err := s.validator.ValidateFile(req.FileName, req.Data)
	if err != nil {
		logger.Warnf("file %q rejected: %v", req.FileName, err)
		save(RunProgress{Status: StatusFailed, Error: err.Error()})
		return out, err
	}
	observeValidation(report)
	out.Report = report
	logger.Infof("file %q validated: %d rows, %d valid, %d invalid",
		req.FileName, report.TotalRows, report.ValidCount, report.InvalidCount)

	if !report.IsClean() && !req.SkipInvalid {
		save(RunProgress{Status: StatusFailed, Error: ErrInvalidRows.Error()})
		return out, ErrInvalidRows
	}

	students, convErrs := s.validator.Convert(report)
	out.Students = students

	save(RunProgress{Status: StatusCommitting, BatchProgress: BatchProgress{TotalCount: len(students)}})

	result, err := s.committer.Commit(ctx, students, linkage, func(p BatchProgress) {
		save(RunProgress{Status: StatusCommitting, BatchProgress: p})
		if onProgress != nil {
			onProgress(p)
		}
	})
	if err != nil {
		save(RunProgress{Status: StatusFailed, Error: err.Error()})
		return out, fmt.Errorf("commit students: %w", err)
	}

	if len(convErrs) > 0 {
		result.Errors = append(result.Errors, convErrs...)
		result.ErrorCount += len(convErrs)
		result.TotalAttempted += len(convErrs)
	}
	out.Result = result

	save(RunProgress{Status: StatusCompleted, Result: result, BatchProgress: BatchProgress{
		ImportedCount: result.SuccessCount,
		TotalCount:    len(students),
		Percentage:    100,
	}})
	s.recordRun(ctx, req, linkage, result, report.InvalidCount, started, logger)

	return out, nil
}

func (s *ImportService) saveProgress(ctx context.Context, p RunProgress, logger *logging.Logger) {
	if s.progress == nil {
		return
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.progress.Save(context.WithoutCancel(ctx), p); err != nil {
		logger.Warnf("save progress (%s): %v", p.Status, err)
	}
}

// recordRun пишет итог в import_runs. Ошибки только логируются.
func (s *ImportService) recordRun(ctx context.Context, req RunRequest, linkage LinkageContext, result *ImportResult, invalidRows int, started time.Time, logger *logging.Logger) {
	if s.store == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		logger.Errorf("marshal run result: %v", err)
		return
	}

	record := map[string]any{
		"tenant_id":       linkage.TenantID,
		"operator_id":     util.StringValue(&linkage.OperatorID),
		"file_name":       req.FileName,
		"total_attempted": result.TotalAttempted,
		"success_count":   result.SuccessCount,
		"duplicate_count": result.DuplicateCount,
		"error_count":     result.ErrorCount,
		"invalid_rows":    invalidRows,
		"cancelled":       result.Cancelled,
		"started_at":      started.UTC(),
		"finished_at":     s.now().UTC(),
		"result":          json.RawMessage(payload),
	}
	op := db.Operation{Collection: db.CollectionImportRuns, Key: linkage.RunID, Record: record}
	if err := s.store.AtomicWrite(context.WithoutCancel(ctx), []db.Operation{op}); err != nil {
		_, msg := ClassifyError(err)
		logger.Errorf("record import run: %s (%v)", msg, err)
	}
}
