package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zhukovvlad/residence-go/cmd/internal/services/apierrors"
	"github.com/zhukovvlad/residence-go/cmd/internal/services/importer"
	"github.com/zhukovvlad/residence-go/cmd/internal/services/progress"
	"github.com/zhukovvlad/residence-go/cmd/pkg/logging"
)

const (
	defaultMaxUploadBytes = 5 << 20
	// multipartOverhead - запас на boundary и поля формы вокруг файла.
	multipartOverhead = 64 << 10

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var errFileTooLarge = errors.New("file is too large")

type reportResponse struct {
	TotalRows    int                        `json:"total_rows"`
	ValidCount   int                        `json:"valid_count"`
	InvalidCount int                        `json:"invalid_count"`
	Errors       []importer.ValidationError `json:"errors"`
	Rows         []importer.RawRow          `json:"rows,omitempty"`
}

func newReportResponse(r *importer.ValidationReport, withRows bool) *reportResponse {
	if r == nil {
		return nil
	}
	resp := &reportResponse{
		TotalRows:    r.TotalRows,
		ValidCount:   r.ValidCount,
		InvalidCount: r.InvalidCount,
		Errors:       r.Diagnostics(),
	}
	if resp.Errors == nil {
		resp.Errors = []importer.ValidationError{}
	}
	if withRows {
		resp.Rows = r.Rows
	}
	return resp
}

// readUpload читает поле формы "file" не больше maxUploadBytes.
func (s *Server) readUpload(c *gin.Context) (string, []byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return "", nil, errFileTooLarge
		}
		return "", nil, apierrors.NewValidationError("file field 'file' is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxUploadBytes {
		return "", nil, errFileTooLarge
	}
	return header.Filename, data, nil
}

// writeImportError переводит ошибки конвейера в HTTP-статусы.
func (s *Server) writeImportError(c *gin.Context, err error) {
	var missing *apierrors.MissingColumnsError
	var invalid *apierrors.ValidationError
	var notFound *apierrors.NotFoundError

	switch {
	case errors.Is(err, errFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":     fmt.Sprintf("file is larger than %d bytes", s.maxUploadBytes),
			"max_bytes": s.maxUploadBytes,
		})
	case errors.As(err, &missing):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":           err.Error(),
			"missing_columns": missing.Columns,
		})
	case errors.Is(err, importer.ErrEmptyFile):
		c.JSON(http.StatusUnprocessableEntity, errorResponse(err))
	case errors.Is(err, importer.ErrUnsupportedFormat):
		c.JSON(http.StatusUnsupportedMediaType, errorResponse(err))
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, errorResponse(err))
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, errorResponse(err))
	default:
		s.logger.Errorf("import request failed: %v", err)
		c.JSON(http.StatusInternalServerError, errorResponse(errors.New("internal server error")))
	}
}

// validateImportHandler - пробный прогон: POST /api/v1/students/import/validate (multipart "file").
// 200 с отчётом; 413 при превышении лимита; 415 для неизвестного формата; 422, если
// нет колонок или строк.
func (s *Server) validateImportHandler(c *gin.Context) {
	filename, data, err := s.readUpload(c)
	if err != nil {
		s.writeImportError(c, err)
		return
	}

	dry, err := s.importer.Validate(filename, data)
	if err != nil {
		s.writeImportError(c, err)
		return
	}

	unconvertible := dry.Unconvertible
	if unconvertible == nil {
		unconvertible = []importer.ImportError{}
	}
	c.JSON(http.StatusOK, gin.H{
		"report":         newReportResponse(dry.Report, true),
		"valid_students": len(dry.Students),
		"unconvertible":  unconvertible,
	})
}

// formBool читает необязательный булев параметр формы.
func formBool(c *gin.Context, name string) (bool, error) {
	raw := c.PostForm(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apierrors.NewValidationError("%s must be true or false", name)
	}
	return v, nil
}

// runIDFor берёт run_id клиента (только UUID) или генерирует новый.
func runIDFor(c *gin.Context) (string, error) {
	raw := c.PostForm("run_id")
	if raw == "" {
		return uuid.NewString(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", apierrors.NewValidationError("run_id must be a UUID")
	}
	return id.String(), nil
}

func progressLocation(runID string) string {
	return "/api/v1/imports/" + runID + "/progress"
}

// importStudentsHandler обрабатывает POST /api/v1/students/import.
//
// Поля формы: file (csv/xlsx), skip_invalid, async (bool, по умолчанию false) и
// необязательный run_id (UUID). Идентификатор запуска известен сразу и приходит в
// заголовке X-Import-Run-Id.
//
// Синхронно: 200 с результатом; при невалидных строках и skip_invalid=false ничего
// не пишется, отчёт возвращается с 422.
// async=true: 202 и Location на прогресс, итог появляется в снимке completed.
func (s *Server) importStudentsHandler(c *gin.Context) {
	handlerLogger := s.logger.GetLoggerWithField("handler", "importStudentsHandler")

	// Сначала файл: readUpload ставит лимит на тело до разбора формы.
	filename, data, err := s.readUpload(c)
	if err != nil {
		s.writeImportError(c, err)
		return
	}
	skipInvalid, err := formBool(c, "skip_invalid")
	if err != nil {
		s.writeImportError(c, err)
		return
	}
	async, err := formBool(c, "async")
	if err != nil {
		s.writeImportError(c, err)
		return
	}
	if async && s.progress == nil {
		s.writeImportError(c, apierrors.NewValidationError("async imports need progress tracking, which is not enabled"))
		return
	}
	runID, err := runIDFor(c)
	if err != nil {
		s.writeImportError(c, err)
		return
	}

	req := importer.RunRequest{
		RunID:       runID,
		FileName:    filename,
		Data:        data,
		TenantID:    c.GetString(ctxTenantID),
		OperatorID:  c.GetString(ctxOperatorID),
		SkipInvalid: skipInvalid,
	}
	handlerLogger = handlerLogger.GetLoggerWithField("run_id", runID)
	handlerLogger.Infof("import of %q requested by operator %s (%d bytes, async=%t)", filename, req.OperatorID, len(data), async)
	c.Header("X-Import-Run-Id", runID)

	if async {
		s.startBackgroundRun(req, handlerLogger)
		c.Header("Location", progressLocation(runID))
		c.JSON(http.StatusAccepted, gin.H{
			"run_id":   runID,
			"progress": progressLocation(runID),
		})
		return
	}

	out, err := s.importer.Run(c.Request.Context(), req, nil)
	if errors.Is(err, importer.ErrInvalidRows) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  err.Error(),
			"run_id": runID,
			"report": newReportResponse(out.Report, false),
		})
		return
	}
	if err != nil {
		s.writeImportError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id": runID,
		"result": out.Result,
		"report": newReportResponse(out.Report, false),
	})
}

// startBackgroundRun запускает импорт в отрыве от запроса. Итог попадает в снимки
// прогресса, здесь он только логируется.
func (s *Server) startBackgroundRun(req importer.RunRequest, logger *logging.Logger) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		out, err := s.importer.Run(s.runCtx, req, nil)
		if err != nil {
			logger.Warnf("background import failed: %v", err)
			return
		}
		logger.Infof("background import finished: %d committed, %d duplicates, %d errors",
			out.Result.SuccessCount, out.Result.DuplicateCount, out.Result.ErrorCount)
	}()
}

// templateHandler отдаёт шаблон: GET /api/v1/students/import/template?format=csv|xlsx
func (s *Server) templateHandler(c *gin.Context) {
	var buf bytes.Buffer
	switch format := c.DefaultQuery("format", importer.FormatCSV); format {
	case importer.FormatCSV:
		if err := importer.RenderTemplateCSV(&buf); err != nil {
			s.writeImportError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="students_template.csv"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	case importer.FormatXLSX:
		if err := importer.RenderTemplateXLSX(&buf); err != nil {
			s.writeImportError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="students_template.xlsx"`)
		c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
	default:
		c.JSON(http.StatusBadRequest, errorResponse(fmt.Errorf("unknown template format %q: use csv or xlsx", format)))
	}
}

// importProgressHandler: GET /api/v1/imports/:run_id/progress
func (s *Server) importProgressHandler(c *gin.Context) {
	runID := c.Param("run_id")
	if s.progress == nil {
		s.writeImportError(c, apierrors.NewNotFoundError("progress tracking is not enabled"))
		return
	}

	snap, err := s.progress.Get(c.Request.Context(), runID)
	if errors.Is(err, progress.ErrNotFound) || (err == nil && snap.TenantID != c.GetString(ctxTenantID)) {
		s.writeImportError(c, apierrors.NewNotFoundError("import run %s not found", runID))
		return
	}
	if err != nil {
		s.writeImportError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}
