package importer

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RawRow - сырые значения ячеек одной строки файла по именам колонок шаблона.
type RawRow map[string]string

// ValidationError - одна ошибка поля. Row - номер строки в таблице
// (заголовок - строка 1).
type ValidationError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RowErrors - ошибки по индексу строки (с нуля), обход идёт по возрастанию индекса.
type RowErrors struct {
	order []int
	byRow map[int][]ValidationError
}

func NewRowErrors() *RowErrors {
	return &RowErrors{byRow: make(map[int][]ValidationError)}
}

// Add добавляет ошибки строки.
func (e *RowErrors) Add(index int, errs ...ValidationError) {
	if len(errs) == 0 {
		return
	}
	if _, ok := e.byRow[index]; !ok {
		e.order = append(e.order, index)
	}
	e.byRow[index] = append(e.byRow[index], errs...)
}

// Has сообщает, есть ли у строки ошибки.
func (e *RowErrors) Has(index int) bool {
	_, ok := e.byRow[index]
	return ok
}

// Get returns the diagnostics of a row.
func (e *RowErrors) Get(index int) []ValidationError {
	return e.byRow[index]
}

// Len - число строк с ошибками.
func (e *RowErrors) Len() int {
	return len(e.order)
}

// Indexes возвращает индексы строк с ошибками по возрастанию.
func (e *RowErrors) Indexes() []int {
	out := make([]int, len(e.order))
	copy(out, e.order)
	sort.Ints(out)
	return out
}

// All - все ошибки одним списком в порядке строк.
func (e *RowErrors) All() []ValidationError {
	var out []ValidationError
	for _, idx := range e.Indexes() {
		out = append(out, e.byRow[idx]...)
	}
	return out
}

// HomeAddress принадлежит своему студенту.
type HomeAddress struct {
	Street     string  `json:"streetAddress"`
	Suburb     *string `json:"suburb,omitempty"`
	TownCity   string  `json:"townCity"`
	Province   string  `json:"province"`
	PostalCode *string `json:"postalCode,omitempty"`
}

// ValidatedStudent - строка, прошедшая все проверки полей, уже нормализованная и типизированная.
type ValidatedStudent struct {
	Row              int              `json:"row"`
	IDNumber         string           `json:"idNumber"`
	FirstNames       string           `json:"firstNames"`
	Surname          string           `json:"surname"`
	Email            *string          `json:"email,omitempty"`
	Phone            *string          `json:"phone,omitempty"`
	DateOfBirth      *time.Time       `json:"dateOfBirth,omitempty"`
	Gender           *string          `json:"gender,omitempty"`
	Institution      *string          `json:"institution,omitempty"`
	StudentNumber    *string          `json:"studentNumber,omitempty"`
	Program          *string          `json:"program,omitempty"`
	YearOfStudy      *int             `json:"yearOfStudy,omitempty"`
	FundingReference *string          `json:"fundingReference,omitempty"`
	Funded           bool             `json:"funded"`
	FundedAmount     *decimal.Decimal `json:"fundedAmount,omitempty"`
	FundingYear      *int             `json:"fundingYear,omitempty"`
	Address          HomeAddress      `json:"address"`
}

// FullName is "first names surname".
func (s ValidatedStudent) FullName() string {
	return s.FirstNames + " " + s.Surname
}

// DuplicateStudent - пропущенная запись: такой идентификатор уже есть.
type DuplicateStudent struct {
	IDNumber string `json:"idNumber"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
}

// ImportError - запись прошла проверку, но не сохранилась.
type ImportError struct {
	IDNumber string `json:"idNumber,omitempty"`
	Name     string `json:"name,omitempty"`
	Error    string `json:"error"`
}

// BatchProgress - снимок после очередной группы.
type BatchProgress struct {
	CurrentGroup  int `json:"currentGroup"`
	TotalGroups   int `json:"totalGroups"`
	ImportedCount int `json:"importedCount"`
	TotalCount    int `json:"totalCount"`
	Percentage    int `json:"percentage"`
}

// ImportResult - итог одного запуска записи.
// TotalAttempted == SuccessCount + DuplicateCount + ErrorCount.
type ImportResult struct {
	TotalAttempted int                `json:"totalAttempted"`
	SuccessCount   int                `json:"successCount"`
	DuplicateCount int                `json:"duplicateCount"`
	ErrorCount     int                `json:"errorCount"`
	Duplicates     []DuplicateStudent `json:"duplicates"`
	Errors         []ImportError      `json:"errors"`
	Cancelled      bool               `json:"cancelled,omitempty"`
}

// ValidationReport - результат проверки файла.
type ValidationReport struct {
	Rows         []RawRow   `json:"-"`
	Lines        []int      `json:"-"`
	Errors       *RowErrors `json:"-"`
	TotalRows    int        `json:"totalRows"`
	ValidCount   int        `json:"validCount"`
	InvalidCount int        `json:"invalidCount"`
}

// IsClean: все строки прошли проверку.
func (r *ValidationReport) IsClean() bool {
	return r.InvalidCount == 0
}

// Diagnostics flattens the error map in row order.
func (r *ValidationReport) Diagnostics() []ValidationError {
	if r.Errors == nil {
		return nil
	}
	return r.Errors.All()
}

// LinkageContext связывает записанного студента с тенантом и запуском (нужно CRM).
type LinkageContext struct {
	TenantID   string `json:"tenantId"`
	OperatorID string `json:"operatorId,omitempty"`
	RunID      string `json:"runId"`
}

// CommittedStudent передаётся в синхронизацию с CRM после успешной записи группы.
type CommittedStudent struct {
	Student   ValidatedStudent
	StudentID string
	AddressID string
}
