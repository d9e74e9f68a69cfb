package importer

import (
	"fmt"
	"time"

	"github.com/zhukovvlad/residence-go/cmd/internal/services/apierrors"
	"github.com/zhukovvlad/residence-go/cmd/internal/validation"
)

// FileValidator проверяет файл построчно. Состояния между вызовами нет,
// один экземпляр обслуживает параллельные импорты.
type FileValidator struct {
	now func() time.Time
}

// NewFileValidator: now нужен для границ возраста и года финансирования.
func NewFileValidator(now func() time.Time) *FileValidator {
	if now == nil {
		now = time.Now
	}
	return &FileValidator{now: now}
}

// ValidateFile parses and validates raw upload bytes.
func (v *FileValidator) ValidateFile(filename string, data []byte) (*ValidationReport, error) {
	parsed, err := ReadRows(filename, data)
	if err != nil {
		return nil, err
	}
	return v.Validate(parsed)
}

// Validate прогоняет все проверки полей по всем строкам. Если в заголовке нет
// обязательных колонок, весь файл отклоняется с *apierrors.MissingColumnsError.
// Входные строки не изменяются.
func (v *FileValidator) Validate(file *ParsedFile) (*ValidationReport, error) {
	if missing := MissingColumns(file.Header); len(missing) > 0 {
		return nil, &apierrors.MissingColumnsError{Columns: missing}
	}
	if len(file.Rows) == 0 {
		return nil, ErrEmptyFile
	}

	now := v.now()
	errs := NewRowErrors()
	seen := make(map[string]int, len(file.Rows))
	flagged := make(map[int]bool)

	for i, row := range file.Rows {
		line := lineOf(file, i)

		_, rowErrs := buildStudent(row, line, now)
		errs.Add(i, rowErrs...)

		id := validation.NormalizeIDNumber(row[ColIDNumber])
		if id == "" {
			continue
		}
		first, dup := seen[id]
		if !dup {
			seen[id] = i
			continue
		}

		errs.Add(i, ValidationError{
			Row:     line,
			Field:   ColIDNumber,
			Message: fmt.Sprintf("Duplicate ID number %s: it also appears on row %d", id, lineOf(file, first)),
		})
		if !flagged[first] {
			flagged[first] = true
			errs.Add(first, ValidationError{
				Row:     lineOf(file, first),
				Field:   ColIDNumber,
				Message: fmt.Sprintf("Duplicate ID number %s: it appears again on row %d", id, line),
			})
		}
	}

	return &ValidationReport{
		Rows:         file.Rows,
		Lines:        file.Lines,
		Errors:       errs,
		TotalRows:    len(file.Rows),
		ValidCount:   len(file.Rows) - errs.Len(),
		InvalidCount: errs.Len(),
	}, nil
}

func lineOf(file *ParsedFile, i int) int {
	if i < len(file.Lines) {
		return file.Lines[i]
	}
	return i + 2
}

// buildStudent проверяет все поля строки и возвращает нормализованного студента
// вместе с ошибками. Студент имеет смысл только если ошибок нет.
func buildStudent(row RawRow, line int, now time.Time) (ValidatedStudent, []ValidationError) {
	var errs []ValidationError
	check := func(field string, err error) {
		if err != nil {
			errs = append(errs, ValidationError{Row: line, Field: field, Message: err.Error()})
		}
	}

	s := ValidatedStudent{Row: line}
	var err error

	s.IDNumber, err = validation.IDNumber(row[ColIDNumber])
	check(ColIDNumber, err)
	s.FirstNames, err = validation.RequiredString(fieldLabels[ColFirstNames], row[ColFirstNames])
	check(ColFirstNames, err)
	s.Surname, err = validation.RequiredString(fieldLabels[ColSurname], row[ColSurname])
	check(ColSurname, err)
	s.Email, err = validation.Email(row[ColEmail])
	check(ColEmail, err)
	s.Phone, err = validation.Phone(row[ColPhone])
	check(ColPhone, err)
	s.DateOfBirth, err = validation.DateOfBirth(row[ColDateOfBirth], now)
	check(ColDateOfBirth, err)
	s.Gender, err = validation.Gender(row[ColGender])
	check(ColGender, err)

	for _, opt := range []struct {
		col string
		dst **string
	}{
		{ColInstitution, &s.Institution},
		{ColStudentNumber, &s.StudentNumber},
		{ColProgram, &s.Program},
		{ColFundingReference, &s.FundingReference},
	} {
		*opt.dst, err = validation.OptionalString(fieldLabels[opt.col], row[opt.col])
		check(opt.col, err)
	}

	s.YearOfStudy, err = validation.YearOfStudy(row[ColYearOfStudy])
	check(ColYearOfStudy, err)
	s.Funded, err = validation.Funded(row[ColFunded])
	check(ColFunded, err)
	s.FundedAmount, err = validation.FundedAmount(row[ColFundedAmount])
	check(ColFundedAmount, err)
	s.FundingYear, err = validation.FundingYear(row[ColFundingYear], now)
	check(ColFundingYear, err)

	s.Address.Street, err = validation.RequiredString(fieldLabels[ColStreetAddress], row[ColStreetAddress])
	check(ColStreetAddress, err)
	s.Address.Suburb, err = validation.OptionalString(fieldLabels[ColSuburb], row[ColSuburb])
	check(ColSuburb, err)
	s.Address.TownCity, err = validation.RequiredString(fieldLabels[ColTownCity], row[ColTownCity])
	check(ColTownCity, err)
	s.Address.Province, err = validation.Province(row[ColProvince])
	check(ColProvince, err)
	s.Address.PostalCode, err = validation.PostalCode(row[ColPostalCode])
	check(ColPostalCode, err)

	return s, errs
}
