package importer

import (
	"strings"
)

// Convert превращает каждую строку без ошибок в ValidatedStudent, в порядке строк.
// Проверки полей прогоняются ещё раз ради нормализованных значений; строка, которая
// больше не проходит (например, день рождения между фазами), становится ImportError.
func (v *FileValidator) Convert(report *ValidationReport) ([]ValidatedStudent, []ImportError) {
	now := v.now()
	students := make([]ValidatedStudent, 0, report.ValidCount)
	var failed []ImportError

	for i, row := range report.Rows {
		if report.Errors != nil && report.Errors.Has(i) {
			continue
		}

		line := i + 2
		if i < len(report.Lines) {
			line = report.Lines[i]
		}

		s, errs := buildStudent(row, line, now)
		if len(errs) > 0 {
			msgs := make([]string, len(errs))
			for j, e := range errs {
				msgs[j] = e.Message
			}
			failed = append(failed, ImportError{
				IDNumber: row[ColIDNumber],
				Name:     strings.TrimSpace(row[ColFirstNames] + " " + row[ColSurname]),
				Error:    strings.Join(msgs, "; "),
			})
			continue
		}
		students = append(students, s)
	}

	return students, failed
}
