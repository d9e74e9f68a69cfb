package testutil

import (
	"bytes"
	"encoding/csv"
	"time"
)

// Валидные номера ID; на FixedNow возраст у всех от 16 до 70.
const (
	IDNumber1980 = "8001015009087"
	IDNumber1992 = "9202204720083"
	IDNumber2000 = "0002290001086"
	IDNumber2004 = "0403155009083"
)

// ValidIDNumbers lists the IDs above in a stable order.
var ValidIDNumbers = []string{IDNumber1980, IDNumber1992, IDNumber2000, IDNumber2004}

// FixedNow is the clock used by validator tests.
var FixedNow = time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)

// StudentHeader is the full template header.
var StudentHeader = []string{
	"id_number", "first_names", "surname", "email", "phone", "date_of_birth", "gender",
	"institution", "student_number", "program", "year_of_study", "funding_reference",
	"funded", "funded_amount", "funding_year",
	"street_address", "suburb", "town_city", "province", "postal_code",
}

// StudentRow возвращает строку, которая проходит все проверки.
// Необязательные колонки пустые, строка валидна для любого ID.
func StudentRow(idNumber string) map[string]string {
	return map[string]string{
		"id_number":      idNumber,
		"first_names":    "Lerato",
		"surname":        "Dlamini",
		"funded":         "yes",
		"street_address": "5 Church Street",
		"town_city":      "Pretoria",
		"province":       "gauteng",
	}
}

// With возвращает копию строки с заменённой колонкой.
func With(row map[string]string, column, value string) map[string]string {
	out := make(map[string]string, len(row)+1)
	for k, v := range row {
		out[k] = v
	}
	out[column] = value
	return out
}

// StudentCSV renders rows under StudentHeader.
func StudentCSV(rows ...map[string]string) []byte {
	return CSV(StudentHeader, rows...)
}

// CSV рендерит строки под произвольным заголовком; недостающие ячейки пустые.
func CSV(header []string, rows ...map[string]string) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(header)
	for _, row := range rows {
		rec := make([]string, len(header))
		for i, col := range header {
			rec[i] = row[col]
		}
		_ = w.Write(rec)
	}
	w.Flush()
	return buf.Bytes()
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}

// Int returns a pointer to i.
func Int(i int) *int {
	return &i
}
