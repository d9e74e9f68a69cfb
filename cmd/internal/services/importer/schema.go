package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Имена колонок в порядке шаблона.
const (
	ColIDNumber         = "id_number"
	ColFirstNames       = "first_names"
	ColSurname          = "surname"
	ColEmail            = "email"
	ColPhone            = "phone"
	ColDateOfBirth      = "date_of_birth"
	ColGender           = "gender"
	ColInstitution      = "institution"
	ColStudentNumber    = "student_number"
	ColProgram          = "program"
	ColYearOfStudy      = "year_of_study"
	ColFundingReference = "funding_reference"
	ColFunded           = "funded"
	ColFundedAmount     = "funded_amount"
	ColFundingYear      = "funding_year"
	ColStreetAddress    = "street_address"
	ColSuburb           = "suburb"
	ColTownCity         = "town_city"
	ColProvince         = "province"
	ColPostalCode       = "postal_code"
)

// TemplateColumns - заголовок шаблона для операторов.
var TemplateColumns = []string{
	ColIDNumber, ColFirstNames, ColSurname, ColEmail, ColPhone, ColDateOfBirth, ColGender,
	ColInstitution, ColStudentNumber, ColProgram, ColYearOfStudy, ColFundingReference,
	ColFunded, ColFundedAmount, ColFundingYear,
	ColStreetAddress, ColSuburb, ColTownCity, ColProvince, ColPostalCode,
}

// RequiredColumns обязаны быть в заголовке любого файла.
var RequiredColumns = []string{
	ColIDNumber, ColFirstNames, ColSurname, ColFunded, ColStreetAddress, ColTownCity, ColProvince,
}

// SampleRow - строка-пример в шаблоне.
var SampleRow = map[string]string{
	ColIDNumber:         "0403155009083",
	ColFirstNames:       "Thabo James",
	ColSurname:          "Mokoena",
	ColEmail:            "thabo.mokoena@example.com",
	ColPhone:            "0821234567",
	ColDateOfBirth:      "2004-03-15",
	ColGender:           "Male",
	ColInstitution:      "University of Johannesburg",
	ColStudentNumber:    "220145678",
	ColProgram:          "BSc Computer Science",
	ColYearOfStudy:      "2",
	ColFundingReference: "NSF-2026-000123",
	ColFunded:           "Yes",
	ColFundedAmount:     "45000.00",
	ColFundingYear:      "2026",
	ColStreetAddress:    "12 Jan Smuts Avenue",
	ColSuburb:           "Braamfontein",
	ColTownCity:         "Johannesburg",
	ColProvince:         "Gauteng",
	ColPostalCode:       "2001",
}

// fieldLabels - названия полей для сообщений об ошибках.
var fieldLabels = map[string]string{
	ColIDNumber:         "ID number",
	ColFirstNames:       "First names",
	ColSurname:          "Surname",
	ColEmail:            "Email",
	ColPhone:            "Phone",
	ColDateOfBirth:      "Date of birth",
	ColGender:           "Gender",
	ColInstitution:      "Institution",
	ColStudentNumber:    "Student number",
	ColProgram:          "Program",
	ColYearOfStudy:      "Year of study",
	ColFundingReference: "Funding reference",
	ColFunded:           "Funded",
	ColFundedAmount:     "Funded amount",
	ColFundingYear:      "Funding year",
	ColStreetAddress:    "Street address",
	ColSuburb:           "Suburb",
	ColTownCity:         "Town/city",
	ColProvince:         "Province",
	ColPostalCode:       "Postal code",
}

var knownColumns = func() map[string]struct{} {
	m := make(map[string]struct{}, len(TemplateColumns))
	for _, c := range TemplateColumns {
		m[c] = struct{}{}
	}
	return m
}()

// NormalizeHeader maps "ID Number", "id-number" and " ID_NUMBER " to "id_number".
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(h)
	return strings.Join(strings.Fields(h), "_")
}

// MissingColumns возвращает обязательные колонки, которых нет в заголовке.
func MissingColumns(header []string) []string {
	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[h] = struct{}{}
	}

	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := present[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

func sampleValues() []string {
	out := make([]string, len(TemplateColumns))
	for i, c := range TemplateColumns {
		out[i] = SampleRow[c]
	}
	return out
}

// RenderTemplateCSV writes the header and the sample row as CSV.
func RenderTemplateCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TemplateColumns); err != nil {
		return err
	}
	if err := cw.Write(sampleValues()); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

const templateSheet = "Students"

// RenderTemplateXLSX пишет шаблон в книгу с одним листом. Все ячейки текстовые,
// иначе Excel съедает ведущие нули в телефонах и ID.
func RenderTemplateXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), templateSheet); err != nil {
		return err
	}

	textStyle, err := f.NewStyle(&excelize.Style{NumFmt: 49})
	if err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: 49})
	if err != nil {
		return err
	}

	for i, col := range TemplateColumns {
		headerCell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		sampleCell, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(templateSheet, headerCell, col); err != nil {
			return err
		}
		if err := f.SetCellStr(templateSheet, sampleCell, SampleRow[col]); err != nil {
			return err
		}

		colName, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColStyle(templateSheet, colName, textStyle); err != nil {
			return err
		}
		if err := f.SetColWidth(templateSheet, colName, colName, float64(len(col)+6)); err != nil {
			return err
		}
		if err := f.SetCellStyle(templateSheet, headerCell, headerCell, headerStyle); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx template: %w", err)
	}
	return nil
}
