package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var (
	ErrEmptyFile         = errors.New("file has no data rows")
	ErrUnsupportedFormat = errors.New("unsupported file format: upload a .csv or .xlsx file")
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var (
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
	zipMagic = []byte("PK\x03\x04")
)

// ParsedFile - загруженная таблица: нормализованный заголовок и строки.
type ParsedFile struct {
	Format string
	Header []string
	Rows   []RawRow
	// Lines - номер строки в таблице для каждой записи.
	Lines []int
}

// DetectFormat выбирает CSV или XLSX по расширению, иначе по содержимому.
func DetectFormat(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case "":
		if bytes.HasPrefix(data, zipMagic) {
			return FormatXLSX, nil
		}
		return FormatCSV, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// ReadRows разбирает байты загрузки. Первая непустая строка - заголовок,
// полностью пустые строки пропускаются.
func ReadRows(filename string, data []byte) (*ParsedFile, error) {
	format, err := DetectFormat(filename, data)
	if err != nil {
		return nil, err
	}

	var records [][]string
	var lines []int
	switch format {
	case FormatXLSX:
		records, lines, err = readXLSX(data)
	default:
		records, lines, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}

	start := -1
	for i, rec := range records {
		if !blank(rec) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrEmptyFile
	}

	header := make([]string, len(records[start]))
	for i, h := range records[start] {
		header[i] = NormalizeHeader(h)
	}

	parsed := &ParsedFile{Format: format, Header: header}
	for i := start + 1; i < len(records); i++ {
		rec := records[i]
		if blank(rec) {
			continue
		}
		parsed.Rows = append(parsed.Rows, toRawRow(header, rec))
		parsed.Lines = append(parsed.Lines, lines[i])
	}

	return parsed, nil
}

func toRawRow(header, rec []string) RawRow {
	row := make(RawRow, len(TemplateColumns))
	for i, col := range header {
		if _, known := knownColumns[col]; !known {
			continue
		}
		if _, taken := row[col]; taken {
			continue // при повторе колонки берём первую
		}
		if i < len(rec) {
			row[col] = strings.TrimSpace(rec[i])
		} else {
			row[col] = ""
		}
	}
	return row
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// decodeText убирает UTF-8 BOM и перекодирует Windows-1252 в UTF-8 (так Excel
// сохраняет CSV на машинах операторов).
func decodeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("decode windows-1252: %w", err)
	}
	return decoded, nil
}

// sniffDelimiter выбирает ';', если в заголовке точек с запятой больше, чем запятых.
func sniffDelimiter(data []byte) rune {
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	if bytes.Count(first, []byte(";")) > bytes.Count(first, []byte(",")) {
		return ';'
	}
	return ','
}

func readCSV(data []byte) ([][]string, []int, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, nil, err
	}

	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	var lines []int
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return records, lines, nil
}

func readXLSX(data []byte) ([][]string, []int, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmptyFile
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	lines := make([]int, len(rows))
	for i := range rows {
		lines[i] = i + 1
	}
	return rows, lines, nil
}
