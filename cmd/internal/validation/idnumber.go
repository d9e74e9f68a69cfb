package validation

import (
	"fmt"
	"strings"
)

const (
	idNumberLength  = 13
	idNumberExample = "8001015009087"
)

// stripSeparators убирает пробелы и дефисы, которыми операторы любят разбивать номера.
func stripSeparators(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '\t' {
			return -1
		}
		return r
	}, raw)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IDNumber проверяет 13-значный номер удостоверения личности и возвращает его без
// разделителей. Позиции 0-5 - YYMMDD, позиция 12 - контрольная цифра Луна по
// позициям 0-11.
func IDNumber(raw string) (string, error) {
	id := stripSeparators(strings.TrimSpace(raw))
	if id == "" {
		return "", fmt.Errorf("ID number is required (13 digits, e.g. %s)", idNumberExample)
	}

	if n := len([]rune(id)); n != idNumberLength {
		return "", fmt.Errorf("ID number must be exactly 13 digits, got %d (e.g. %s)", n, idNumberExample)
	}
	if !isDigits(id) {
		return "", fmt.Errorf("ID number must contain digits only (e.g. %s)", idNumberExample)
	}

	month := int(id[2]-'0')*10 + int(id[3]-'0')
	if month < 1 || month > 12 {
		return "", fmt.Errorf("ID number has an invalid birth month %02d: digits 3-4 must be 01-12", month)
	}
	day := int(id[4]-'0')*10 + int(id[5]-'0')
	if day < 1 || day > 31 {
		return "", fmt.Errorf("ID number has an invalid birth day %02d: digits 5-6 must be 01-31", day)
	}

	want, err := CheckDigit(id[:idNumberLength-1])
	if err != nil {
		return "", err
	}
	got := int(id[idNumberLength-1] - '0')
	if got != want {
		return "", fmt.Errorf("ID number checksum is invalid: the last digit should be %d, not %d", want, got)
	}

	return id, nil
}

// CheckDigit computes the Luhn check digit for the first 12 digits of an ID number.
// Every second digit counting from the right is doubled, 9 is subtracted from doubled
// values above 9, and the check digit is (10 - sum mod 10) mod 10.
func CheckDigit(payload string) (int, error) {
	if len(payload) != idNumberLength-1 || !isDigits(payload) {
		return 0, fmt.Errorf("check digit payload must be %d digits", idNumberLength-1)
	}

	sum := 0
	double := true
	for i := len(payload) - 1; i >= 0; i-- {
		d := int(payload[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10, nil
}

// NormalizeIDNumber убирает пробелы и разделители без проверки. Ключ для поиска
// дублей внутри файла.
func NormalizeIDNumber(raw string) string {
	return stripSeparators(strings.TrimSpace(raw))
}
