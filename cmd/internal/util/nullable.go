package util

import (
	"time"

	"github.com/shopspring/decimal"
)

// Хелперы ниже превращают необязательные поля в значения записи db.Operation.
// nil любой бэкенд сохраняет как NULL.

// StringValue превращает *string в значение записи; пустая строка тоже NULL.
func StringValue(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// IntValue converts *int into a record value.
func IntValue(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

// DateValue renders a calendar date as YYYY-MM-DD.
func DateValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}

// DecimalValue renders money with two fraction digits so NUMERIC(12,2) and
// document stores see the same text.
func DecimalValue(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.StringFixed(2)
}
