package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	phoneLength       = 10
	phoneLeadingDigit = '0'

	minAge = 16
	maxAge = 70

	minYearOfStudy = 1
	maxYearOfStudy = 7

	firstFundingYear = 2000

	// MaxTextLength ограничивает свободный текст (имена, учебное заведение, программа...).
	MaxTextLength = 200
)

var (
	validate = validator.New()

	datePattern       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	postalCodePattern = regexp.MustCompile(`^\d{4}$`)

	// Запятая допустима только как разделитель тысяч: 45,000 или 1,250,000.50
	groupedAmountPattern = regexp.MustCompile(`^\d{1,3}(,\d{3})+(\.\d+)?$`)

	maxFundedAmount = decimal.NewFromInt(1_000_000)
)

// Provinces - фиксированный список провинций в каноническом написании.
var Provinces = []string{
	"Eastern Cape",
	"Free State",
	"Gauteng",
	"KwaZulu-Natal",
	"Limpopo",
	"Mpumalanga",
	"North West",
	"Northern Cape",
	"Western Cape",
}

var provinceLookup = func() map[string]string {
	m := make(map[string]string, len(Provinces))
	for _, p := range Provinces {
		m[strings.ToLower(p)] = p
	}
	return m
}()

// RequiredString обрезает пробелы и отклоняет пустое или слишком длинное значение.
func RequiredString(label, raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fmt.Errorf("%s is required", label)
	}
	if utf8.RuneCountInString(v) > MaxTextLength {
		return "", fmt.Errorf("%s must be at most %d characters", label, MaxTextLength)
	}
	return v, nil
}

// OptionalString для пустого значения возвращает nil.
func OptionalString(label, raw string) (*string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(v) > MaxTextLength {
		return nil, fmt.Errorf("%s must be at most %d characters", label, MaxTextLength)
	}
	return &v, nil
}

// Email необязателен; значение приводится к нижнему регистру и должно быть адресом.
func Email(raw string) (*string, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return nil, nil
	}
	if err := validate.Var(v, "email"); err != nil {
		return nil, fmt.Errorf("Email %q is not a valid address (e.g. student@example.com)", raw)
	}
	return &v, nil
}

// Phone необязателен; после нормализации - 10 цифр, первая 0.
func Phone(raw string) (*string, error) {
	v := stripSeparators(strings.TrimSpace(raw))
	if v == "" {
		return nil, nil
	}
	if len(v) != phoneLength || !isDigits(v) || v[0] != phoneLeadingDigit {
		return nil, fmt.Errorf("Phone must be %d digits starting with %c (e.g. 0821234567)", phoneLength, phoneLeadingDigit)
	}
	return &v, nil
}

// Gender is optional and normalizes to Male, Female or Other.
func Gender(raw string) (*string, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	var g string
	switch v {
	case "":
		return nil, nil
	case "male", "m":
		g = "Male"
	case "female", "f":
		g = "Female"
	case "other":
		g = "Other"
	default:
		return nil, fmt.Errorf("Gender must be Male, Female or Other, got %q", raw)
	}
	return &g, nil
}

// Funded разбирает обязательный флаг финансирования.
func Funded(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "true":
		return true, nil
	case "no", "n", "false":
		return false, nil
	case "":
		return false, errors.New("Funded is required (Yes or No)")
	default:
		return false, fmt.Errorf("Funded must be Yes or No (also accepted: Y/N, True/False), got %q", raw)
	}
}

// YearOfStudy is optional, an integer between 1 and 7.
func YearOfStudy(raw string) (*int, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < minYearOfStudy || n > maxYearOfStudy {
		return nil, fmt.Errorf("Year of study must be a whole number from %d to %d (e.g. 2), got %q", minYearOfStudy, maxYearOfStudy, raw)
	}
	return &n, nil
}

// DateOfBirth необязателен. Реальная дата YYYY-MM-DD, возраст на now от 16 до 70.
func DateOfBirth(raw string, now time.Time) (*time.Time, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	if !datePattern.MatchString(v) {
		return nil, fmt.Errorf("Date of birth must use the YYYY-MM-DD format (e.g. 2003-04-21), got %q", raw)
	}
	dob, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("Date of birth %q is not a real calendar date", v)
	}

	age := ageAt(dob, now)
	if age < minAge || age > maxAge {
		return nil, fmt.Errorf("Date of birth %s gives an age of %d; students must be between %d and %d years old", v, age, minAge, maxAge)
	}
	return &dob, nil
}

func ageAt(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

// Province обязателен и сравнивается с Provinces без учёта регистра.
func Province(raw string) (string, error) {
	v := strings.Join(strings.Fields(raw), " ")
	if v == "" {
		return "", errors.New("Province is required (e.g. Gauteng)")
	}
	p, ok := provinceLookup[strings.ToLower(v)]
	if !ok {
		return "", fmt.Errorf("Province %q is not recognised; use one of: %s", raw, strings.Join(Provinces, ", "))
	}
	return p, nil
}

// FundedAmount необязателен; значение положительное, не больше 1 000 000 и
// не больше двух знаков после точки. Допустимы разделители тысяч и префикс "R".
func FundedAmount(raw string) (*decimal.Decimal, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	v = strings.TrimPrefix(strings.TrimPrefix(v, "R"), "r")
	v = strings.ReplaceAll(v, " ", "")
	if strings.Contains(v, ",") {
		if !groupedAmountPattern.MatchString(v) {
			return nil, fmt.Errorf("Funded amount must use a point for decimals (e.g. 45000.50 or 45,000.50), got %q", raw)
		}
		v = strings.ReplaceAll(v, ",", "")
	}

	amount, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("Funded amount must be a number (e.g. 45000.00), got %q", raw)
	}
	if !amount.IsPositive() || amount.GreaterThan(maxFundedAmount) {
		return nil, fmt.Errorf("Funded amount must be greater than 0 and at most %s, got %q", maxFundedAmount.String(), raw)
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return nil, fmt.Errorf("Funded amount can have at most 2 decimal places, got %q", raw)
	}
	return &amount, nil
}

// FundingYear необязателен: четыре цифры, от 2000 до следующего года.
func FundingYear(raw string, now time.Time) (*int, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	last := now.Year() + 1
	y, err := strconv.Atoi(v)
	if err != nil || len(v) != 4 || y < firstFundingYear || y > last {
		return nil, fmt.Errorf("Funding year must be a year from %d to %d (e.g. %d), got %q", firstFundingYear, last, now.Year(), raw)
	}
	return &y, nil
}

// PostalCode необязателен, ровно четыре цифры.
func PostalCode(raw string) (*string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	if !postalCodePattern.MatchString(v) {
		return nil, fmt.Errorf("Postal code must be 4 digits (e.g. 2001), got %q", raw)
	}
	return &v, nil
}
