package importer

import (
	"strings"
)

// Category - причина ошибки записи группы для пользователя.
type Category string

const (
	CategoryPermissionDenied Category = "permission_denied"
	CategoryQuotaExceeded    Category = "quota_exceeded"
	CategoryUnavailable      Category = "unavailable"
	CategoryInvalidData      Category = "invalid_data"
	CategoryAlreadyExists    Category = "already_exists"
	CategoryNotFound         Category = "not_found"
	CategoryUnknown          Category = "unknown"
)

type classificationRule struct {
	category Category
	message  string
	patterns []string
}

// classificationRules проверяются по порядку, побеждает первое совпадение подстроки.
// Шаблоны в нижнем регистре, покрывают формулировки Postgres и DynamoDB.
var classificationRules = []classificationRule{
	{
		category: CategoryPermissionDenied,
		message:  "Permission denied: your account is not allowed to create student records. Ask an administrator to check your access.",
		patterns: []string{"permission denied", "permission-denied", "permission_denied", "access denied", "accessdenied", "unauthorized", "forbidden", "not authorized"},
	},
	{
		category: CategoryQuotaExceeded,
		message:  "The database is over its capacity right now (quota exceeded). Wait a few minutes and import the remaining students again.",
		patterns: []string{"quota", "resource-exhausted", "resource exhausted", "resource_exhausted", "throughput exceeded", "throughputexceeded", "throttl", "too many connections", "rate exceeded", "limitexceeded"},
	},
	{
		category: CategoryUnavailable,
		message:  "The database could not be reached (network problem or timeout). Check your connection and try again.",
		patterns: []string{"unavailable", "network", "timeout", "timed out", "deadline exceeded", "deadline-exceeded", "connection refused", "connection reset", "broken pipe", "no such host", "bad connection"},
	},
	{
		category: CategoryInvalidData,
		message:  "The database rejected some student data as malformed. Check the file for unusual characters or values.",
		patterns: []string{"invalid-argument", "invalid argument", "invalid_argument", "validationexception", "invalid input syntax", "malformed", "violates check constraint", "value too long"},
	},
	{
		category: CategoryAlreadyExists,
		message:  "One or more students in this group already exist in the database.",
		patterns: []string{"already-exists", "already exists", "already_exists", "alreadyexists", "duplicate key", "unique constraint", "conditionalcheckfailed"},
	},
	{
		category: CategoryNotFound,
		message:  "A database resource needed for the import was not found. Contact support.",
		patterns: []string{"not-found", "not found", "not_found", "notfound", "does not exist", "no such table"},
	},
}

// ClassifyError переводит ошибку хранилища в категорию и сообщение для оператора.
// Нераспознанные ошибки отдаются как есть.
func ClassifyError(err error) (Category, string) {
	if err == nil {
		return CategoryUnknown, ""
	}
	raw := err.Error()
	lower := strings.ToLower(raw)
	for _, rule := range classificationRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				return rule.category, rule.message
			}
		}
	}
	return CategoryUnknown, raw
}
