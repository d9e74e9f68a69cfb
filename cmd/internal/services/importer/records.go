package importer

import (
	"time"

	"github.com/zhukovvlad/residence-go/cmd/internal/util"
)

func addressRecord(a HomeAddress, linkage LinkageContext, now time.Time) map[string]any {
	return map[string]any{
		"tenant_id":      linkage.TenantID,
		"street_address": a.Street,
		"suburb":         util.StringValue(a.Suburb),
		"town_city":      a.TownCity,
		"province":       a.Province,
		"postal_code":    util.StringValue(a.PostalCode),
		"created_at":     now,
	}
}

// studentRecord связывает студента с адресом через address_id.
func studentRecord(s ValidatedStudent, addressID string, linkage LinkageContext, now time.Time) map[string]any {
	return map[string]any{
		"tenant_id":         linkage.TenantID,
		"id_number":         s.IDNumber,
		"first_names":       s.FirstNames,
		"surname":           s.Surname,
		"email":             util.StringValue(s.Email),
		"phone":             util.StringValue(s.Phone),
		"date_of_birth":     util.DateValue(s.DateOfBirth),
		"gender":            util.StringValue(s.Gender),
		"institution":       util.StringValue(s.Institution),
		"student_number":    util.StringValue(s.StudentNumber),
		"program":           util.StringValue(s.Program),
		"year_of_study":     util.IntValue(s.YearOfStudy),
		"funding_reference": util.StringValue(s.FundingReference),
		"funded":            s.Funded,
		"funded_amount":     util.DecimalValue(s.FundedAmount),
		"funding_year":      util.IntValue(s.FundingYear),
		"address_id":        addressID,
		"import_run_id":     util.StringValue(&linkage.RunID),
		"created_at":        now,
	}
}
