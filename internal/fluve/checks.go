package fluve

import (
	"fluve/internal/frame"
	"fluve/internal/validate"
)

// Checks returns the data-quality cases run after every build. IDs listed
// in except are known duplicates and are not reported.
func Checks(except []string) func(records, staffing *frame.Table) []validate.Case {
	return func(records, staffing *frame.Table) []validate.Case {
		return []validate.Case{
			validate.Duplicates("Duplicate study IDs", records, except, ColStudyID),
			validate.Query("Enrolled without collector", records, func(r frame.Row) bool {
				return r.BoolOr(IndEnrolled, false) && r.IsNull(ColCollector)
			}),
			validate.Query("Enrolled without swab date", records, func(r frame.Row) bool {
				return r.BoolOr(IndEnrolled, false) && r.IsNull(ColSwabDate)
			}),
			validate.Query("Lab result without enrollment", records, func(r frame.Row) bool {
				return !r.BoolOr(IndEnrolled, false) && !r.IsNull(ColFluA)
			}),
			validate.Query("Negative days since onset", records, func(r frame.Row) bool {
				return r.IntOr(ColOnsetDays, 0) < 0
			}),
			validate.Query("Eligibility undetermined", records, func(r frame.Row) bool {
				return r.BoolOr(IndAgree, false) && r.IsNull(IndEligible)
			}),
			validate.Duplicates("Duplicate staffing shifts", staffing, nil, ColShiftDate, ColStaffName),
			validate.Query("Staffing shift without clinic", staffing, func(r frame.Row) bool {
				return r.IsNull(ColClinic)
			}),
		}
	}
}
