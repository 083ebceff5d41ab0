package fluve

import (
	"fmt"

	"fluve/internal/config"
	"fluve/internal/pipeline"
	"fluve/internal/recode"
)

// Study assembles the FluVE pipeline definition from configuration.
func Study(cfg *config.Config) (pipeline.Study, error) {
	first, last, err := cfg.Study.Window()
	if err != nil {
		return pipeline.Study{}, err
	}
	extra, err := recode.Build(cfg.Study.Recodes)
	if err != nil {
		return pipeline.Study{}, fmt.Errorf("study recodes: %w", err)
	}
	enrollment := EnrollmentSurvey(cfg.REDCap.EnrollmentToken)
	enrollment.Recodes = append(enrollment.Recodes, extra...)

	return pipeline.Study{
		Staffing:   StaffingSurvey(cfg.REDCap.StaffingToken),
		Enrollment: enrollment,
		Lab:        Lab(cfg),
		IDColumn:   ColStudyID,
		DateColumn: ColScreenDate,
		First:      first,
		Last:       last,
		Rules:      Rules(),
		Checks:     Checks(cfg.Study.DuplicateExceptions),
	}, nil
}
