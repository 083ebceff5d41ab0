package fluve

import (
	"fluve/internal/config"
	"fluve/internal/etl"
	"fluve/internal/frame"
	"fluve/internal/pipeline"
)

// Lab sheet columns after the header renames below.
const (
	ColCollectDate = "collect_date"
	ColFluA        = "flu_a"
	ColH3          = "h3"
	ColPdmA        = "pdm_a"
	ColPdmH1       = "pdm_h1"
	ColFluB        = "flu_b"
	ColBVic        = "b_vic"
	ColBYam        = "b_yam"
	ColCtA         = "ct_a"
	ColCtB         = "ct_b"
	ColRNPCt       = "rnp_ct"
)

// LabResults are the categories of every PCR target column.
var LabResults = []string{"Positive", "Negative", "Inconclusive", "Not tested"}

// labHeaders maps the spreadsheet's printed headers to column names.
var labHeaders = map[string]any{
	"Study ID":        ColStudyID,
	"Collection Date": ColCollectDate,
	"Influenza A":     ColFluA,
	"A/H3":            ColH3,
	"A/pdm09":         ColPdmA,
	"A/H1pdm09":       ColPdmH1,
	"Influenza B":     ColFluB,
	"B/Victoria":      ColBVic,
	"B/Yamagata":      ColBYam,
	"Flu A Ct":        ColCtA,
	"Flu B Ct":        ColCtB,
	"RNP Ct":          ColRNPCt,
}

// LabLayout is the fixed column layout of the lab sheet.
var LabLayout = []pipeline.LabColumn{
	{Name: ColStudyID, Kind: frame.KindText},
	{Name: ColCollectDate, Kind: frame.KindTime},
	{Name: ColFluA, Kind: frame.KindCategory, Categories: LabResults},
	{Name: ColH3, Kind: frame.KindCategory, Categories: LabResults},
	{Name: ColPdmA, Kind: frame.KindCategory, Categories: LabResults},
	{Name: ColPdmH1, Kind: frame.KindCategory, Categories: LabResults},
	{Name: ColFluB, Kind: frame.KindCategory, Categories: LabResults},
	{Name: ColBVic, Kind: frame.KindCategory, Categories: LabResults},
	{Name: ColBYam, Kind: frame.KindCategory, Categories: LabResults},
	{Name: ColCtA, Kind: frame.KindFloat},
	{Name: ColCtB, Kind: frame.KindFloat},
	{Name: ColRNPCt, Kind: frame.KindFloat},
}

// Lab builds the lab-results spec from configuration. Configured transforms
// run after the header renames and the blank-id filter.
func Lab(cfg *config.Config) pipeline.LabSpec {
	transforms := []etl.TransformConfig{
		{Type: "rename", Config: map[string]any{"mapping": labHeaders}},
		{Type: "filter", Config: map[string]any{"field": ColStudyID, "op": "not_null"}},
	}
	transforms = append(transforms, cfg.LabResults.Transforms...)

	src := cfg.LabResults.SourceConfig(cfg.LabPath())
	if _, ok := src["types"]; !ok {
		// ids like "0042" must stay text
		src["types"] = map[string]any{"Study ID": "text"}
	}
	return pipeline.LabSpec{
		Source:     cfg.LabResults.Source,
		Config:     src,
		Transforms: transforms,
		Columns:    LabLayout,
	}
}
