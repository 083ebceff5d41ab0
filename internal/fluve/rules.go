package fluve

import (
	"math"

	"fluve/internal/frame"
	"fluve/internal/indicator"
)

// Indicator column names.
const (
	IndScreened = "screened"
	IndAgree    = "agree"
	IndEligible = "eligible"
	IndEnrolled = "enrolled"
	IndWithdrew = "withdrew"
	IndFluAPos  = "fluApos"
	IndH3Pos    = "h3pos"
	IndPdmAPos  = "pdmApos"
	IndPdmH1Pos = "pdmH1pos"
	IndFluBPos  = "fluBpos"
	IndBVicPos  = "bVicPos"
	IndBYamPos  = "bYamPos"
	IndAvgCt    = "avgCt"
	IndHighCt   = "highCt"
	IndGt30Ct   = "gt30Ct"
	IndSwabs    = "swabs"
	IndAgeGroup = "agegrp"
)

// MaxOnsetDays is the longest illness a participant may report.
const MaxOnsetDays = 7

// AgeEdges bound the reporting age groups.
var AgeEdges = []float64{-1, 4, 17, 49, 64, math.Inf(1)}

// SwabQuality labels the RNase P control Ct of a specimen, best first.
var SwabQuality = []string{"Good", "Fair", "Poor"}

// Eligible applies the enrollment criteria: not too young, a qualifying
// illness, onset within MaxOnsetDays, no prior vaccination this season and
// no antiviral medication. The branches fill missing answers differently,
// so a row with gaps can match neither and stays undetermined.
var Eligible = indicator.Indicator{
	Name: IndEligible,
	True: func(r frame.Row) bool {
		days := r.IntOr(ColOnsetDays, -1)
		return !r.BoolOr(ColTooYoung, true) &&
			r.BoolOr(ColILI, false) &&
			days >= 0 && days <= MaxOnsetDays &&
			r.TextOr(ColPriorVax, "") == "No" &&
			!r.BoolOr(ColFluMeds, true)
	},
	False: func(r frame.Row) bool {
		return r.BoolOr(ColTooYoung, false) ||
			!r.BoolOr(ColILI, true) ||
			r.IntOr(ColOnsetDays, 0) > MaxOnsetDays ||
			r.TextOr(ColPriorVax, "") == "Yes" ||
			r.BoolOr(ColFluMeds, false)
	},
}

// Rules returns every derived column in evaluation order.
func Rules() []indicator.Rule {
	return []indicator.Rule{
		indicator.Flag(IndScreened, func(r frame.Row) bool { return !r.IsNull(ColScreenDate) }),
		indicator.Indicator{
			Name:  IndAgree,
			True:  func(r frame.Row) bool { return r.TextOr(ColConsent, "") == "Yes" },
			False: func(r frame.Row) bool { c := r.TextOr(ColConsent, ""); return c == "No" || c == "Later" },
		},
		Eligible,
		indicator.Indicator{
			Name: IndEnrolled,
			True: func(r frame.Row) bool {
				return r.BoolOr(IndEligible, false) && r.BoolOr(ColEnroll, false)
			},
			False: func(r frame.Row) bool {
				return !r.BoolOr(IndEligible, true) || !r.BoolOr(ColEnroll, true)
			},
		},
		indicator.Flag(IndWithdrew, func(r frame.Row) bool { return r.BoolOr(ColWithdrawal, false) }),

		labResult(IndFluAPos, ColFluA),
		labResult(IndH3Pos, ColH3),
		labResult(IndPdmAPos, ColPdmA),
		labResult(IndPdmH1Pos, ColPdmH1),
		labResult(IndFluBPos, ColFluB),
		labResult(IndBVicPos, ColBVic),
		labResult(IndBYamPos, ColBYam),

		indicator.Derived{Name: IndAvgCt, Kind: frame.KindFloat, Compute: meanCt},
		ctAbove(IndHighCt, 35),
		ctAbove(IndGt30Ct, 30),
		indicator.Derived{
			Name:       IndSwabs,
			Kind:       frame.KindCategory,
			Categories: SwabQuality,
			Ordered:    true,
			Compute:    swabQuality,
		},
		indicator.AgeBins{Source: ColAge, Target: IndAgeGroup, Edges: AgeEdges, Labels: indicator.AgeLabels(AgeEdges)},
	}
}

// labResult is true for Positive, false for Negative and undetermined for
// anything else, including untested specimens.
func labResult(name, col string) indicator.Indicator {
	return indicator.Indicator{
		Name:  name,
		True:  func(r frame.Row) bool { return r.TextOr(col, "") == "Positive" },
		False: func(r frame.Row) bool { return r.TextOr(col, "") == "Negative" },
	}
}

// meanCt averages the influenza A and B cycle thresholds that are present.
func meanCt(r frame.Row) frame.Value {
	var sum float64
	n := 0
	for _, col := range []string{ColCtA, ColCtB} {
		if v := r.FloatOr(col, math.NaN()); !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return frame.Null(frame.KindFloat)
	}
	return frame.Float(sum / float64(n))
}

// ctAbove flags a mean Ct over limit. Rows without a Ct stay null since
// NaN compares false on both sides.
func ctAbove(name string, limit float64) indicator.Indicator {
	return indicator.Indicator{
		Name:  name,
		True:  func(r frame.Row) bool { return r.FloatOr(IndAvgCt, math.NaN()) > limit },
		False: func(r frame.Row) bool { return r.FloatOr(IndAvgCt, math.NaN()) <= limit },
	}
}

func swabQuality(r frame.Row) frame.Value {
	ct := r.FloatOr(ColRNPCt, math.NaN())
	switch {
	case math.IsNaN(ct):
		return frame.Null(frame.KindCategory)
	case ct <= 30:
		return frame.Category("Good")
	case ct <= 35:
		return frame.Category("Fair")
	default:
		return frame.Category("Poor")
	}
}
