// Package confidence grades OCR/LLM-extracted invoice fields.
//
// Every field of the fixed field universe gets a score from 0 to 100 and a
// level. Cross-field arithmetic checks then raise or lower the confidence of
// the three amount fields. Malformed values never produce an error; they
// degrade to low scores with a reason.
package confidence

import (
	"sort"

	"github.com/shopspring/decimal"

	dec "github.com/rechnungswerk/einvoice/internal/decimal"
	"github.com/rechnungswerk/einvoice/internal/model"
)

// Level is the confidence tier of a field
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Score adjustment thresholds
const (
	consistencyBoost   = 5
	consistencyPenalty = 15
	highThreshold      = 90
	mediumThreshold    = 70
)

// FieldConfidence is the grade of one field
type FieldConfidence struct {
	Score  int    `json:"score"`
	Level  Level  `json:"level"`
	Reason string `json:"reason"`
}

// ConsistencyCheck is the outcome of one executed cross-field check
type ConsistencyCheck struct {
	Check  string `json:"check"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Report is the result of scoring one extracted record
type Report struct {
	FieldConfidences  map[string]FieldConfidence `json:"field_confidences"`
	OverallConfidence float64                    `json:"overall_confidence"`
	ConsistencyChecks []ConsistencyCheck         `json:"consistency_checks"`
	Completeness      float64                    `json:"completeness"`
}

// NeedsReview reports whether the record should be checked by a human:
// overall confidence below threshold or any failed consistency check.
func (r *Report) NeedsReview(threshold float64) bool {
	if r.OverallConfidence < threshold {
		return true
	}
	for _, c := range r.ConsistencyChecks {
		if !c.Passed {
			return true
		}
	}
	return false
}

// LowFields returns the sorted names of fields graded low
func (r *Report) LowFields() []string {
	var out []string
	for name, fc := range r.FieldConfidences {
		if fc.Level == LevelLow {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Scorer computes confidence reports. It holds no state and is safe for
// concurrent use.
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score grades fields. A nil map is scored like an empty one.
func (s *Scorer) Score(fields model.Fields) *Report {
	confidences := make(map[string]FieldConfidence, len(fieldTable))
	for _, spec := range fieldTable {
		confidences[spec.name] = scoreField(spec, fields.Get(spec.name))
	}

	checks := checkConsistency(fields)
	adjustAmounts(confidences, checks)

	return &Report{
		FieldConfidences:  confidences,
		OverallConfidence: overall(fields, confidences),
		ConsistencyChecks: checks,
		Completeness:      completeness(fields),
	}
}

// adjustAmounts boosts the amount fields when every check passed and
// penalizes them otherwise. No executed checks counts as not passed.
func adjustAmounts(confidences map[string]FieldConfidence, checks []ConsistencyCheck) {
	allPassed := len(checks) > 0
	for _, c := range checks {
		if !c.Passed {
			allPassed = false
			break
		}
	}

	for _, name := range amountFields {
		fc := confidences[name]
		if allPassed {
			fc.Score = min(100, fc.Score+consistencyBoost)
			if fc.Score >= highThreshold {
				fc.Level = LevelHigh
			}
			fc.Reason += " (konsistent)"
		} else {
			fc.Score = max(0, fc.Score-consistencyPenalty)
			switch {
			case fc.Score < mediumThreshold:
				fc.Level = LevelLow
			case fc.Score < highThreshold:
				fc.Level = LevelMedium
			}
			if len(checks) == 0 {
				fc.Reason += " (nicht pruefbar)"
			} else {
				fc.Reason += " (inkonsistent)"
			}
		}
		confidences[name] = fc
	}
}

// overall weights core fields double and counts optional fields only when filled
func overall(fields model.Fields, confidences map[string]FieldConfidence) float64 {
	total, weight := 0, 0
	for _, spec := range fieldTable {
		w := 1
		if spec.core {
			w = 2
		} else if !filled(fields.Get(spec.name)) {
			continue
		}
		total += confidences[spec.name].Score * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return round2(decimal.NewFromInt(int64(total)).Div(decimal.NewFromInt(int64(weight))))
}

// filled is IsEmptyValue extended to zero-length lists
func filled(v any) bool {
	if items, ok := asList(v); ok {
		return len(items) > 0
	}
	return !model.IsEmptyValue(v)
}

func completeness(fields model.Fields) float64 {
	filled := 0
	for _, spec := range fieldTable {
		if spec.core && !model.IsEmptyValue(fields.Get(spec.name)) {
			filled++
		}
	}
	return round2(decimal.NewFromInt(int64(filled * 100)).Div(decimal.NewFromInt(coreFieldCount)))
}

func round2(d decimal.Decimal) float64 {
	return dec.Round2(d).InexactFloat64()
}
