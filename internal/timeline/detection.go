package timeline

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"

	"foley/internal/services"
)

// Detection is one sighting reported by the analyzer.
type Detection struct {
	Label         string  `json:"label"`
	InteractsWith string  `json:"interacts_with,omitempty"`
	StartTime     float64 `json:"start_time"`
	EndTime       float64 `json:"end_time"`
	Confidence    float64 `json:"confidence"`
}

var labelFolder = cases.Fold()

// NormalizeLabel trims, case-folds and collapses internal whitespace so
// "Dog " and "dog" share an identity.
func NormalizeLabel(label string) string {
	return strings.Join(strings.Fields(labelFolder.String(label)), " ")
}

// Key returns the identity used to group the detection. Interactions are
// kept distinct from the bare label: "dog interacting with ball".
func (d Detection) Key() string {
	label := NormalizeLabel(d.Label)
	if other := NormalizeLabel(d.InteractsWith); other != "" {
		return label + " interacting with " + other
	}
	return label
}

// Validate reports a contract violation for malformed sightings.
func (d Detection) Validate() error {
	switch {
	case NormalizeLabel(d.Label) == "":
		return violation("empty label")
	case !finite(d.StartTime) || !finite(d.EndTime):
		return violation(fmt.Sprintf("%s: non-finite bounds", d.Label))
	case d.StartTime < 0:
		return violation(fmt.Sprintf("%s: negative start %.3f", d.Label, d.StartTime))
	case d.StartTime > d.EndTime:
		return violation(fmt.Sprintf("%s: start %.3f after end %.3f", d.Label, d.StartTime, d.EndTime))
	case math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1:
		return violation(fmt.Sprintf("%s: confidence %v outside [0,1]", d.Label, d.Confidence))
	}
	return nil
}

func violation(msg string) error {
	return services.Wrap(services.ErrContractViolation, "aggregate", "validate detection", msg, nil)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
