package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"foley/internal/services"
	"foley/internal/timeline"
)

// ResponseSchema is sent with every generate request and enforced on the
// reply.
const ResponseSchema = `{
  "type": "object",
  "properties": {
    "objects": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "label": {"type": "string"},
          "interacts_with": {"type": "string"},
          "start_time": {"type": "number"},
          "end_time": {"type": "number"},
          "confidence": {"type": "number"}
        },
        "required": ["label", "start_time", "end_time"]
      }
    },
    "summary": {"type": "string"}
  },
  "required": ["objects", "summary"]
}`

type rawObject struct {
	Label         *string  `json:"label"`
	InteractsWith string   `json:"interacts_with"`
	StartTime     *float64 `json:"start_time"`
	EndTime       *float64 `json:"end_time"`
	Confidence    *float64 `json:"confidence"`
}

type rawAnalysis struct {
	Objects *[]json.RawMessage `json:"objects"`
	Summary *string            `json:"summary"`
}

// parseAnalysis validates raw against ResponseSchema and converts it. A
// missing confidence defaults to 1.
func parseAnalysis(raw json.RawMessage) (Analysis, error) {
	var top rawAnalysis
	if err := json.Unmarshal(raw, &top); err != nil {
		return Analysis{}, schemaError("response is not an object", err)
	}
	if top.Objects == nil {
		return Analysis{}, schemaError("missing required field objects", nil)
	}
	if top.Summary == nil {
		return Analysis{}, schemaError("missing required field summary", nil)
	}

	detections := make([]timeline.Detection, 0, len(*top.Objects))
	for i, item := range *top.Objects {
		var obj rawObject
		if err := json.Unmarshal(item, &obj); err != nil {
			return Analysis{}, schemaError(fmt.Sprintf("objects[%d] has wrong types", i), err)
		}
		switch {
		case obj.Label == nil:
			return Analysis{}, schemaError(fmt.Sprintf("objects[%d] missing label", i), nil)
		case obj.StartTime == nil:
			return Analysis{}, schemaError(fmt.Sprintf("objects[%d] missing start_time", i), nil)
		case obj.EndTime == nil:
			return Analysis{}, schemaError(fmt.Sprintf("objects[%d] missing end_time", i), nil)
		}
		confidence := 1.0
		if obj.Confidence != nil {
			confidence = *obj.Confidence
		}
		detections = append(detections, timeline.Detection{
			Label:         strings.TrimSpace(*obj.Label),
			InteractsWith: strings.TrimSpace(obj.InteractsWith),
			StartTime:     *obj.StartTime,
			EndTime:       *obj.EndTime,
			Confidence:    confidence,
		})
	}
	return Analysis{Summary: strings.TrimSpace(*top.Summary), Detections: detections}, nil
}

func schemaError(msg string, err error) error {
	return services.Wrap(services.ErrValidation, "analyze", "schema", msg, err)
}
