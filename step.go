package flowscribe

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// StepType enumerates the kinds of actions a recorded step can describe.
type StepType int

const (
	StepTypeUnknown    StepType = 0
	StepTypeClick      StepType = 1
	StepTypeNavigation StepType = 2
	StepTypeInput      StepType = 3
	StepTypeVisibility StepType = 4
	StepTypeManual     StepType = 5
	stepTypeSentinel   StepType = 6
)

func (st StepType) String() string {
	switch st {
	case StepTypeClick:
		return "click"
	case StepTypeNavigation:
		return "navigation"
	case StepTypeInput:
		return "input"
	case StepTypeVisibility:
		return "visibility"
	case StepTypeManual:
		return "manual"
	default:
		return fmt.Sprintf("StepType(%d)", st)
	}
}

func (st StepType) Valid() bool {
	return st > StepTypeUnknown && st < stepTypeSentinel
}

// ParseStepType maps the lowercase serialised form back to a StepType. Unknown
// values map to StepTypeUnknown which fails validation downstream.
func ParseStepType(s string) StepType {
	switch s {
	case "click":
		return StepTypeClick
	case "navigation":
		return StepTypeNavigation
	case "input":
		return StepTypeInput
	case "visibility":
		return StepTypeVisibility
	case "manual":
		return StepTypeManual
	default:
		return StepTypeUnknown
	}
}

// MarshalJSON serialises the step type as its lowercase name so persisted flows
// remain readable and stable if the enum values are ever reordered.
func (st StepType) MarshalJSON() ([]byte, error) {
	if !st.Valid() {
		return nil, ErrInvalidStepType
	}
	return []byte(`"` + st.String() + `"`), nil
}

func (st *StepType) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed := ParseStepType(s)
	if parsed == StepTypeUnknown {
		return ErrInvalidStepType
	}
	*st = parsed
	return nil
}

// MaxExplanationLength bounds the human readable description attached to a
// step, measured in runes so multi-byte text gets the same room as ASCII.
const MaxExplanationLength = 200

// TruncateExplanation bounds s at MaxExplanationLength runes, marking the cut
// with an ellipsis. The cut never splits a rune.
func TruncateExplanation(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxExplanationLength {
		return s
	}
	return string(runes[:MaxExplanationLength-3]) + "..."
}

// Step is one atomic recorded action or annotation inside a Flow.
type Step struct {
	ID          string   `json:"id"`
	Type        StepType `json:"type"`
	URL         string   `json:"url"`
	Explanation string   `json:"explanation"`
	// Order is assigned by the session Manager when the step is accepted, never
	// by the capturing agent. A freshly captured step carries the zero value.
	Order int      `json:"order"`
	Meta  StepMeta `json:"meta,omitempty"`
}

// StepMeta is the optional bag of capture-time context attached to a step.
type StepMeta struct {
	ElementText string    `json:"elementText,omitempty"`
	NodeType    string    `json:"nodeType,omitempty"`
	Selector    string    `json:"selector,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`

	// ScreenshotThumb is always inline when a capture succeeded.
	ScreenshotThumb []byte `json:"screenshotThumb,omitempty"`
	// ScreenshotFull is inline only while the encoded image is below the blob
	// routing threshold. Once relocated it is emptied and the flag below is set.
	ScreenshotFull []byte `json:"screenshotFull,omitempty"`
	// ScreenshotInBlobStore marks that the full resolution image lives in the
	// external blob store under BlobKey(flowID, stepID).
	ScreenshotInBlobStore bool `json:"screenshotInBlobStore,omitempty"`
}

// Validate checks the structural invariants of a single step. Order density is
// a Flow level invariant and is checked by Flow.Validate.
func (s *Step) Validate() error {
	if s.ID == "" {
		return wrapInvalidStep("step id is empty")
	}
	if !s.Type.Valid() {
		return wrapInvalidStep("step type is invalid")
	}
	if err := validateStepURL(s.URL); err != nil {
		return err
	}
	if l := utf8.RuneCountInString(strings.TrimSpace(s.Explanation)); l < 1 || l > MaxExplanationLength {
		return wrapInvalidStep("step explanation length out of bounds")
	}
	if s.Order < 0 {
		return wrapInvalidStep("step order is negative")
	}
	return nil
}

func validateStepURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return wrapInvalidStep("step url does not parse")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return wrapInvalidStep("step url scheme must be http or https")
	}
	if u.Host == "" {
		return wrapInvalidStep("step url host is empty")
	}
	return nil
}

// BlobKey is the blob store key for a step's relocated full resolution
// screenshot. Flow deletion removes every blob with the flow id prefix.
func BlobKey(flowID, stepID string) string {
	return flowID + "_" + stepID
}
