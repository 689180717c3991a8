package model

// Verdict is the classifier's judgment on a candidate URL.
type Verdict string

// Classification verdicts.
const (
	VerdictAccepted  Verdict = "accepted"
	VerdictRejected  Verdict = "rejected"
	VerdictUncertain Verdict = "uncertain"
)

// Mode indicates how a candidate page was evaluated.
type Mode string

// Evaluation modes.
const (
	ModeText   Mode = "text"
	ModeVision Mode = "vision"
)

// Outcome is the result of classifying one candidate URL.
type Outcome struct {
	Verdict    Verdict `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Accepted reports whether the candidate passed classification.
func (o Outcome) Accepted() bool { return o.Verdict == VerdictAccepted }

// Rejected reports whether the candidate was confidently ruled out.
func (o Outcome) Rejected() bool { return o.Verdict == VerdictRejected }

// Uncertain reports whether the classifier could not decide.
func (o Outcome) Uncertain() bool { return o.Verdict == VerdictUncertain }
