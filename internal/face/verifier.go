package face

import (
	"context"

	"presence/internal/faults"
	"presence/internal/model"
)

// DefaultThreshold is the acceptance threshold for a match decision. A
// decision passes only when confidence strictly exceeds it; a score at the
// threshold is an explicit rejection, not an error.
const DefaultThreshold = 0.80

// Outcome is the result of one identity check.
type Outcome struct {
	Passed     bool    `json:"passed"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Verifier decides whether a captured sample matches the actor's enrolled
// template. Real matching lives behind this interface; the pipeline never
// knows which implementation it is talking to.
type Verifier interface {
	Verify(ctx context.Context, actor *model.Actor, sample []byte) (Outcome, error)
}

// precheck enforces the two hard failures shared by every implementation.
// Enrollment is checked first: without a template there is nothing to
// compare against, so no sample ever reaches the matcher.
func precheck(actor *model.Actor, sample []byte) error {
	if !actor.FaceEnrolled() {
		return faults.New(faults.NotEnrolled, "no face template enrolled for this actor")
	}
	if len(sample) == 0 {
		return faults.New(faults.NoSampleProvided, "captured sample is empty or unreadable")
	}
	return nil
}

// decide applies the shared decision rules to a comparison result. More than
// one detected face rejects outright regardless of score: the operator must
// be able to tell a crowded frame apart from a genuine mismatch.
func decide(similarity float64, facesDetected int, threshold float64) Outcome {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if facesDetected > 1 {
		return Outcome{Passed: false, Confidence: similarity, Reason: faults.ReasonMultipleFaces}
	}
	if similarity > threshold {
		return Outcome{Passed: true, Confidence: similarity}
	}
	return Outcome{Passed: false, Confidence: similarity, Reason: faults.ReasonLowConfidence}
}
