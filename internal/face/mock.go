package face

import (
	"context"

	"presence/internal/model"
)

// Mock is a deterministic Verifier for tests. It applies the same precheck
// and decision rules as the real client against scripted results.
type Mock struct {
	Similarity    float64
	FacesDetected int
	Threshold     float64
	Err           error // returned verbatim when set
}

// Verify returns the scripted outcome.
func (m *Mock) Verify(_ context.Context, actor *model.Actor, sample []byte) (Outcome, error) {
	if err := precheck(actor, sample); err != nil {
		return Outcome{}, err
	}
	if m.Err != nil {
		return Outcome{}, m.Err
	}
	faces := m.FacesDetected
	if faces == 0 {
		faces = 1
	}
	return decide(m.Similarity, faces, m.Threshold), nil
}
