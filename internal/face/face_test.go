package face

import (
	"context"
	"errors"
	"testing"

	"presence/internal/faults"
	"presence/internal/model"
)

func enrolledActor() *model.Actor {
	return &model.Actor{
		ID:           "a1",
		Role:         model.RoleStudent,
		FaceTemplate: []float64{0.1, 0.2, 0.3},
		Active:       true,
	}
}

func TestVerifyNotEnrolled(t *testing.T) {
	m := &Mock{Similarity: 0.99}
	actor := enrolledActor()
	actor.FaceTemplate = nil

	_, err := m.Verify(context.Background(), actor, []byte("frame"))
	if !errors.Is(err, &faults.Error{Kind: faults.NotEnrolled}) {
		t.Fatalf("expected NotEnrolled, got %v", err)
	}
}

func TestVerifyEmptySample(t *testing.T) {
	m := &Mock{Similarity: 0.99}
	_, err := m.Verify(context.Background(), enrolledActor(), nil)
	if !errors.Is(err, &faults.Error{Kind: faults.NoSampleProvided}) {
		t.Fatalf("expected NoSampleProvided, got %v", err)
	}
}

func TestVerifyMultipleFacesRejectsRegardlessOfScore(t *testing.T) {
	m := &Mock{Similarity: 0.99, FacesDetected: 2}
	out, err := m.Verify(context.Background(), enrolledActor(), []byte("frame"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if out.Passed {
		t.Error("multi-face frame passed")
	}
	if out.Reason != faults.ReasonMultipleFaces {
		t.Errorf("reason = %q, want %q", out.Reason, faults.ReasonMultipleFaces)
	}
}

func TestVerifyThresholdBoundary(t *testing.T) {
	cases := []struct {
		name       string
		similarity float64
		passed     bool
		reason     string
	}{
		{"well above", 0.95, true, ""},
		{"just above", 0.8001, true, ""},
		{"exactly at threshold", 0.80, false, faults.ReasonLowConfidence},
		{"below", 0.5, false, faults.ReasonLowConfidence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &Mock{Similarity: tc.similarity, Threshold: DefaultThreshold}
			out, err := m.Verify(context.Background(), enrolledActor(), []byte("frame"))
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if out.Passed != tc.passed {
				t.Errorf("passed = %v, want %v", out.Passed, tc.passed)
			}
			if out.Reason != tc.reason {
				t.Errorf("reason = %q, want %q", out.Reason, tc.reason)
			}
			if out.Confidence != tc.similarity {
				t.Errorf("confidence = %v, want %v", out.Confidence, tc.similarity)
			}
		})
	}
}

func TestClientSkipMode(t *testing.T) {
	c := NewClient("http://localhost:8000", DefaultThreshold, true, 0)
	out, err := c.Verify(context.Background(), enrolledActor(), []byte("frame"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !out.Passed {
		t.Error("skip mode must pass a single-face frame")
	}

	tpl, err := c.Extract(context.Background(), []byte("frame"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(tpl) == 0 {
		t.Error("skip mode returned empty template")
	}
}
