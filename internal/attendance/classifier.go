package attendance

import (
	"fmt"
	"time"

	"presence/internal/faults"
	"presence/internal/model"
)

// Decision is the classifier's verdict on one check-in attempt.
type Decision struct {
	Persist bool
	Status  model.Status
	Reject  *faults.Error
}

// Classify turns the two verification outcomes plus scheduling context into
// a status. First matching rule wins:
//
//  1. now outside the schedule window (when one is supplied) rejects with
//     OutsideWindow and no record is created.
//  2. identity failure rejects with IdentityFailed, carrying the specific
//     reason; no record is created because we do not know who this is.
//  3. location failure is recorded as absent with locationValid=false. We
//     know who it is, and "they were not there" is evidence worth keeping.
//  4. both passed within the late threshold of the window start: present.
//     The threshold boundary is inclusive.
//  5. both passed, threshold exceeded: late.
//
// Pure function of its inputs; no clock reads, no randomness.
func Classify(now time.Time, window *model.ScheduleWindow, identity, location model.VerificationOutcome) Decision {
	if window != nil {
		if now.Before(window.StartTime) || now.After(window.EndTime) {
			return Decision{Reject: faults.New(faults.OutsideWindow,
				fmt.Sprintf("check-in outside window %s - %s",
					window.StartTime.Format(time.RFC3339), window.EndTime.Format(time.RFC3339)))}
		}
	}

	if !identity.Passed {
		msg := "face not recognized, try again in better lighting"
		if identity.Reason == faults.ReasonMultipleFaces {
			msg = "multiple faces in frame, make sure only one person is visible"
		}
		return Decision{Reject: faults.WithDetail(faults.IdentityFailed, msg, identity.Reason)}
	}

	if !location.Passed {
		return Decision{Persist: true, Status: model.StatusAbsent}
	}

	if window != nil && now.Sub(window.StartTime) > window.LateThreshold {
		return Decision{Persist: true, Status: model.StatusLate}
	}
	return Decision{Persist: true, Status: model.StatusPresent}
}
