package numguess

import "fmt"

// AnomalyReason is the reason of a trial that did not end with a match.
type AnomalyReason string

const (
	// AnomalyNoMatch is the model denying every guess of its own declared range.
	AnomalyNoMatch AnomalyReason = "no_match_after_full_sequence"
	// AnomalyMalformed is a reply that could not be classified as correct or incorrect.
	AnomalyMalformed AnomalyReason = "malformed_response"
	// AnomalyConversationFailure is an infrastructure failure while talking to the model.
	AnomalyConversationFailure AnomalyReason = "conversation_failure"
)

// AnomalyReasons lists every reason in report order.
func AnomalyReasons() []AnomalyReason {
	return []AnomalyReason{AnomalyNoMatch, AnomalyMalformed, AnomalyConversationFailure}
}

// TrialOutcome is either a match at a 1-based guess index or an anomaly.
type TrialOutcome struct {
	GuessIndex int
	Anomaly    AnomalyReason
}

// Matched returns the outcome of a trial whose first Correct verdict came at guessIndex.
func Matched(guessIndex int) TrialOutcome {
	return TrialOutcome{GuessIndex: guessIndex}
}

// Anomalous returns the outcome of a trial that ended without a match.
func Anomalous(reason AnomalyReason) TrialOutcome {
	return TrialOutcome{Anomaly: reason}
}

// IsMatched reports whether the trial ended with a Correct verdict.
func (o TrialOutcome) IsMatched() bool {
	return o.Anomaly == "" && o.GuessIndex > 0
}

func (o TrialOutcome) String() string {
	if o.IsMatched() {
		return fmt.Sprintf("matched(%d)", o.GuessIndex)
	}
	return fmt.Sprintf("anomalous(%s)", o.Anomaly)
}

// Classify interprets the verdicts of one trial. Rules in priority order:
//  1. the first Correct gives Matched with its 1-based position
//  2. any Malformed gives AnomalyMalformed
//  3. sequenceLength Incorrect verdicts give AnomalyNoMatch
//
// A list of only Incorrect verdicts shorter than the sequence means the conversation ended before the sequence did,
// which is reported as AnomalyConversationFailure.
func Classify(verdicts []Verdict, sequenceLength int) TrialOutcome {
	for i, v := range verdicts {
		if v == VerdictCorrect {
			return Matched(i + 1)
		}
	}

	for _, v := range verdicts {
		if v == VerdictMalformed {
			return Anomalous(AnomalyMalformed)
		}
	}

	if sequenceLength > 0 && len(verdicts) == sequenceLength {
		return Anomalous(AnomalyNoMatch)
	}

	return Anomalous(AnomalyConversationFailure)
}
