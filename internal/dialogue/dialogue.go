// Package dialogue defines the shared vocabulary of dialogue acts and pacing tiers.
package dialogue

import "fmt"

// Act is the kind of utterance the companion produces next.
type Act string

const (
	ActComment         Act = "COMMENT"
	ActElaborate       Act = "ELABORATE"
	ActSummarize       Act = "SUMMARIZE"
	ActClarify         Act = "CLARIFY"
	ActAnchorAndResume Act = "ANCHOR_AND_RESUME"
	ActRepairGentle    Act = "REPAIR_GENTLE"
	ActNudge           Act = "NUDGE"
	ActProgressTopic   Act = "PROGRESS_TOPIC"
)

// Acts lists every act in declaration order.
var Acts = []Act{
	ActComment,
	ActElaborate,
	ActSummarize,
	ActClarify,
	ActAnchorAndResume,
	ActRepairGentle,
	ActNudge,
	ActProgressTopic,
}

// ParseAct resolves a configured act name.
func ParseAct(raw string) (Act, error) {
	for _, act := range Acts {
		if string(act) == raw {
			return act, nil
		}
	}
	return "", fmt.Errorf("unknown dialogue act %q", raw)
}

// PauseTier controls reply pacing and the next long-pause threshold.
type PauseTier string

const (
	TierFast   PauseTier = "FAST"
	TierMedium PauseTier = "MEDIUM"
	TierSlow   PauseTier = "SLOW"
)

// Tiers lists every pause tier from fastest to slowest.
var Tiers = []PauseTier{TierFast, TierMedium, TierSlow}

// SpeakingRate maps a pause tier to a synthesis speaking rate.
func (t PauseTier) SpeakingRate() float64 {
	switch t {
	case TierFast:
		return 1.05
	case TierSlow:
		return 0.94
	default:
		return 0.98
	}
}
