// Package nonfluency labels how fluently the user delivered a turn.
package nonfluency

import (
	"github.com/rbright/olivia/internal/features"
	"github.com/rbright/olivia/internal/repair"
)

type Label string

const (
	Fluent      Label = "FLUENT"
	Hesitant    Label = "HESITANT"
	Abandoned   Label = "ABANDONED"
	SelfRepair  Label = "SELF_REPAIR"
	Interrupted Label = "INTERRUPTED"
)

// Labels lists every label; memory tallies start with one zero entry per label.
var Labels = []Label{Fluent, Hesitant, Abandoned, SelfRepair, Interrupted}

const (
	abandonedMaxWords  = 2
	hesitantMaxWords   = 3
	selfRepairMinScore = 0.25
)

// Classify applies the label rules in priority order.
func Classify(f features.Features, action repair.Action, repeatRequest bool, wasInterrupt bool) Label {
	switch {
	case wasInterrupt:
		return Interrupted
	case action == repair.ActionNoSpeech:
		return Hesitant
	case repeatRequest:
		return Interrupted
	case f.WordCount <= abandonedMaxWords && f.HasTrailingConjunction:
		return Abandoned
	case f.HasRepairMarker || f.RepetitionScore >= selfRepairMinScore:
		return SelfRepair
	case f.WordCount <= hesitantMaxWords && !f.EndsWithPunctuation:
		return Hesitant
	default:
		return Fluent
	}
}

// IsNonfluent reports whether the label calls for slower pacing.
func (l Label) IsNonfluent() bool {
	switch l {
	case Hesitant, Abandoned, SelfRepair, Interrupted:
		return true
	default:
		return false
	}
}
