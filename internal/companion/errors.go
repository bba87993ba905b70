package companion

import (
	"errors"
	"fmt"
)

// ErrCollaborator marks every labeled turn failure.
var ErrCollaborator = errors.New("collaborator failure")

// Stage names the collaborator that failed a turn.
type Stage string

const (
	StageListen     Stage = "listen"
	StageRecognize  Stage = "recognize"
	StageGenerate   Stage = "generate"
	StageGuard      Stage = "guard"
	StageSynthesize Stage = "synthesize"
	StageLog        Stage = "log"
)

// TurnError is returned when a collaborator fails. Memory is untouched when one is returned.
type TurnError struct {
	Stage Stage
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *TurnError) Unwrap() []error {
	return []error{ErrCollaborator, e.Err}
}

// StageOf returns the failing stage of err, or "".
func StageOf(err error) Stage {
	var te *TurnError
	if errors.As(err, &te) {
		return te.Stage
	}
	return ""
}
