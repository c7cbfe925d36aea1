// internal/game/errors.go
package game

import "fmt"

// ConfigError reports an unstartable match configuration, such as an
// out-of-range player count or non-positive deck parameters.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Msg)
}

// Rejection reason codes carried on ValidationError and action_rejected events.
const (
	ReasonNotYourTurn     = "not_your_turn"
	ReasonWrongPhase      = "wrong_phase"
	ReasonUnknownAction   = "unknown_action"
	ReasonUnknownCard     = "unknown_card"
	ReasonUnknownUnit     = "unknown_unit"
	ReasonColorConflict   = "color_conflict"
	ReasonTooFewCards     = "too_few_cards"
	ReasonUnitAlready     = "unit_already_played"
	ReasonNoAttacksLeft   = "no_attacks_left"
	ReasonEmptyPiles      = "empty_piles"
	ReasonNotDefender     = "not_defender"
	ReasonNotChooser      = "not_chooser"
	ReasonInvalidChoice   = "invalid_choice"
	ReasonBlockedImmunity = "blocked_by_immunity"
	ReasonAlreadyUsed     = "ability_already_used"
	ReasonConditionUnmet  = "condition_not_met"
	ReasonPendingChoice   = "pending_choice"
	ReasonInvalidPayload  = "invalid_payload"
)

// ValidationError reports an illegal player intent. The match state is
// untouched; Code is surfaced to the actor on the action_rejected event.
type ValidationError struct {
	Code string
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid action (%s): %s", e.Code, e.Msg)
}

func rejectf(code, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// StateConsistencyError reports an internal invariant breach, such as a card
// present in two zones. It indicates a bug, not bad input.
type StateConsistencyError struct {
	Msg string
}

func (e *StateConsistencyError) Error() string {
	return fmt.Sprintf("state consistency violation: %s", e.Msg)
}
