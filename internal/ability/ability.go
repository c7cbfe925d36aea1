// Package ability turns free-text card rule descriptions into structured,
// typed effect trees. Parsing happens once per card at match start; the
// resulting Ability is treated as read-only afterwards.
package ability

// Activation describes how an ability comes into play.
type Activation string

const (
	ActivationPassive   Activation = "passive"
	ActivationTriggered Activation = "triggered"
	ActivationActivated Activation = "activated"
)

// Type is the parsed category of an ability. The parser assigns exactly one.
type Type string

const (
	TypePlayTrigger      Type = "play_trigger"
	TypeBattleTrigger    Type = "battle_trigger"
	TypeDefeatTrigger    Type = "defeat_trigger"
	TypeConditionalPower Type = "conditional_power_modifier"
	TypeSituational      Type = "situational_modifier"
	TypeImmunity         Type = "immunity"
	TypeDefendOthers     Type = "defend_others"
	TypeColorMixing      Type = "color_mixing"
	TypeConditionalBoost Type = "conditional_manual_power"
	TypeManualBoost      Type = "manual_power_boost"
	TypeDraw             Type = "card_draw"
	TypeSteal            Type = "theft"
	TypeDestroy          Type = "destruction"
	TypeDiscard          Type = "forced_discard"
	TypeRevive           Type = "revival"
	TypeCopy             Type = "ability_copy"
	TypeGeneric          Type = "generic_activation"
)

// EffectType tags the variant carried by an Effect.
type EffectType string

const (
	EffectModifyAttribute EffectType = "modify_attribute"
	EffectDestroy         EffectType = "destroy"
	EffectSteal           EffectType = "steal"
	EffectDrawCard        EffectType = "draw_card"
	EffectDiscard         EffectType = "discard"
	EffectRevive          EffectType = "revive"
	EffectCopyAbility     EffectType = "copy_ability"
	EffectImmunity        EffectType = "immunity"
	EffectDefendOthers    EffectType = "defend_others"
	EffectColorMixing     EffectType = "color_mixing"
	EffectGeneric         EffectType = "generic"
)

// Attribute is a card attribute an effect can modify.
type Attribute string

const (
	AttrPower Attribute = "power"
	AttrValue Attribute = "value"
)

// Operation is the arithmetic applied by a modify_attribute effect.
type Operation string

const (
	OpDouble   Operation = "double"
	OpIncrease Operation = "increase"
	OpDecrease Operation = "decrease"
	OpSet      Operation = "set"
)

// Timing restricts when a triggered effect fires.
type Timing string

const (
	TimingNone         Timing = ""
	TimingAttacking    Timing = "when_attacking"
	TimingDefending    Timing = "when_defending"
	TimingBattling     Timing = "when_battling"
	TimingPlayed       Timing = "when_played"
	TimingOnDefeat     Timing = "on_defeat"
)

// Duration distinguishes temporary from permanent modifications.
type Duration string

const (
	DurationPermanent Duration = ""
	DurationThisTurn  Duration = "this_turn"
)

// TargetKind names what an effect resolves against.
type TargetKind string

const (
	TargetThisCard   TargetKind = "this_card"
	TargetTargetCard TargetKind = "target_card"
	TargetTargetUnit TargetKind = "target_unit"
	TargetRandomCard TargetKind = "random_card"
)

// Source names the zone an effect pulls cards from.
type Source string

const (
	SourceNone      Source = ""
	SourceHand      Source = "hand"
	SourceUnit      Source = "unit"
	SourceGraveyard Source = "graveyard"
)

// ConditionType tags a parsed condition.
type ConditionType string

const (
	CondTargetColor  ConditionType = "target_color"
	CondRequiresCard ConditionType = "requires_card"
)

// Condition gates an effect on some property of the battle or board.
type Condition struct {
	Type  ConditionType `json:"type"`
	Value string        `json:"value"`
}

// Effect is one concrete state change an ability can cause. It is a tagged
// variant: Type decides which fields are meaningful.
type Effect struct {
	Type      EffectType `json:"type"`
	Target    TargetKind `json:"target,omitempty"`
	Attribute Attribute  `json:"attribute,omitempty"`
	Operation Operation  `json:"operation,omitempty"`
	Amount    int        `json:"amount,omitempty"`
	Timing    Timing     `json:"timing,omitempty"`
	Duration  Duration   `json:"duration,omitempty"`
	Source    Source     `json:"source,omitempty"`
	Random    bool       `json:"random,omitempty"`
	Permanent bool       `json:"permanent,omitempty"`

	// ColorBlocked is set for immunity effects.
	ColorBlocked string `json:"colorBlocked,omitempty"`

	// OffColorAllowance and Stacks are set for color_mixing effects.
	OffColorAllowance int  `json:"offColorAllowance,omitempty"`
	Stacks            bool `json:"stacks,omitempty"`

	// Description carries the raw text for generic effects.
	Description string `json:"description,omitempty"`
}

// Ability is the parsed, structured form of a card's rule text.
type Ability struct {
	OriginalText string      `json:"originalText"`
	Type         Type        `json:"type"`
	Activation   Activation  `json:"activation"`
	Conditions   []Condition `json:"conditions,omitempty"`
	Effects      []Effect    `json:"effects,omitempty"`
}

// RequiresInput reports whether resolving the effect needs a follow-up card
// selection from a player before it can complete.
func (e Effect) RequiresInput() bool {
	switch e.Type {
	case EffectDiscard, EffectRevive:
		return true
	}
	return false
}

// ImmuneColor returns the color this ability blocks effects from, or "" if
// it grants no immunity.
func (a *Ability) ImmuneColor() string {
	if a == nil {
		return ""
	}
	for _, e := range a.Effects {
		if e.Type == EffectImmunity && e.ColorBlocked != "" {
			return e.ColorBlocked
		}
	}
	return ""
}

// OffColorAllowance sums the extra off-color slots this ability grants a
// unit ("Allows N cards of a different color").
func (a *Ability) OffColorAllowance() int {
	if a == nil {
		return 0
	}
	total := 0
	for _, e := range a.Effects {
		if e.Type == EffectColorMixing {
			total += e.OffColorAllowance
		}
	}
	return total
}
