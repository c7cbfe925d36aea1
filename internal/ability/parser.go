package ability

import (
	"regexp"
	"strings"
)

var (
	numberRe      = regexp.MustCompile(`\d+`)
	battleColorRe = regexp.MustCompile(`(?:vs\.?|against|when battling)\s+(\w+)`)
	immunityRe    = regexp.MustCompile(`immune to (?:abilities from )?(\w+)`)
	requiresRe    = regexp.MustCompile(`if you have (\w+)`)
)

// Parse classifies rule text into exactly one ability category and extracts
// its effects. Parse never fails: unrecognized text falls through to a
// generic activation carrying the raw description, and a recognized category
// missing its expected keywords yields the category with zero effects.
func Parse(text string) *Ability {
	a := &Ability{OriginalText: text}
	t := strings.ToLower(strings.TrimSpace(text))

	switch {
	case strings.Contains(t, "when this card is played") || strings.Contains(t, "when played"):
		a.Type = TypePlayTrigger
		a.Activation = ActivationTriggered
		parsePlayTrigger(t, a)
	case strings.Contains(t, "when this card is in a battle"):
		a.Type = TypeBattleTrigger
		a.Activation = ActivationTriggered
		parseBattleTrigger(t, a)
	case strings.Contains(t, "every time this card defeats"):
		a.Type = TypeDefeatTrigger
		a.Activation = ActivationTriggered
		parseDefeatTrigger(t, a)
	case strings.Contains(t, "double") && (strings.Contains(t, "vs") || strings.Contains(t, "against") || strings.Contains(t, "when battling")):
		a.Type = TypeConditionalPower
		a.Activation = ActivationTriggered
		parseConditionalModifier(t, a)
	case strings.Contains(t, "increase") && strings.Contains(t, "power") &&
		(strings.Contains(t, "when attacking") || strings.Contains(t, "when defending")):
		a.Type = TypeSituational
		a.Activation = ActivationTriggered
		parseSituationalModifier(t, a)
	case strings.Contains(t, "immune to"):
		a.Type = TypeImmunity
		a.Activation = ActivationPassive
		parseImmunity(t, a)
	case strings.Contains(t, "can defend other"):
		a.Type = TypeDefendOthers
		a.Activation = ActivationPassive
		a.Effects = append(a.Effects, Effect{Type: EffectDefendOthers, Target: TargetTargetUnit})
	case strings.Contains(t, "allows") && strings.Contains(t, "of a different color"):
		a.Type = TypeColorMixing
		a.Activation = ActivationPassive
		parseColorMixing(t, a)
	case strings.Contains(t, "if you have") && strings.Contains(t, "double power"):
		a.Type = TypeConditionalBoost
		a.Activation = ActivationActivated
		parseConditionalBoost(t, a)
	case strings.Contains(t, "increase the power of") &&
		(strings.Contains(t, "from this party") || strings.Contains(t, "from this unit")):
		a.Type = TypeManualBoost
		a.Activation = ActivationActivated
		parseManualBoost(t, a)
	case strings.Contains(t, "copy"):
		a.Type = TypeCopy
		a.Activation = ActivationActivated
		a.Effects = append(a.Effects, Effect{
			Type:     EffectCopyAbility,
			Target:   TargetTargetCard,
			Duration: DurationThisTurn,
		})
	case (strings.Contains(t, "increase") || strings.Contains(t, "decrease")) && strings.Contains(t, "this turn"):
		a.Type = TypeManualBoost
		a.Activation = ActivationActivated
		parseTemporaryModifier(t, a)
	case strings.Contains(t, "draw"):
		a.Type = TypeDraw
		a.Activation = ActivationActivated
		a.Effects = append(a.Effects, Effect{Type: EffectDrawCard, Amount: firstInt(t, 1)})
	case strings.Contains(t, "steal"):
		a.Type = TypeSteal
		a.Activation = ActivationActivated
		parseTheft(t, a)
	case strings.Contains(t, "destroy"):
		a.Type = TypeDestroy
		a.Activation = ActivationActivated
		parseDestruction(t, a)
	case strings.Contains(t, "discard"):
		a.Type = TypeDiscard
		a.Activation = ActivationActivated
		a.Effects = append(a.Effects, Effect{
			Type:   EffectDiscard,
			Target: TargetTargetCard,
			Amount: firstInt(t, 1),
			Source: SourceHand,
		})
	case strings.Contains(t, "revive") || (strings.Contains(t, "graveyard") && strings.Contains(t, "hand")):
		a.Type = TypeRevive
		a.Activation = ActivationActivated
		a.Effects = append(a.Effects, Effect{
			Type:   EffectRevive,
			Target: TargetTargetCard,
			Amount: firstInt(t, 1),
			Source: SourceGraveyard,
		})
	default:
		a.Type = TypeGeneric
		a.Activation = ActivationActivated
		a.Effects = append(a.Effects, Effect{Type: EffectGeneric, Description: t})
	}

	return a
}

// firstInt returns the first decimal number in the text, or def if none.
func firstInt(t string, def int) int {
	m := numberRe.FindString(t)
	if m == "" {
		return def
	}
	n := 0
	for _, r := range m {
		n = n*10 + int(r-'0')
	}
	return n
}

func parsePlayTrigger(t string, a *Ability) {
	attr := AttrValue
	if strings.Contains(t, "power") && !strings.Contains(t, "value") {
		attr = AttrPower
	}
	a.Effects = append(a.Effects, Effect{
		Type:      EffectModifyAttribute,
		Target:    TargetThisCard,
		Attribute: attr,
		Operation: OpIncrease,
		Amount:    firstInt(t, 1),
		Timing:    TimingPlayed,
		Permanent: true,
	})
}

func parseBattleTrigger(t string, a *Ability) {
	switch {
	case strings.Contains(t, "steal"):
		parseTheft(t, a)
	case strings.Contains(t, "discard"):
		a.Effects = append(a.Effects, Effect{
			Type:   EffectDiscard,
			Target: TargetTargetCard,
			Amount: firstInt(t, 1),
			Source: SourceHand,
		})
	case strings.Contains(t, "double"):
		parseConditionalModifier(t, a)
	}
}

func parseDefeatTrigger(t string, a *Ability) {
	if strings.Contains(t, "gains") && strings.Contains(t, "value") {
		a.Effects = append(a.Effects, Effect{
			Type:      EffectModifyAttribute,
			Target:    TargetThisCard,
			Attribute: AttrValue,
			Operation: OpIncrease,
			Amount:    1,
			Timing:    TimingOnDefeat,
			Permanent: true,
		})
	}
}

func parseConditionalModifier(t string, a *Ability) {
	m := battleColorRe.FindStringSubmatch(t)
	if m == nil {
		return
	}
	a.Conditions = append(a.Conditions, Condition{Type: CondTargetColor, Value: m[1]})
	a.Effects = append(a.Effects, Effect{
		Type:      EffectModifyAttribute,
		Target:    TargetThisCard,
		Attribute: AttrPower,
		Operation: OpDouble,
		Timing:    TimingBattling,
	})
}

func parseSituationalModifier(t string, a *Ability) {
	timing := TimingDefending
	if strings.Contains(t, "when attacking") {
		timing = TimingAttacking
	}
	a.Effects = append(a.Effects, Effect{
		Type:      EffectModifyAttribute,
		Target:    TargetThisCard,
		Attribute: AttrPower,
		Operation: OpIncrease,
		Amount:    firstInt(t, 1),
		Timing:    timing,
	})
}

func parseTemporaryModifier(t string, a *Ability) {
	op := OpIncrease
	if strings.Contains(t, "decrease") {
		op = OpDecrease
	}
	attr := AttrPower
	if strings.Contains(t, "value") {
		attr = AttrValue
	}
	a.Effects = append(a.Effects, Effect{
		Type:      EffectModifyAttribute,
		Target:    TargetTargetCard,
		Attribute: attr,
		Operation: op,
		Amount:    firstInt(t, 1),
		Duration:  DurationThisTurn,
	})
}

func parseImmunity(t string, a *Ability) {
	m := immunityRe.FindStringSubmatch(t)
	if m == nil {
		return
	}
	a.Effects = append(a.Effects, Effect{Type: EffectImmunity, ColorBlocked: m[1]})
}

func parseColorMixing(t string, a *Ability) {
	a.Effects = append(a.Effects, Effect{
		Type:              EffectColorMixing,
		OffColorAllowance: firstInt(t, 1),
		Stacks:            strings.Contains(t, "can stack"),
	})
}

func parseConditionalBoost(t string, a *Ability) {
	if m := requiresRe.FindStringSubmatch(t); m != nil {
		a.Conditions = append(a.Conditions, Condition{Type: CondRequiresCard, Value: m[1]})
	}
	timing := TimingNone
	if strings.Contains(t, "defending") {
		timing = TimingDefending
	} else if strings.Contains(t, "attacking") {
		timing = TimingAttacking
	}
	a.Effects = append(a.Effects, Effect{
		Type:      EffectModifyAttribute,
		Target:    TargetTargetCard,
		Attribute: AttrPower,
		Operation: OpDouble,
		Timing:    timing,
		Duration:  DurationThisTurn,
	})
}

func parseManualBoost(t string, a *Ability) {
	timing := TimingNone
	if strings.Contains(t, "defending") {
		timing = TimingDefending
	} else if strings.Contains(t, "attacking") {
		timing = TimingAttacking
	}
	a.Effects = append(a.Effects, Effect{
		Type:      EffectModifyAttribute,
		Target:    TargetTargetCard,
		Attribute: AttrPower,
		Operation: OpIncrease,
		Amount:    firstInt(t, 1),
		Timing:    timing,
		Duration:  DurationThisTurn,
	})
}

func parseTheft(t string, a *Ability) {
	src := SourceHand
	random := true
	if strings.Contains(t, "from unit") || strings.Contains(t, "opponent's unit") {
		src = SourceUnit
		random = false
	}
	target := TargetRandomCard
	if !random {
		target = TargetTargetCard
	}
	a.Effects = append(a.Effects, Effect{
		Type:   EffectSteal,
		Target: target,
		Amount: firstInt(t, 1),
		Source: src,
		Random: random,
	})
}

func parseDestruction(t string, a *Ability) {
	random := strings.Contains(t, "random")
	target := TargetTargetUnit
	src := SourceNone
	if strings.Contains(t, "card") {
		if random {
			target = TargetRandomCard
		} else {
			target = TargetTargetCard
		}
		if strings.Contains(t, "from hand") {
			src = SourceHand
		} else if strings.Contains(t, "from unit") || strings.Contains(t, "in unit") {
			src = SourceUnit
		}
	}
	a.Effects = append(a.Effects, Effect{
		Type:   EffectDestroy,
		Target: target,
		Amount: firstInt(t, 1),
		Source: src,
		Random: random,
	})
}
