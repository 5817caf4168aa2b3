package models

// Direction is the discrete reading of a composite bias score.
type Direction string

const (
	DirectionBullish Direction = "BULLISH"
	DirectionBearish Direction = "BEARISH"
	DirectionNeutral Direction = "NEUTRAL"
)

// Score thresholds for Direction.
const (
	BullishThreshold = 60.0
	BearishThreshold = 40.0
)

// DirectionForScore maps a 0-100 score onto a Direction.
func DirectionForScore(score float64) Direction {
	switch {
	case score >= BullishThreshold:
		return DirectionBullish
	case score <= BearishThreshold:
		return DirectionBearish
	default:
		return DirectionNeutral
	}
}

// Code encodes the direction as a small integer for compact storage.
func (d Direction) Code() int {
	switch d {
	case DirectionBullish:
		return 1
	case DirectionBearish:
		return -1
	default:
		return 0
	}
}

// DirectionFromCode is the inverse of Direction.Code.
func DirectionFromCode(code int) Direction {
	switch {
	case code > 0:
		return DirectionBullish
	case code < 0:
		return DirectionBearish
	default:
		return DirectionNeutral
	}
}

// BiasComponent is one scored input of the composite bias.
type BiasComponent struct {
	Name             string  `json:"name"`
	Score            float64 `json:"score"`
	Weight           float64 `json:"weight"`
	RawValue         string  `json:"raw_value"`
	BullContribution float64 `json:"bull_contribution"`
	BearContribution float64 `json:"bear_contribution"`
}

// BiasResult is the weighted composite of all present components.
type BiasResult struct {
	Score        float64         `json:"score"`
	Direction    Direction       `json:"direction"`
	BullPressure float64         `json:"bull_pressure"`
	BearPressure float64         `json:"bear_pressure"`
	Components   []BiasComponent `json:"components"`
}

// BullCount is the number of components scoring at or above the bullish threshold.
func (r BiasResult) BullCount() int {
	n := 0
	for _, c := range r.Components {
		if c.Score >= BullishThreshold {
			n++
		}
	}
	return n
}

// BearCount is the number of components scoring at or below the bearish threshold.
func (r BiasResult) BearCount() int {
	n := 0
	for _, c := range r.Components {
		if c.Score <= BearishThreshold {
			n++
		}
	}
	return n
}
