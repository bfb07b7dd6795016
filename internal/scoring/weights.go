package scoring

import (
	"fmt"
	"math"
)

// Categories holds one score per assessment category.
type Categories struct {
	Emotion         float64
	Resolution      float64
	Communication   float64
	Professionalism float64
	Empathy         float64
	Efficiency      float64
}

// Weights are the category multipliers of the total score. They must be
// non-negative and sum to 1.
type Weights Categories

// DefaultWeights is the production weighting.
var DefaultWeights = Weights{
	Emotion:         0.25,
	Resolution:      0.25,
	Communication:   0.20,
	Professionalism: 0.15,
	Empathy:         0.10,
	Efficiency:      0.05,
}

const weightTolerance = 1e-9

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Emotion + w.Resolution + w.Communication + w.Professionalism + w.Empathy + w.Efficiency
}

// Validate checks that the weights are usable.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"emotion":         w.Emotion,
		"resolution":      w.Resolution,
		"communication":   w.Communication,
		"professionalism": w.Professionalism,
		"empathy":         w.Empathy,
		"efficiency":      w.Efficiency,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
	}
	if math.Abs(w.Sum()-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1, got %v", w.Sum())
	}
	return nil
}

// Total returns the weighted sum of c.
func (w Weights) Total(c Categories) float64 {
	return w.Emotion*c.Emotion +
		w.Resolution*c.Resolution +
		w.Communication*c.Communication +
		w.Professionalism*c.Professionalism +
		w.Empathy*c.Empathy +
		w.Efficiency*c.Efficiency
}
