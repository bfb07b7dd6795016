package scoring

import "github.com/kiranshivaraju/callscore/pkg/models"

type feedbackRule struct {
	score              func(Categories) float64
	excellent, good    string
	weak, belowAverage string
}

// Rules are evaluated in category order; each category adds at most one
// strength and at most one improvement.
var feedbackRules = []feedbackRule{
	{
		score:        func(c Categories) float64 { return c.Emotion },
		excellent:    "Excellent customer emotional management",
		good:         "Good emotional awareness",
		weak:         "Improve emotional connection with customers",
		belowAverage: "Enhance customer emotional support",
	},
	{
		score:        func(c Categories) float64 { return c.Resolution },
		excellent:    "Outstanding problem-solving skills",
		good:         "Effective issue resolution",
		weak:         "Strengthen problem resolution techniques",
		belowAverage: "Improve issue resolution effectiveness",
	},
	{
		score:        func(c Categories) float64 { return c.Communication },
		excellent:    "Exceptional communication clarity",
		good:         "Clear and helpful communication",
		weak:         "Enhance communication clarity and helpfulness",
		belowAverage: "Improve communication effectiveness",
	},
	{
		score:        func(c Categories) float64 { return c.Professionalism },
		excellent:    "Exemplary professional conduct",
		good:         "Professional and courteous service",
		weak:         "Maintain higher professional standards",
		belowAverage: "Enhance professional conduct",
	},
	{
		score:        func(c Categories) float64 { return c.Empathy },
		excellent:    "High level of empathy and understanding",
		good:         "Good customer empathy",
		weak:         "Develop better empathy and understanding",
		belowAverage: "Show more empathy toward customers",
	},
	{
		score:        func(c Categories) float64 { return c.Efficiency },
		excellent:    "Excellent call efficiency",
		good:         "Good time management",
		weak:         "Improve call efficiency and time management",
		belowAverage: "Enhance call handling efficiency",
	},
}

// Feedback returns strengths (score above 85 or 75) and improvements (score
// below 60 or 70) for every category.
func Feedback(c Categories) (strengths, improvements []string) {
	strengths, improvements = []string{}, []string{}
	for _, r := range feedbackRules {
		s := r.score(c)
		switch {
		case s > 85:
			strengths = append(strengths, r.excellent)
		case s > 75:
			strengths = append(strengths, r.good)
		}
		switch {
		case s < 60:
			improvements = append(improvements, r.weak)
		case s < 70:
			improvements = append(improvements, r.belowAverage)
		}
	}
	return strengths, improvements
}

// GradeFor maps a total score to its grade. Bounds are inclusive.
func GradeFor(total float64) models.Grade {
	switch {
	case total >= 90:
		return models.GradeExcellent
	case total >= 80:
		return models.GradeGood
	case total >= 70:
		return models.GradeSatisfactory
	case total >= 60:
		return models.GradeNeedsImprovement
	default:
		return models.GradePoor
	}
}
