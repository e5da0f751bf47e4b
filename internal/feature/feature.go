// Package feature names the product capabilities that consume tokens and holds the
// built-in price list used when the catalog cannot answer.
package feature

import (
	"errors"
	"sort"
)

type Type string

const (
	CoverLetter        Type = "cover_letter"
	ResumeAnalysis     Type = "resume_analysis"
	InterviewQuestions Type = "interview_questions"
	IndustryInsights   Type = "industry_insights"
	CareerAdvice       Type = "career_advice"

	// Ledger-only tags. They mark credits and are never priced.
	Purchase    Type = "purchase"
	SignupGrant Type = "signup_grant"
)

// DefaultCharge is billed when a price or a usage estimate cannot be determined.
const DefaultCharge int64 = 100

var ErrUnknownFeature = errors.New("unknown feature type")

type Price struct {
	Feature     Type
	TokenCost   int64
	Description string
}

var defaults = map[Type]Price{
	CoverLetter:        {Feature: CoverLetter, TokenCost: 100, Description: "Generate Cover Letter"},
	ResumeAnalysis:     {Feature: ResumeAnalysis, TokenCost: 50, Description: "Resume Analysis"},
	InterviewQuestions: {Feature: InterviewQuestions, TokenCost: 75, Description: "Interview Questions"},
	IndustryInsights:   {Feature: IndustryInsights, TokenCost: 60, Description: "Industry Insights"},
	CareerAdvice:       {Feature: CareerAdvice, TokenCost: 40, Description: "Career Advice"},
}

// Parse accepts only priced features.
func Parse(raw string) (Type, error) {
	t := Type(raw)
	if _, ok := defaults[t]; !ok {
		return "", ErrUnknownFeature
	}
	return t, nil
}

func (t Type) Priced() bool {
	_, ok := defaults[t]
	return ok
}

func (t Type) String() string {
	return string(t)
}

// Default returns the built-in price for t.
func Default(t Type) (Price, bool) {
	price, ok := defaults[t]
	return price, ok
}

// Defaults returns the built-in price list ordered by feature name.
func Defaults() []Price {
	prices := make([]Price, 0, len(defaults))
	for _, price := range defaults {
		prices = append(prices, price)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].Feature < prices[j].Feature })
	return prices
}
