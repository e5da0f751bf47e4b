package ai

import (
	"fmt"

	"aspire/internal/feature"
)

var instructions = map[feature.Type]string{
	feature.CoverLetter:        "Write a professional cover letter for the following role and candidate details.",
	feature.ResumeAnalysis:     "Review the following resume content and suggest concrete improvements.",
	feature.InterviewQuestions: "Generate ten technical interview questions with short answers for the following profile.",
	feature.IndustryInsights:   "Summarize current trends, in-demand skills and salary ranges for the following industry.",
	feature.CareerAdvice:       "Give practical career advice for the following situation.",
}

// Prompt prefixes the caller's input with the instruction for t.
func Prompt(t feature.Type, input string) string {
	instruction, ok := instructions[t]
	if !ok {
		return input
	}
	return fmt.Sprintf("%s\n\n%s", instruction, input)
}
