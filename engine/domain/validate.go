package domain

import "strings"

// MinQuestionLen is the minimum number of characters in a usable question.
const MinQuestionLen = 3

// ValidateQuestion checks a user question at the API boundary.
func ValidateQuestion(q string) error {
	q = strings.TrimSpace(q)
	if q == "" {
		return ErrEmptyQuestion
	}
	if len(q) < MinQuestionLen {
		return ErrQuestionTooShort
	}
	return nil
}
