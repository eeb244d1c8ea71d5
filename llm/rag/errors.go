package rag

import "fmt"

// AnswerGenerationError is returned when the chat model call fails.
// Nothing is retried; the caller decides whether to resend.
type AnswerGenerationError struct {
	Mode Side
	Err  error
}

func (e *AnswerGenerationError) Error() string {
	return fmt.Sprintf("%s answer generation failed: %v", e.Mode, e.Err)
}

func (e *AnswerGenerationError) Unwrap() error {
	return e.Err
}
