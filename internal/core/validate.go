package core

import "github.com/JonMunkholm/batchgate/internal/validator"

// ValidationReport is the outcome of checking content without storing it.
type ValidationReport struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
	Kind     string `json:"kind,omitempty"`
	Row      int    `json:"row,omitempty"`
	Code     string `json:"code,omitempty"`
}

// ValidateContent checks content against the batch rules. It has no side
// effects and is safe to call from any goroutine.
func ValidateContent(content []byte) ValidationReport {
	rej := validator.Check(string(content))
	if rej == nil {
		return ValidationReport{Accepted: true, Message: validator.ValidMessage}
	}
	return ValidationReport{
		Message: rej.Message,
		Kind:    rej.Kind.String(),
		Row:     rej.Row,
		Code:    CodeFor(rej),
	}
}
