// Package interpret classifies backend responses.
//
// Every response maps to exactly one Classification. A clarification request
// wins over a final answer when a response carries both.
package interpret

import "LegalMind/internal/backend"

type Kind string

const (
	KindClarification Kind = "clarification_needed"
	KindFinalAnswer   Kind = "final_answer"
	KindUnrecognized  Kind = "unrecognized"
)

// Classification is one of ClarificationNeeded, FinalAnswer or Unrecognized.
type Classification interface {
	Kind() Kind
	classification()
}

// ClarificationNeeded means the backend wants more information before it
// answers.
type ClarificationNeeded struct {
	Question string
	Options  []string
}

func (ClarificationNeeded) Kind() Kind { return KindClarification }
func (ClarificationNeeded) classification() {}

// FinalAnswer carries a displayable answer.
type FinalAnswer struct {
	Payload backend.AnswerPayload
}

func (FinalAnswer) Kind() Kind { return KindFinalAnswer }
func (FinalAnswer) classification() {}

// Unrecognized covers missing fields, error status and empty answers.
type Unrecognized struct {
	Reason string
}

func (Unrecognized) Kind() Kind { return KindUnrecognized }
func (Unrecognized) classification() {}

// Interpret classifies resp.
func Interpret(resp *backend.ChatResponse) Classification {
	if resp == nil {
		return Unrecognized{Reason: "empty response"}
	}

	if resp.Steps.IsAmbiguous && resp.Steps.Clarification != nil {
		c := resp.Steps.Clarification
		return ClarificationNeeded{Question: c.Question, Options: c.Options}
	}

	switch {
	case resp.Result == nil:
		return Unrecognized{Reason: "missing result"}
	case resp.Result.Status != backend.StatusOK:
		return Unrecognized{Reason: "status " + resp.Result.Status}
	case resp.Result.Payload.ResponseNative == "":
		return Unrecognized{Reason: "empty answer"}
	}
	return FinalAnswer{Payload: resp.Result.Payload}
}
