// Package clarify tracks whether the backend is waiting for the user to answer
// a clarifying question.
//
// The controller is Idle or AwaitingAnswer. A ClarificationNeeded
// classification moves it to AwaitingAnswer; the user's answer, any other
// classification, or a failed submission moves it back to Idle. Concurrent
// transitions resolve last-writer-wins.
package clarify

import (
	"log/slog"
	"sync"

	"LegalMind/internal/interpret"

	"github.com/pkg/errors"
)

var ErrNoSuchOption = errors.New("no such clarification option")

// State is a snapshot of the controller.
type State struct {
	Awaiting bool
	Question string
	Options  []string
}

func (s State) String() string {
	if !s.Awaiting {
		return "Idle"
	}
	return "AwaitingAnswer"
}

type Controller struct {
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

func NewController(logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{logger: logger}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Options = append([]string(nil), c.state.Options...)
	return s
}

// Awaiting reports whether a clarifying question is outstanding.
func (c *Controller) Awaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Awaiting
}

// Observe applies the classification of a finished submission.
func (c *Controller) Observe(cl interpret.Classification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if q, ok := cl.(interpret.ClarificationNeeded); ok {
		if c.state.Awaiting {
			c.logger.Debug("replacing outstanding clarification", "previous", c.state.Question)
		}
		c.state = State{
			Awaiting: true,
			Question: q.Question,
			Options:  append([]string(nil), q.Options...),
		}
		c.logger.Info("awaiting clarification", "question", q.Question, "options", len(q.Options))
		return
	}
	c.resetLocked(string(cl.Kind()))
}

// Answer consumes the outstanding question, if any, and returns the text to
// submit. The text is forwarded as-is; the backend resolves it with the
// session context.
func (c *Controller) Answer(text string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked("answered")
	return text
}

// Choose answers with the option at index i.
func (c *Controller) Choose(i int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Awaiting || i < 0 || i >= len(c.state.Options) {
		return "", errors.Wrapf(ErrNoSuchOption, "index %d", i)
	}
	option := c.state.Options[i]
	c.resetLocked("option chosen")
	return option, nil
}

// Reset returns the controller to Idle.
//
// Failed submissions call this too, which drops an unanswered question. That
// matches the behaviour users have seen so far; whether it should instead keep
// the question is an open product decision.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked("reset")
}

func (c *Controller) resetLocked(reason string) {
	if c.state.Awaiting {
		c.logger.Info("clarification cleared", "reason", reason)
	}
	c.state = State{}
}
