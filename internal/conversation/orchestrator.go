// Package conversation drives a LegalMind conversation: every input channel
// (typed text, chips, clarification answers, transcribed audio) goes through
// Submit.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"LegalMind/internal/backend"
	"LegalMind/internal/clarify"
	"LegalMind/internal/composer"
	"LegalMind/internal/config"
	"LegalMind/internal/interpret"
	"LegalMind/internal/session"
	"LegalMind/internal/transcript"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

var (
	ErrEmptyInput  = errors.New("nothing to submit")
	ErrUnknownChip = errors.New("unknown chip")
)

// Transport performs backend calls. *backend.Client implements it.
type Transport interface {
	Process(ctx context.Context, req backend.Request) (*backend.ChatResponse, error)
	ProcessAudio(ctx context.Context, req backend.Request) (*backend.AudioResponse, error)
}

// Identity supplies the session token. *session.Identity implements it.
type Identity interface {
	GetOrCreate() string
}

// Users supplies the signed-in user. *session.UserStore implements it.
type Users interface {
	Current() (session.User, bool)
}

// LogoutFunc invalidates the signed-in session after a 401.
type LogoutFunc func(ctx context.Context)

// Messages are the fixed assistant texts used for failures.
type Messages struct {
	Connectivity string
	Audio        string
	Attachment   string
}

func DefaultMessages() Messages {
	return Messages{
		Connectivity: "⚠️ Connection error: LegalMind server is offline (MVP Mode).",
		Audio:        "⚠️ Audio service error. Try typing your message instead.",
		Attachment:   "⚠️ The attached file could not be read.",
	}
}

// Input is one user submission. At least one of Text or Attachment is needed.
type Input struct {
	Text       string
	Attachment composer.Attachment
}

type OutcomeKind string

const (
	OutcomeAnswered        OutcomeKind = "answered"
	OutcomeClarification   OutcomeKind = "clarification"
	OutcomeUnrecognized    OutcomeKind = "unrecognized"
	OutcomeNetworkError    OutcomeKind = "network_error"
	OutcomeUnauthorized    OutcomeKind = "unauthorized"
	OutcomeAttachmentError OutcomeKind = "attachment_error"
	OutcomeAudioError      OutcomeKind = "audio_error"
	OutcomeRejected        OutcomeKind = "rejected" // nothing was appended or sent
)

// Outcome reports which branch a submission took. Failures have already been
// turned into transcript turns or a logout by the time it is returned.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

type Options struct {
	Transport  Transport
	Identity   Identity
	Users      Users
	Composer   *composer.Composer
	Clarify    *clarify.Controller
	Transcript *transcript.Store
	Logout     LogoutFunc

	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter

	DefaultLanguage string
	Timeout         time.Duration
	// Serialize makes each submission finish before the next one starts.
	Serialize bool
	Messages  Messages
	Chips     []config.Chip
	// OnTurn is called after every append.
	OnTurn func(transcript.Turn)
}

// Orchestrator coordinates composer, transport, interpreter and clarification
// controller, and appends the results to the transcript.
type Orchestrator struct {
	transport  Transport
	identity   Identity
	users      Users
	composer   *composer.Composer
	clarify    *clarify.Controller
	transcript *transcript.Store
	logout     LogoutFunc

	logger      *slog.Logger
	tracer      trace.Tracer
	submissions metric.Int64Counter

	language string
	timeout  time.Duration
	queue    *semaphore.Weighted
	messages Messages
	chips    []config.Chip
	onTurn   func(transcript.Turn)
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if opts.Identity == nil {
		return nil, errors.New("identity cannot be nil")
	}

	o := &Orchestrator{
		transport:  opts.Transport,
		identity:   opts.Identity,
		users:      opts.Users,
		composer:   opts.Composer,
		clarify:    opts.Clarify,
		transcript: opts.Transcript,
		logout:     opts.Logout,
		logger:     opts.Logger,
		tracer:     opts.Tracer,
		language:   opts.DefaultLanguage,
		timeout:    opts.Timeout,
		messages:   opts.Messages,
		chips:      opts.Chips,
		onTurn:     opts.OnTurn,
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("legalmind/conversation")
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter("legalmind/conversation")
	}
	counter, err := meter.Int64Counter(
		"legalmind.submissions",
		metric.WithDescription("Submissions by outcome"),
	)
	if err != nil {
		o.logger.Warn("failed to create counter", "error", err)
	} else {
		o.submissions = counter
	}

	if o.composer == nil {
		o.composer = composer.New(config.DefaultMaxAttachmentBytes)
	}
	if o.clarify == nil {
		o.clarify = clarify.NewController(o.logger)
	}
	if o.transcript == nil {
		o.transcript = transcript.NewStore()
	}
	if o.logout == nil {
		o.logout = func(context.Context) {}
	}
	if o.language == "" {
		o.language = config.DefaultLanguage
	}
	if o.timeout <= 0 {
		o.timeout = config.DefaultRequestTimeout
	}
	if o.messages == (Messages{}) {
		o.messages = DefaultMessages()
	}
	if o.chips == nil {
		o.chips = config.DefaultChips()
	}
	if opts.Serialize {
		o.queue = semaphore.NewWeighted(1)
	}

	return o, nil
}

func (o *Orchestrator) Transcript() *transcript.Store { return o.transcript }

// Clarification returns the controller state for rendering.
func (o *Orchestrator) Clarification() clarify.State { return o.clarify.State() }

func (o *Orchestrator) Chips() []config.Chip { return o.chips }

// Submit runs one submission to completion.
func (o *Orchestrator) Submit(ctx context.Context, in Input) Outcome {
	if strings.TrimSpace(in.Text) == "" && in.Attachment == nil {
		return Outcome{Kind: OutcomeRejected, Err: ErrEmptyInput}
	}
	if in.Attachment != nil {
		if err := o.ValidateAttachment(in.Attachment); err != nil {
			return Outcome{Kind: OutcomeRejected, Err: err}
		}
	}

	if o.queue != nil {
		if err := o.queue.Acquire(ctx, 1); err != nil {
			return Outcome{Kind: OutcomeRejected, Err: errors.Wrap(err, "submission queue")}
		}
		defer o.queue.Release(1)
	}

	ctx, span := o.tracer.Start(ctx, "conversation.submit")
	defer span.End()

	out := o.submit(ctx, in)
	span.SetAttributes(attribute.String("outcome", string(out.Kind)))
	o.count(ctx, out.Kind)
	return out
}

func (o *Orchestrator) submit(ctx context.Context, in Input) Outcome {
	text := in.Text
	userTurn := transcript.NewTurn(transcript.RoleUser, text)
	if in.Attachment != nil {
		userTurn.AttachmentName = in.Attachment.Name()
		if strings.TrimSpace(text) == "" {
			text = "File: " + in.Attachment.Name()
			userTurn.Text = text
		}
	}
	o.append(userTurn)

	// Any new submission settles an outstanding question; the backend
	// resolves the answer from session context.
	if o.clarify.Awaiting() {
		o.clarify.Answer(text)
	}

	sess := o.session()
	req, err := o.composer.ComposeText(sess, text, in.Attachment)
	if err != nil {
		o.logger.Error("failed to compose request", "error", err)
		o.clarify.Reset()
		o.appendAssistant(o.messages.Attachment)
		return Outcome{Kind: OutcomeAttachmentError, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.transport.Process(callCtx, req)
	if err = backend.CheckAuth(err); err != nil {
		if backend.IsUnauthorized(err) {
			o.logger.Warn("backend rejected credentials, logging out", "session_id", sess.ID)
			o.logout(ctx)
			return Outcome{Kind: OutcomeUnauthorized, Err: err}
		}
		o.logger.Error("failed to send message", "error", err, "duration_ms", time.Since(start).Milliseconds())
		o.clarify.Reset()
		o.appendAssistant(o.messages.Connectivity)
		return Outcome{Kind: OutcomeNetworkError, Err: err}
	}

	cl := interpret.Interpret(resp)
	o.clarify.Observe(cl)
	o.logger.Info("submission completed",
		"classification", cl.Kind(),
		"session_id", sess.ID,
		"duration_ms", time.Since(start).Milliseconds())

	switch c := cl.(type) {
	case interpret.ClarificationNeeded:
		return Outcome{Kind: OutcomeClarification}
	case interpret.FinalAnswer:
		o.append(answerTurn(c.Payload))
		return Outcome{Kind: OutcomeAnswered}
	case interpret.Unrecognized:
		o.logger.Warn("unrecognized response", "reason", c.Reason)
		o.appendAssistant(o.messages.Connectivity)
		return Outcome{Kind: OutcomeUnrecognized}
	default:
		panic("unhandled classification")
	}
}

func answerTurn(p backend.AnswerPayload) transcript.Turn {
	turn := transcript.NewTurn(transcript.RoleAssistant, p.ResponseNative)
	turn.Source = p.Source
	turn.Confidence = p.Confidence
	turn.Consultants = p.Consultants
	turn.Actions = p.ActionItems
	return turn
}

// ValidateAttachment rejects attachments over the size limit. Submit runs it
// before anything is appended.
func (o *Orchestrator) ValidateAttachment(att composer.Attachment) error {
	if err := composer.CheckSize(att, o.composer.MaxAttachmentBytes); err != nil {
		o.logger.Warn("attachment rejected", "name", att.Name(), "error", err)
		return err
	}
	return nil
}

// AnswerClarification submits free text as the answer to the outstanding
// question.
func (o *Orchestrator) AnswerClarification(ctx context.Context, text string) Outcome {
	return o.Submit(ctx, Input{Text: o.clarify.Answer(text)})
}

// ChooseOption submits the i-th clarification option.
func (o *Orchestrator) ChooseOption(ctx context.Context, i int) Outcome {
	option, err := o.clarify.Choose(i)
	if err != nil {
		return Outcome{Kind: OutcomeRejected, Err: err}
	}
	return o.Submit(ctx, Input{Text: option})
}

// SubmitChip submits the prompt behind a quick-reply chip.
func (o *Orchestrator) SubmitChip(ctx context.Context, key string) Outcome {
	chip, ok := config.FindChip(o.chips, key)
	if !ok {
		return Outcome{Kind: OutcomeRejected, Err: errors.Wrap(ErrUnknownChip, key)}
	}
	return o.Submit(ctx, Input{Text: chip.Prompt})
}

// session resolves the per-request identity from the session token and the
// signed-in user.
func (o *Orchestrator) session() composer.Session {
	sess := composer.Session{ID: o.identity.GetOrCreate(), Language: o.language}
	if o.users == nil {
		return sess
	}
	u, ok := o.users.Current()
	if !ok {
		return sess
	}
	sess.AuthToken = u.Token
	switch {
	case u.Language == "":
	case config.ValidLanguage(u.Language):
		sess.Language = u.Language
	default:
		o.logger.Warn("unsupported user language, using default", "language", u.Language, "default", o.language)
	}
	return sess
}

func (o *Orchestrator) append(t transcript.Turn) {
	o.transcript.Append(t)
	if o.onTurn != nil {
		o.onTurn(t)
	}
}

func (o *Orchestrator) appendAssistant(text string) {
	o.append(transcript.NewTurn(transcript.RoleAssistant, text))
}

func (o *Orchestrator) count(ctx context.Context, kind OutcomeKind) {
	if o.submissions == nil {
		return
	}
	o.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(kind))))
}
