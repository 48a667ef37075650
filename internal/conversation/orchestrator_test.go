package conversation

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"LegalMind/internal/backend"
	"LegalMind/internal/composer"
	"LegalMind/internal/session"
	"LegalMind/internal/transcript"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type call struct {
	req  backend.Request
	body backend.ProcessRequest
}

// fakeTransport replays scripted responses in order.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []call
	replies []func(ctx context.Context) (*backend.ChatResponse, error)

	audioCalls int
	audio      func(ctx context.Context) (*backend.AudioResponse, error)
}

func (f *fakeTransport) Process(ctx context.Context, req backend.Request) (*backend.ChatResponse, error) {
	var body backend.ProcessRequest
	_ = json.Unmarshal(req.Body, &body)

	f.mu.Lock()
	f.calls = append(f.calls, call{req: req, body: body})
	var reply func(context.Context) (*backend.ChatResponse, error)
	if len(f.replies) > 0 {
		reply, f.replies = f.replies[0], f.replies[1:]
	}
	f.mu.Unlock()

	if reply == nil {
		return nil, errors.New("no scripted reply")
	}
	return reply(ctx)
}

func (f *fakeTransport) ProcessAudio(ctx context.Context, req backend.Request) (*backend.AudioResponse, error) {
	f.mu.Lock()
	f.audioCalls++
	f.mu.Unlock()
	if f.audio == nil {
		return nil, errors.New("no scripted audio reply")
	}
	return f.audio(ctx)
}

func (f *fakeTransport) script(replies ...func(ctx context.Context) (*backend.ChatResponse, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replies...)
}

func (f *fakeTransport) lastCall(t *testing.T) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func answer(text string) func(context.Context) (*backend.ChatResponse, error) {
	return func(context.Context) (*backend.ChatResponse, error) {
		conf := 0.8
		return &backend.ChatResponse{
			Result: &backend.Result{
				Status: backend.StatusOK,
				Payload: backend.AnswerPayload{
					ResponseNative: text,
					Source:         transcript.SourceRAG,
					Confidence:     &conf,
				},
			},
		}, nil
	}
}

func clarification(question string, options ...string) func(context.Context) (*backend.ChatResponse, error) {
	return func(context.Context) (*backend.ChatResponse, error) {
		return &backend.ChatResponse{
			Steps: backend.Steps{
				IsAmbiguous:   true,
				Clarification: &backend.Clarification{Question: question, Options: options},
			},
		}, nil
	}
}

func failWith(err error) func(context.Context) (*backend.ChatResponse, error) {
	return func(context.Context) (*backend.ChatResponse, error) { return nil, err }
}

type harness struct {
	orch      *Orchestrator
	transport *fakeTransport
	users     *session.UserStore
	logouts   atomic.Int32
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{transport: &fakeTransport{}}
	storage := session.NewMemoryStorage()
	h.users = session.NewUserStore(storage, nil)

	opts := Options{
		Transport: h.transport,
		Identity:  session.NewIdentity(storage, nil),
		Users:     h.users,
		Logout: func(context.Context) {
			h.logouts.Add(1)
			_ = h.users.Logout()
		},
		Timeout: time.Second,
	}
	for _, m := range mutate {
		m(&opts)
	}

	orch, err := New(opts)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func texts(turns []transcript.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = string(t.Role) + ": " + t.Text
	}
	return out
}

func TestNewRequiresTransportAndIdentity(t *testing.T) {
	_, err := New(Options{Identity: session.NewIdentity(session.NewMemoryStorage(), nil)})
	require.Error(t, err)
	_, err = New(Options{Transport: &fakeTransport{}})
	require.Error(t, err)
}

func TestSubmitFinalAnswer(t *testing.T) {
	h := newHarness(t)
	h.transport.script(answer("You need at least 13 weeks of contributions."))

	out := h.orch.Submit(context.Background(), Input{Text: "What are NASpI requirements?"})
	require.Equal(t, OutcomeAnswered, out.Kind)
	require.NoError(t, out.Err)

	turns := h.orch.Transcript().Turns()
	require.Equal(t, []string{
		"user: What are NASpI requirements?",
		"assistant: You need at least 13 weeks of contributions.",
	}, texts(turns))
	require.Equal(t, transcript.SourceRAG, turns[1].Source)
	require.InDelta(t, 0.8, *turns[1].Confidence, 1e-9)
	require.False(t, h.orch.Clarification().Awaiting)

	c := h.transport.lastCall(t)
	require.Equal(t, backend.PathProcess, c.req.Path)
	require.Equal(t, "What are NASpI requirements?", c.body.Text)
	require.Equal(t, "it", c.body.UserLanguage)
	require.True(t, strings.HasPrefix(c.body.SessionID, "session-"))
	require.Empty(t, c.req.Header.Get("Authorization"))
}

func TestSubmitClarificationThenChoose(t *testing.T) {
	h := newHarness(t)
	h.transport.script(
		clarification("Which region?", "Lazio", "Lombardia"),
		answer("In Lazio the office is in Rome."),
	)

	out := h.orch.Submit(context.Background(), Input{Text: "Where do I apply?"})
	require.Equal(t, OutcomeClarification, out.Kind)
	require.Equal(t, []string{"user: Where do I apply?"}, texts(h.orch.Transcript().Turns()))

	state := h.orch.Clarification()
	require.True(t, state.Awaiting)
	require.Equal(t, "Which region?", state.Question)
	require.Equal(t, []string{"Lazio", "Lombardia"}, state.Options)

	out = h.orch.ChooseOption(context.Background(), 0)
	require.Equal(t, OutcomeAnswered, out.Kind)
	require.Equal(t, []string{
		"user: Where do I apply?",
		"user: Lazio",
		"assistant: In Lazio the office is in Rome.",
	}, texts(h.orch.Transcript().Turns()))
	require.False(t, h.orch.Clarification().Awaiting)
	require.Equal(t, "Lazio", h.transport.lastCall(t).body.Text)

	first := h.transport.calls[0].body.SessionID
	require.Equal(t, first, h.transport.lastCall(t).body.SessionID)
}

func TestChooseOptionWithoutQuestion(t *testing.T) {
	h := newHarness(t)
	out := h.orch.ChooseOption(context.Background(), 0)
	require.Equal(t, OutcomeRejected, out.Kind)
	require.Zero(t, h.orch.Transcript().Len())
}

func TestAnySubmissionSettlesClarification(t *testing.T) {
	h := newHarness(t)
	h.transport.script(
		clarification("Which region?", "Lazio"),
		clarification("Which city?"),
	)

	h.orch.Submit(context.Background(), Input{Text: "Where?"})
	require.True(t, h.orch.Clarification().Awaiting)

	out := h.orch.AnswerClarification(context.Background(), "Somewhere north")
	require.Equal(t, OutcomeClarification, out.Kind)
	require.Equal(t, "Which city?", h.orch.Clarification().Question)
	require.Equal(t, "Somewhere north", h.transport.lastCall(t).body.Text)
}

func TestUnauthorizedLogsOutOnce(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.users.Login(session.User{Email: "a@b.it", Language: "en", Token: "tok"}))
	h.transport.script(failWith(&backend.StatusError{Code: 401, Body: "expired"}))

	out := h.orch.Submit(context.Background(), Input{Text: "hello"})
	require.Equal(t, OutcomeUnauthorized, out.Kind)
	require.True(t, errors.Is(out.Err, backend.ErrUnauthorized))
	require.EqualValues(t, 1, h.logouts.Load())

	require.Equal(t, []string{"user: hello"}, texts(h.orch.Transcript().Turns()))
	_, ok := h.users.Current()
	require.False(t, ok)

	c := h.transport.lastCall(t)
	require.Equal(t, "Bearer tok", c.req.Header.Get("Authorization"))
	require.Equal(t, "en", c.body.UserLanguage)
}

func TestTimeoutAppendsConnectivityError(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Timeout = 20 * time.Millisecond })
	h.transport.script(func(ctx context.Context) (*backend.ChatResponse, error) {
		<-ctx.Done()
		return nil, &backend.NetworkError{Op: "process", Err: ctx.Err()}
	})

	out := h.orch.Submit(context.Background(), Input{Text: "hello"})
	require.Equal(t, OutcomeNetworkError, out.Kind)

	var netErr *backend.NetworkError
	require.True(t, errors.As(out.Err, &netErr))
	require.True(t, netErr.Timeout())

	require.Equal(t, []string{
		"user: hello",
		"assistant: " + DefaultMessages().Connectivity,
	}, texts(h.orch.Transcript().Turns()))
	require.Zero(t, h.logouts.Load())
}

func TestErrorResetsClarification(t *testing.T) {
	h := newHarness(t)
	h.transport.script(
		clarification("Which region?", "Lazio"),
		failWith(&backend.StatusError{Code: 500}),
	)

	h.orch.Submit(context.Background(), Input{Text: "Where?"})
	require.True(t, h.orch.Clarification().Awaiting)

	out := h.orch.Submit(context.Background(), Input{Text: "Lazio"})
	require.Equal(t, OutcomeNetworkError, out.Kind)
	require.False(t, h.orch.Clarification().Awaiting)
}

func TestUnrecognizedResponse(t *testing.T) {
	h := newHarness(t)
	h.transport.script(func(context.Context) (*backend.ChatResponse, error) {
		return &backend.ChatResponse{Result: &backend.Result{Status: backend.StatusFailed}}, nil
	})

	out := h.orch.Submit(context.Background(), Input{Text: "hello"})
	require.Equal(t, OutcomeUnrecognized, out.Kind)
	last, ok := h.orch.Transcript().Last()
	require.True(t, ok)
	require.Equal(t, transcript.RoleAssistant, last.Role)
	require.Equal(t, DefaultMessages().Connectivity, last.Text)
}

func TestAttachmentOnlyUsesPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.transport.script(answer("Received."))

	att := composer.BytesAttachment{Filename: "contract.pdf", Data: []byte("%PDF-1.4")}
	out := h.orch.Submit(context.Background(), Input{Attachment: att})
	require.Equal(t, OutcomeAnswered, out.Kind)

	turns := h.orch.Transcript().Turns()
	require.Equal(t, "File: contract.pdf", turns[0].Text)
	require.Equal(t, "contract.pdf", turns[0].AttachmentName)

	c := h.transport.lastCall(t)
	require.Equal(t, "File: contract.pdf", c.body.Text)
	require.Equal(t, "contract.pdf", c.body.FileName)
	mediaType, data, err := composer.DecodeDataURL(c.body.FileData)
	require.NoError(t, err)
	require.Equal(t, "application/pdf", mediaType)
	require.Equal(t, []byte("%PDF-1.4"), data)
}

type unreadable struct{}

func (unreadable) Name() string { return "broken.pdf" }
func (unreadable) Open() (io.ReadCloser, error) { return nil, errors.New("permission denied") }

func TestUnreadableAttachmentAbortsBeforeNetwork(t *testing.T) {
	h := newHarness(t)

	out := h.orch.Submit(context.Background(), Input{Text: "see file", Attachment: unreadable{}})
	require.Equal(t, OutcomeAttachmentError, out.Kind)

	var readErr *composer.AttachmentReadError
	require.True(t, errors.As(out.Err, &readErr))
	require.Equal(t, "broken.pdf", readErr.Name)

	require.Equal(t, []string{
		"user: see file",
		"assistant: " + DefaultMessages().Attachment,
	}, texts(h.orch.Transcript().Turns()))
	require.Empty(t, h.transport.calls)
}

func TestOversizedAttachmentRejected(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Composer = composer.New(4) })

	att := composer.BytesAttachment{Filename: "big.txt", Data: []byte("too large")}
	require.True(t, errors.Is(h.orch.ValidateAttachment(att), composer.ErrAttachmentTooLarge))
	require.NoError(t, h.orch.ValidateAttachment(composer.BytesAttachment{Filename: "ok.txt", Data: []byte("ok")}))

	out := h.orch.Submit(context.Background(), Input{Attachment: att})
	require.Equal(t, OutcomeRejected, out.Kind)
	require.True(t, errors.Is(out.Err, composer.ErrAttachmentTooLarge))
	require.Zero(t, h.orch.Transcript().Len())
}

func TestEmptyInputRejected(t *testing.T) {
	h := newHarness(t)
	out := h.orch.Submit(context.Background(), Input{Text: "   "})
	require.Equal(t, OutcomeRejected, out.Kind)
	require.True(t, errors.Is(out.Err, ErrEmptyInput))
	require.Zero(t, h.orch.Transcript().Len())
}

func TestSubmitChip(t *testing.T) {
	h := newHarness(t)
	h.transport.script(answer("NASpI is an unemployment benefit."))

	out := h.orch.SubmitChip(context.Background(), "patronato_query")
	require.Equal(t, OutcomeAnswered, out.Kind)
	require.Equal(t, "I have a question about the NASpI procedure.", h.transport.lastCall(t).body.Text)

	out = h.orch.SubmitChip(context.Background(), "nope")
	require.Equal(t, OutcomeRejected, out.Kind)
	require.True(t, errors.Is(out.Err, ErrUnknownChip))
}

func TestUnsupportedUserLanguageFallsBack(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.users.Login(session.User{Email: "a@b.it", Language: "klingon"}))
	h.transport.script(answer("ok"))

	h.orch.Submit(context.Background(), Input{Text: "hi"})
	require.Equal(t, "it", h.transport.lastCall(t).body.UserLanguage)
}

func TestOnTurnSeesEveryAppend(t *testing.T) {
	var seen []transcript.Turn
	h := newHarness(t, func(o *Options) {
		o.OnTurn = func(t transcript.Turn) { seen = append(seen, t) }
	})
	h.transport.script(answer("ok"))

	h.orch.Submit(context.Background(), Input{Text: "hi"})
	require.Len(t, seen, 2)
	require.Equal(t, h.orch.Transcript().Turns()[1].ID, seen[1].ID)
}

func TestSerializedSubmissionsKeepPairs(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Serialize = true })

	release := make(chan struct{})
	h.transport.script(
		func(context.Context) (*backend.ChatResponse, error) {
			<-release
			return answer("first")(context.Background())
		},
		answer("second"),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.orch.Submit(context.Background(), Input{Text: "one"})
	}()
	require.Eventually(t, func() bool { return h.orch.Transcript().Len() == 1 }, time.Second, 5*time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.orch.Submit(context.Background(), Input{Text: "two"})
	}()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, h.orch.Transcript().Len())

	close(release)
	wg.Wait()
	require.Equal(t, []string{
		"user: one",
		"assistant: first",
		"user: two",
		"assistant: second",
	}, texts(h.orch.Transcript().Turns()))
}

func TestConcurrentSubmissionsNeverLoseTurns(t *testing.T) {
	h := newHarness(t)
	const n = 20
	for i := 0; i < n; i++ {
		h.transport.script(answer("ok"))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.orch.Submit(context.Background(), Input{Text: "q"})
		}()
	}
	wg.Wait()
	require.Equal(t, 2*n, h.orch.Transcript().Len())
}
