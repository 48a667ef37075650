package chatbot

import (
	"context"
	"strconv"
	"strings"

	"LegalMind/internal/composer"
	"LegalMind/internal/config"
	"LegalMind/internal/conversation"
	"LegalMind/internal/session"

	"github.com/pkg/errors"
)

// handleCommand handles slash commands. It reports whether the loop should
// stop.
func (cb *ChatBot) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}
	rest := strings.TrimSpace(strings.TrimPrefix(cmd, parts[0]))

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/chips":
		cb.println("Suggested questions:")
		for _, chip := range cb.orch.Chips() {
			cb.printf("  %-18s %s\n", chip.Key, chip.Prompt)
		}
		cb.println("Use /chip <key> to ask one.")
		return false, nil

	case "/chip":
		if len(parts) < 2 {
			return false, errors.New("usage: /chip <key>")
		}
		cb.report(cb.orch.SubmitChip(ctx, parts[1]))
		return false, nil

	case "/attach":
		if len(parts) < 2 {
			return false, errors.New("usage: /attach <path> [message]")
		}
		text := strings.TrimSpace(strings.TrimPrefix(rest, parts[1]))
		att := composer.FileAttachment{Path: parts[1]}
		cb.report(cb.orch.Submit(ctx, conversation.Input{Text: text, Attachment: att}))
		return false, nil

	case "/audio":
		if len(parts) < 2 {
			return false, errors.New("usage: /audio <path>")
		}
		cb.report(cb.orch.SubmitAudio(ctx, composer.FileAttachment{Path: parts[1]}))
		return false, nil

	case "/answer":
		if rest == "" {
			return false, errors.New("usage: /answer <option number|text>")
		}
		state := cb.orch.Clarification()
		if !state.Awaiting {
			return false, errors.New("no question is waiting for an answer")
		}
		// Numbers outside the option list are free-text answers, such as a year.
		if n, err := strconv.Atoi(rest); err == nil && n >= 1 && n <= len(state.Options) {
			cb.report(cb.orch.ChooseOption(ctx, n-1))
			return false, nil
		}
		cb.report(cb.orch.AnswerClarification(ctx, rest))
		return false, nil

	case "/login":
		if len(parts) < 2 {
			return false, errors.New("usage: /login <email> [language] [token]")
		}
		u := session.User{Email: parts[1], Language: cb.config.Language}
		if len(parts) > 2 {
			if !config.ValidLanguage(parts[2]) {
				return false, errors.Errorf("unsupported language: %s", parts[2])
			}
			u.Language = parts[2]
		}
		if len(parts) > 3 {
			u.Token = parts[3]
		}
		if err := cb.users.Login(u); err != nil {
			return false, err
		}
		cb.printf("Signed in as %s (%s)\n", u.Email, u.Language)
		return false, nil

	case "/logout":
		if err := cb.users.Logout(); err != nil {
			return false, err
		}
		cb.println("Signed out")
		return false, nil

	case "/whoami":
		u, ok := cb.users.Current()
		if !ok {
			cb.println("Not signed in")
			return false, nil
		}
		cb.printf("%s (%s)\n", u.Email, u.Language)
		return false, nil

	case "/session":
		cb.printf("Session: %s\n", cb.identity.GetOrCreate())
		return false, nil

	case "/new-session":
		cb.identity.Clear()
		cb.printf("Started new session: %s\n", cb.identity.GetOrCreate())
		return false, nil

	case "/health":
		if cb.client.Health(ctx) {
			cb.println("Backend is online")
		} else {
			cb.println("Backend is offline")
		}
		return false, nil

	case "/transcript":
		for _, t := range cb.orch.Transcript().Turns() {
			cb.println(cb.render.Turn(t))
		}
		return false, nil

	case "/help":
		cb.println("Available commands:")
		cb.println("  /quit, /exit                  - Exit")
		cb.println("  /chips                        - List suggested questions")
		cb.println("  /chip <key>                   - Ask a suggested question")
		cb.println("  /attach <path> [message]      - Send a file with an optional message")
		cb.println("  /audio <path>                 - Transcribe a recording and send it")
		cb.println("  /answer <n|text>              - Answer the pending clarifying question")
		cb.println("  /login <email> [lang] [token] - Sign in (lang: it|en|uk|ru|ro|ar)")
		cb.println("  /logout                       - Sign out")
		cb.println("  /whoami                       - Show the signed-in user")
		cb.println("  /session                      - Show the session token")
		cb.println("  /new-session                  - Start a new session")
		cb.println("  /health                       - Check the backend")
		cb.println("  /transcript                   - Show the conversation so far")
		cb.println("  /help                         - Show this help message")
		return false, nil

	default:
		return false, errors.Errorf("unknown command: %s", parts[0])
	}
}
