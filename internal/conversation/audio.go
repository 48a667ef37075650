package conversation

import (
	"context"
	"strings"

	"LegalMind/internal/backend"
	"LegalMind/internal/composer"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

var ErrEmptyTranscription = errors.New("empty transcription")

// SubmitAudio transcribes a recording and submits the transcription as text.
// A failed transcription appends the audio error turn and submits nothing.
func (o *Orchestrator) SubmitAudio(ctx context.Context, audio composer.Attachment) Outcome {
	if audio == nil {
		return Outcome{Kind: OutcomeRejected, Err: ErrEmptyInput}
	}

	text, out, ok := o.transcribe(ctx, audio)
	if !ok {
		o.count(ctx, out.Kind)
		return out
	}
	return o.Submit(ctx, Input{Text: text})
}

func (o *Orchestrator) transcribe(ctx context.Context, audio composer.Attachment) (string, Outcome, bool) {
	ctx, span := o.tracer.Start(ctx, "conversation.transcribe")
	defer span.End()
	span.SetAttributes(attribute.String("audio.name", audio.Name()))

	sess := o.session()
	req, err := o.composer.ComposeAudio(sess, audio)
	if err != nil {
		o.logger.Error("failed to compose audio request", "name", audio.Name(), "error", err)
		o.appendAssistant(o.messages.Audio)
		return "", Outcome{Kind: OutcomeAudioError, Err: err}, false
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.transport.ProcessAudio(callCtx, req)
	if err = backend.CheckAuth(err); err != nil {
		if backend.IsUnauthorized(err) {
			o.logger.Warn("backend rejected credentials on audio upload, logging out", "session_id", sess.ID)
			o.logout(ctx)
			return "", Outcome{Kind: OutcomeUnauthorized, Err: err}, false
		}
		o.logger.Error("audio transcription failed", "error", err)
		o.appendAssistant(o.messages.Audio)
		return "", Outcome{Kind: OutcomeAudioError, Err: err}, false
	}

	text := ""
	if resp != nil {
		text = resp.Transcription.OriginalText
	}
	if strings.TrimSpace(text) == "" {
		o.logger.Warn("audio transcription was empty", "name", audio.Name())
		o.appendAssistant(o.messages.Audio)
		return "", Outcome{Kind: OutcomeAudioError, Err: ErrEmptyTranscription}, false
	}

	attrs := []any{"detected_language", resp.Transcription.DetectedLanguage, "chars", len(text)}
	if resp.Result != nil && resp.Result.Payload.ResponseNative != "" {
		attrs = append(attrs, "answer_preview", true)
	}
	o.logger.Info("audio transcribed", attrs...)
	return text, Outcome{}, true
}
