package backend

import "LegalMind/internal/transcript"

// ProcessRequest is the JSON body of POST /external/process
type ProcessRequest struct {
	Text         string `json:"text"`
	UserLanguage string `json:"user_language"`
	SessionID    string `json:"session_id"`
	FileData     string `json:"file_data,omitempty"` // data URL, base64 encoded
	FileName     string `json:"file_name,omitempty"`
}

// Clarification is a question the backend asks before answering
type Clarification struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

// Steps reports the pipeline's pre-answer analysis
type Steps struct {
	IsAmbiguous   bool           `json:"is_ambiguous,omitempty"`
	Clarification *Clarification `json:"clarification,omitempty"`
}

// ConsultantDecision explains whether a human consultant is advised
type ConsultantDecision struct {
	NeedsConsultant    bool    `json:"needs_consultant"`
	RequiresConsultant bool    `json:"requires_consultant"`
	CanSolveAlone      bool    `json:"can_solve_alone"`
	Reason             string  `json:"reason"`
	Confidence         float64 `json:"confidence"`
}

// AnswerPayload carries a final answer
type AnswerPayload struct {
	ResponseNative string                  `json:"response_native"`
	ResponseIT     string                  `json:"response_it,omitempty"`
	Source         transcript.SourceKind   `json:"source,omitempty"`
	Confidence     *float64                `json:"confidence,omitempty"`
	Decision       *ConsultantDecision     `json:"decision,omitempty"`
	Consultants    []transcript.Consultant `json:"consultants,omitempty"`
	ActionItems    []transcript.ActionItem `json:"action_items,omitempty"`
}

const (
	StatusOK     = "ok"
	StatusFailed = "error"
)

// Result wraps the final answer with a status
type Result struct {
	Status  string        `json:"status"`
	Payload AnswerPayload `json:"payload"`
}

// ChatResponse is the body returned by POST /external/process
type ChatResponse struct {
	OriginalText string  `json:"original_text"`
	Steps        Steps   `json:"steps"`
	Result       *Result `json:"result,omitempty"`
}

// Transcription describes what the audio endpoint heard
type Transcription struct {
	OriginalText     string `json:"original_text"`
	DetectedLanguage string `json:"detected_language"`
	AudioFilename    string `json:"audio_filename"`
}

// AudioResponse is the body returned by POST /external/process-audio
type AudioResponse struct {
	Transcription Transcription `json:"transcription"`
	Result        *struct {
		Payload struct {
			ResponseNative string `json:"response_native"`
		} `json:"payload"`
	} `json:"result,omitempty"`
}

// HealthResponse is the body returned by GET /
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthyStatus is the status string a running backend reports.
const HealthyStatus = "LegalMind backend running"
