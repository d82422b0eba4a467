package recorder

import (
	"github.com/obiente/translate/recorder/internal/translation"
	"github.com/obiente/translate/recorder/internal/whisper"
)

type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
)

const (
	StatusLoadingModel = "Loading model..."
	StatusModelReady   = "Model loaded! Ready to record."
	StatusRecording    = "Recording..."
	StatusProcessing   = "Processing audio..."
	StatusTranscribing = "Transcribing..."
	StatusComplete     = "Transcription complete! Ready to record again."
	StatusNoAudio      = "No audio captured. Ready to record again."
	StatusMicDenied    = "Could not access microphone. Please ensure you have granted microphone permissions."
	StatusCopied       = "Copied to clipboard!"
	StatusCopyFailed   = "Could not copy to clipboard"
	StatusConfirmClear = "Are you sure you want to clear all transcription text?"
	StatusCleared      = "Transcription cleared"
)

type EventType string

const (
	EventStatus       EventType = "status"
	EventProgress     EventType = "progress"
	EventTick         EventType = "tick"
	EventControls     EventType = "controls"
	EventTranscript   EventType = "transcript"
	EventError        EventType = "error"
	EventCopied       EventType = "copied"
	EventConfirmClear EventType = "confirm_clear"
	EventCleared      EventType = "cleared"
)

// Controls says which user actions are currently available.
type Controls struct {
	Record bool `json:"record"`
	Stop   bool `json:"stop"`
	Copy   bool `json:"copy"`
	Clear  bool `json:"clear"`
}

// Event is pushed to the controller's consumer. Only the fields relevant to
// Type are set.
type Event struct {
	Type         EventType                     `json:"type"`
	State        State                         `json:"state,omitempty"`
	Status       string                        `json:"status,omitempty"`
	Elapsed      string                        `json:"elapsed,omitempty"`
	SessionID    string                        `json:"session_id,omitempty"`
	Text         string                        `json:"text,omitempty"`
	FullText     string                        `json:"fullText,omitempty"`
	Language     string                        `json:"language,omitempty"`
	Translations map[string]translation.Result `json:"translations,omitempty"`
	Controls     *Controls                     `json:"controls,omitempty"`
	Progress     *whisper.Progress             `json:"progress,omitempty"`
	Detail       string                        `json:"detail,omitempty"`
}
