// Package stt provides speech-to-text clients for buffered utterances.
package stt

// Result is a completed transcription of one utterance.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
}
