package models

import "time"

// Exchange is one question/answer pair in a conversation window.
type Exchange struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRequest is the payload for the ask endpoint. A missing session ID
// starts a fresh session; the generated ID is returned in the response.
type ChatRequest struct {
	SessionID     string `json:"session_id"`
	KnowledgeBase string `json:"knowledge_base" binding:"required"`
	Question      string `json:"question" binding:"required"`
	KeepPartial   bool   `json:"keep_partial,omitempty"`
}

// AnswerFragment is one element of a streamed answer. A stream is a finite
// sequence of text fragments followed by exactly one terminal fragment
// (Done set, Err possibly set), after which the channel is closed.
// Incomplete marks a terminal fragment whose preceding text is a partial
// answer cut off by a provider failure.
type AnswerFragment struct {
	Text       string `json:"text,omitempty"`
	Done       bool   `json:"done,omitempty"`
	Incomplete bool   `json:"incomplete,omitempty"`
	Err        error  `json:"-"`
}
