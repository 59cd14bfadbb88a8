package entity

import (
	"encoding/json"
	"time"
)

// EventType identifies one normalized event on the downstream wire.
type EventType string

const (
	EventContent            EventType = "content"
	EventReasoning          EventType = "reasoning"
	EventReasoningFinish    EventType = "reasoning_finish"
	EventToolCallsChunk     EventType = "tool_calls_chunk"
	EventGoogleFunctionCall EventType = "google_function_call_request"
	EventStatusUpdate       EventType = "status_update"
	EventWebSearchResults   EventType = "web_search_results"
	EventFinish             EventType = "finish"
	EventError              EventType = "error"
)

// Stage labels a status_update progress signal.
type Stage string

const (
	StageWebIndexingStarted  Stage = "web_indexing_started"
	StageWebAnalysisStarted  Stage = "web_analysis_started"
	StageWebAnalysisComplete Stage = "web_analysis_complete"
)

// Finish reasons synthesized by the relay itself. Upstream-provided reasons
// ("stop", "STOP", "tool_calls", ...) pass through untouched.
const (
	FinishStop          = "stop"
	FinishUpstreamError = "upstream_error"
	FinishTimeoutError  = "timeout_error"
	FinishNetworkError  = "network_error"
	FinishInternalError = "internal_server_error"
)

// Event is the provider-agnostic output unit. The downstream body is a
// sequence of these, one JSON object per LF-terminated line (not SSE
// framing). Consumers dispatch on Type; the remaining fields are populated
// per type and omitted otherwise.
type Event struct {
	Type EventType `json:"type"`

	// Text carries content and reasoning deltas.
	Text string `json:"text,omitempty"`

	// Data carries tool_calls_chunk payloads: the upstream delta's
	// tool_calls array forwarded byte-for-byte.
	Data json.RawMessage `json:"data,omitempty"`

	// ID, Name and ArgumentsObj describe a google_function_call_request.
	// ArgumentsObj is the functionCall args object as received.
	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name,omitempty"`
	ArgumentsObj json.RawMessage `json:"arguments_obj,omitempty"`

	Stage   Stage          `json:"stage,omitempty"`
	Results []SearchResult `json:"results,omitempty"`

	Reason string `json:"reason,omitempty"`

	// Message and UpstreamStatus describe an error event.
	Message        string `json:"message,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

func NewContentEvent(text string) Event {
	return Event{Type: EventContent, Text: text, Timestamp: time.Now().UTC()}
}

func NewReasoningEvent(text string) Event {
	return Event{Type: EventReasoning, Text: text, Timestamp: time.Now().UTC()}
}

func NewReasoningFinishEvent() Event {
	return Event{Type: EventReasoningFinish, Timestamp: time.Now().UTC()}
}

func NewToolCallsChunkEvent(data json.RawMessage) Event {
	return Event{Type: EventToolCallsChunk, Data: data, Timestamp: time.Now().UTC()}
}

func NewGoogleFunctionCallEvent(id, name string, args json.RawMessage) Event {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return Event{Type: EventGoogleFunctionCall, ID: id, Name: name, ArgumentsObj: args, Timestamp: time.Now().UTC()}
}

func NewStatusUpdateEvent(stage Stage) Event {
	return Event{Type: EventStatusUpdate, Stage: stage, Timestamp: time.Now().UTC()}
}

func NewWebSearchResultsEvent(results []SearchResult) Event {
	return Event{Type: EventWebSearchResults, Results: results, Timestamp: time.Now().UTC()}
}

func NewFinishEvent(reason string) Event {
	return Event{Type: EventFinish, Reason: reason, Timestamp: time.Now().UTC()}
}

func NewErrorEvent(message string, upstreamStatus int) Event {
	if message == "" {
		message = "unknown upstream error"
	}
	return Event{Type: EventError, Message: message, UpstreamStatus: upstreamStatus, Timestamp: time.Now().UTC()}
}

// Terminal reports whether the event ends the stream for this turn.
func (e Event) Terminal() bool {
	return e.Type == EventFinish
}
