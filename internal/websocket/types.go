package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeDocumentProcessed is sent for every document run through a pipeline
	EventTypeDocumentProcessed EventType = "document_processed"
	// EventTypeConfigReloaded is sent after a configuration reload attempt
	EventTypeConfigReloaded EventType = "config_reloaded"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	RequestID string    `json:"request_id,omitempty"`
}

// DocumentProcessedEvent describes one processed document
type DocumentProcessedEvent struct {
	Pipeline     string   `json:"pipeline"`
	DocID        string   `json:"doc_id,omitempty"`
	Modified     []string `json:"modified"`
	Cached       bool     `json:"cached"`
	Error        string   `json:"error,omitempty"`
	ProcessingMS float64  `json:"processing_ms"`
}

// ConfigReloadedEvent reports the outcome of a configuration reload
type ConfigReloadedEvent struct {
	Success     bool     `json:"success"`
	Stages      []string `json:"stages,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows document_processed events
type EventFilter struct {
	Pipelines    []string `json:"pipelines,omitempty"`
	Fields       []string `json:"fields,omitempty"`
	ModifiedOnly bool     `json:"modified_only,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	subscription *SubscriptionRequest
}
