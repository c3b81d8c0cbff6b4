package models

// Event is a single named occurrence emitted by application code.
// Timestamp is epoch milliseconds and is stamped by the delivery queue, never by the caller.
// Values are treated as immutable once queued; redelivery reuses the same Event.
type Event struct {
	ID         string                 `json:"id,omitempty" cbor:"id,omitempty"`
	Name       string                 `json:"name" cbor:"name"`
	Timestamp  int64                  `json:"timestamp" cbor:"timestamp"`
	Properties map[string]interface{} `json:"properties" cbor:"properties"`
	UserID     string                 `json:"userId,omitempty" cbor:"userId,omitempty"`
}

// EventBatch is the wire envelope for POST /analytics.
type EventBatch struct {
	Events []Event `json:"events" cbor:"events"`
}

// EventIngestResponse is returned by POST /analytics.
// Duplicates counts events whose (tenant, id) pair was already stored.
type EventIngestResponse struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
}

// EventCountResponse is returned by GET /stats.
type EventCountResponse struct {
	EventName string `json:"event_name"`
	Count     int64  `json:"count"`
}
