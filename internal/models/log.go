package models

// StructuredLogType tags log documents posted to /observability so the
// collector can tell them apart from other observability payloads.
const StructuredLogType = "structured_log"

// StructuredLog is one shipped log record.
type StructuredLog struct {
	Type      string                 `json:"type"`
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Service   string                 `json:"service"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     *LogError              `json:"error,omitempty"`
}

// LogError carries the error attached to an ERROR record.
type LogError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}
