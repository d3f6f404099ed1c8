package kafka

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/laurel/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string
	TraceState  string

	// Parsed content
	Document *DocumentMessage
}

// DocumentMessage is the envelope the extraction pipeline publishes for every
// processed legal document.
type DocumentMessage struct {
	Type      string                   `json:"type"` // "document.extracted"
	TenantID  string                   `json:"tenant_id"`
	Source    DocumentSource           `json:"source"`
	Document  models.ExtractedDocument `json:"document"`
	Timestamp time.Time                `json:"timestamp"`
}

// DocumentSource identifies the upstream extraction run that produced the
// document.
type DocumentSource struct {
	Pipeline    string `json:"pipeline,omitempty"`
	ExecutionID string `json:"execution_id,omitempty"`
	FileName    string `json:"file_name,omitempty"`
}

// ParseDocument parses the message value as a document envelope
func (m *IncomingMessage) ParseDocument() error {
	var msg DocumentMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	m.Document = &msg
	return nil
}

// GetTenantID returns the tenant ID from the envelope, falling back to headers
func (m *IncomingMessage) GetTenantID() string {
	if m.Document != nil && m.Document.TenantID != "" {
		return m.Document.TenantID
	}
	return m.Headers["tenant_id"]
}

// GetExecutionID returns the extraction execution ID, if any
func (m *IncomingMessage) GetExecutionID() string {
	if m.Document != nil {
		return m.Document.Source.ExecutionID
	}
	return ""
}

// GetDocumentID returns the document ID carried by the envelope
func (m *IncomingMessage) GetDocumentID() string {
	if m.Document != nil {
		return m.Document.Document.DocumentID
	}
	return m.Key
}
