package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// AttachmentSchemaVersion is written with every encoded attachment list.
const AttachmentSchemaVersion = 1

// Attachment is file metadata only; upload and download live outside the core.
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Attachments is a task's attachment list. Decoding never fails: malformed
// input yields an empty list.
type Attachments struct {
	Items []Attachment
}

type attachmentsEnvelope struct {
	SchemaVersion int          `json:"schemaVersion"`
	Items         []Attachment `json:"items"`
}

// IsZero reports whether the list is empty.
func (a Attachments) IsZero() bool {
	return len(a.Items) == 0
}

// DecodeAttachments reads the versioned envelope or a legacy bare array.
func DecodeAttachments(raw []byte) Attachments {
	if len(raw) == 0 {
		return Attachments{}
	}
	var env attachmentsEnvelope
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.SchemaVersion > AttachmentSchemaVersion {
			return Attachments{}
		}
		return Attachments{Items: env.Items}
	}
	var legacy []Attachment
	if err := json.Unmarshal(raw, &legacy); err == nil {
		return Attachments{Items: legacy}
	}
	return Attachments{}
}

// MarshalJSON implements json.Marshaler.
func (a Attachments) MarshalJSON() ([]byte, error) {
	items := a.Items
	if items == nil {
		items = []Attachment{}
	}
	return json.Marshal(attachmentsEnvelope{SchemaVersion: AttachmentSchemaVersion, Items: items})
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Attachments) UnmarshalJSON(data []byte) error {
	// A string holding JSON is accepted as well.
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		data = []byte(s)
	}
	*a = DecodeAttachments(data)
	return nil
}

// Value implements driver.Valuer.
func (a Attachments) Value() (driver.Value, error) {
	if a.IsZero() {
		return nil, nil
	}
	b, err := a.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *Attachments) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*a = Attachments{}
	case string:
		*a = DecodeAttachments([]byte(v))
	case []byte:
		*a = DecodeAttachments(v)
	default:
		return fmt.Errorf("cannot scan %T into Attachments", value)
	}
	return nil
}
