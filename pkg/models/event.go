package models

import (
	"encoding/json"
	"time"
)

// Event is one gateway event as stored by the journal
type Event struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	Instance  string          `json:"instance" gorm:"type:varchar(32);index"`
	Emitter   string          `json:"emitter,omitempty" gorm:"type:varchar(64)"`
	Type      uint32          `json:"type" gorm:"index"`
	TypeName  string          `json:"type_name" gorm:"type:varchar(16)"`
	Subtype   int             `json:"subtype,omitempty"`
	SessionID uint64          `json:"session_id,omitempty" gorm:"index"`
	HandleID  uint64          `json:"handle_id,omitempty"`
	OpaqueID  string          `json:"opaque_id,omitempty" gorm:"type:varchar(128)"`
	Body      json.RawMessage `json:"event,omitempty" gorm:"type:text"`
	EmittedAt time.Time       `json:"emitted_at" gorm:"index"`
	CreatedAt time.Time       `json:"created_at"`
}

// TableName overrides the table name
func (Event) TableName() string {
	return "journal_events"
}

// EventFilter narrows a listing. Zero fields match everything.
type EventFilter struct {
	Type      uint32
	SessionID uint64
	Since     time.Time
	Limit     int
	Offset    int
}
