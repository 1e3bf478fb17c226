package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/segmentio/ksuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status is the ingestion state shared by documents and ingestion jobs.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a job in this status may no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is an uploaded document together with its ingestion output.
// IDs are KSUIDs, so sorting by ID is sorting by creation time.
type Document struct {
	ID                string            `json:"id" gorm:"type:char(27);primaryKey"`
	Title             string            `json:"title" gorm:"type:text;not null"`
	Content           string            `json:"content,omitempty" gorm:"type:text;not null"`
	Filename          string            `json:"filename" gorm:"type:text;not null"`
	FileType          string            `json:"file_type" gorm:"type:varchar(128);not null"`
	FileSize          int64             `json:"file_size" gorm:"not null"`
	OwnerID           string            `json:"owner_id" gorm:"type:varchar(64);not null;index"`
	Status            Status            `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Embedding         *pgvector.Vector  `json:"-" gorm:"type:vector"`
	EmbeddingDegraded bool              `json:"embedding_degraded" gorm:"not null;default:false"`
	Metadata          datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	Chunks            []Chunk           `json:"chunks,omitempty" gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time         `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt         gorm.DeletedAt    `json:"deleted_at,omitempty" gorm:"column:deleted_at;index"`
}

// BeforeCreate hook generates KSUID before inserting
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = ksuid.New().String()
	}
	return nil
}

// WithStatus returns a copy of d with the ingestion status changed.
func (d Document) WithStatus(status Status) Document {
	d.Status = status
	return d
}

// WithTitle returns a copy of d with a new title.
func (d Document) WithTitle(title string) Document {
	d.Title = title
	return d
}

// WithContent returns a copy of d with new content. Changed content makes the
// previous ingestion output stale, so the copy goes back to pending.
func (d Document) WithContent(content string) Document {
	if content == d.Content {
		return d
	}
	d.Content = content
	d.Status = StatusPending
	return d
}

// EmbeddingVector returns the document-level embedding, or nil when there is none.
func (d Document) EmbeddingVector() []float32 {
	if d.Embedding == nil {
		return nil
	}
	return d.Embedding.Slice()
}

// DocumentCreate carries the fields needed to create a document from already-extracted text.
type DocumentCreate struct {
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Filename string         `json:"filename"`
	FileType string         `json:"file_type"`
	Metadata map[string]any `json:"metadata"`
}

// DocumentUpdate is a partial edit. Nil fields are left unchanged.
type DocumentUpdate struct {
	Title    *string        `json:"title,omitempty"`
	Content  *string        `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Upload is a raw file handed to the document service.
type Upload struct {
	Title    string
	Filename string
	FileType string
	Data     []byte
	OwnerID  string
}
