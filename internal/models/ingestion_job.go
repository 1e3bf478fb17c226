package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// IngestionJob records one ingestion attempt for a document.
// Re-ingestion creates a new job; a job never changes after a terminal status.
type IngestionJob struct {
	ID          string     `json:"id" gorm:"type:char(27);primaryKey"`
	DocumentID  string     `json:"document_id" gorm:"type:char(27);not null;index"`
	Status      Status     `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Progress    int        `json:"progress" gorm:"not null;default:0"`
	Error       string     `json:"error,omitempty" gorm:"type:text"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate hook generates KSUID before inserting
func (j *IngestionJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = ksuid.New().String()
	}
	return nil
}

// IngestionStatus is what a caller polling for progress sees.
type IngestionStatus struct {
	DocumentID     string        `json:"document_id"`
	DocumentStatus Status        `json:"document_status"`
	Job            *IngestionJob `json:"job"`
}

// Done reports whether no further progress will be observed.
func (s IngestionStatus) Done() bool {
	if s.Job != nil && !s.Job.Status.Terminal() {
		return false
	}
	return s.DocumentStatus != StatusProcessing
}
