package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// QASession is one answered question. Sessions are append-only history.
type QASession struct {
	ID                  string         `json:"id" gorm:"type:char(27);primaryKey"`
	UserID              string         `json:"user_id" gorm:"type:varchar(64);not null;index"`
	Question            string         `json:"question" gorm:"type:text;not null"`
	Answer              string         `json:"answer" gorm:"type:text;not null"`
	RelevantDocumentIDs pq.StringArray `json:"relevant_document_ids" gorm:"type:text[]"`
	Confidence          float64        `json:"confidence" gorm:"not null;default:0"`
	Degraded            bool           `json:"degraded" gorm:"not null;default:false"`
	CreatedAt           time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime;index"`
}

// BeforeCreate hook generates KSUID before inserting
func (s *QASession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = ksuid.New().String()
	}
	return nil
}

// Answer is the result of asking a question, before it is recorded as a session.
type Answer struct {
	Answer              string   `json:"answer"`
	Confidence          float64  `json:"confidence"`
	RelevantDocumentIDs []string `json:"relevant_document_ids"`
	Degraded            bool     `json:"degraded"`
}
