package models

import (
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
)

// Chunk is one embedded window of a document's content.
// A document's chunks are always replaced as a whole, never edited.
type Chunk struct {
	ID         string          `json:"id" gorm:"type:varchar(64);primaryKey"`
	DocumentID string          `json:"document_id" gorm:"type:char(27);not null;index"`
	ChunkIndex int             `json:"chunk_index" gorm:"not null"`
	Content    string          `json:"content" gorm:"type:text;not null"`
	Embedding  pgvector.Vector `json:"-" gorm:"type:vector;not null"`
	StartIndex int             `json:"start_index" gorm:"not null"`
	EndIndex   int             `json:"end_index" gorm:"not null"`
	Degraded   bool            `json:"degraded" gorm:"not null;default:false"`
	CreatedAt  time.Time       `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// ChunkID derives a chunk identity from its document and ordinal index.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// Vector returns the chunk embedding as a plain slice.
func (c Chunk) Vector() []float32 {
	return c.Embedding.Slice()
}

// RankedChunk is a retrieval hit: a chunk, its similarity to the question and
// the title of the document it belongs to.
type RankedChunk struct {
	Chunk         Chunk   `json:"chunk"`
	Similarity    float64 `json:"similarity"`
	DocumentTitle string  `json:"document_title"`
}
