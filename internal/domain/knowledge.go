package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// KnowledgeDoc is a document saved into a conversation's knowledge base.
type KnowledgeDoc struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"conversation_id"`
	Title          string         `gorm:"not null" json:"title"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	Tags           datatypes.JSON `gorm:"column:tags" json:"tags,omitempty"`
	CreatedBy      string         `gorm:"column:created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (KnowledgeDoc) TableName() string { return "knowledge_doc" }

// KnowledgeChunk is a fixed-window slice of a document with its embedding.
// ConversationID is denormalized so conversation-scoped search never joins.
type KnowledgeChunk struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DocID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"doc_id"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"conversation_id"`
	Idx            int            `gorm:"column:idx;not null" json:"idx"`
	Text           string         `gorm:"type:text;not null" json:"text"`
	Embedding      datatypes.JSON `gorm:"column:embedding" json:"embedding,omitempty"`
	StartLine      int            `gorm:"column:start_line" json:"start_line"`
	EndLine        int            `gorm:"column:end_line" json:"end_line"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
}

func (KnowledgeChunk) TableName() string { return "knowledge_chunk" }
