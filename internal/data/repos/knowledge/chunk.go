package knowledge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/chorusapp/chorus-backend/internal/domain"
	"github.com/chorusapp/chorus-backend/internal/platform/dbctx"
	"github.com/chorusapp/chorus-backend/internal/platform/logger"
)

type ChunkRepo interface {
	CreateBatch(dbc dbctx.Context, rows []*types.KnowledgeChunk) ([]*types.KnowledgeChunk, error)
	ListByConversation(dbc dbctx.Context, conversationID uuid.UUID) ([]*types.KnowledgeChunk, error)
	DeleteByDoc(dbc dbctx.Context, docID uuid.UUID) (int64, error)
	DeleteByConversation(dbc dbctx.Context, conversationID uuid.UUID) (int64, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, log *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: log.With("repo", "KnowledgeChunkRepo")}
}

func (r *chunkRepo) CreateBatch(dbc dbctx.Context, rows []*types.KnowledgeChunk) ([]*types.KnowledgeChunk, error) {
	if len(rows) == 0 {
		return []*types.KnowledgeChunk{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.DocID == uuid.Nil {
			return nil, fmt.Errorf("missing doc_id")
		}
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
	}
	if err := txx.WithContext(dbc.Ctx).CreateInBatches(&rows, 200).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chunkRepo) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID) ([]*types.KnowledgeChunk, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.KnowledgeChunk
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.KnowledgeChunk{}).
		Where("conversation_id = ?", conversationID).
		Order("doc_id ASC, idx ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) DeleteByDoc(dbc dbctx.Context, docID uuid.UUID) (int64, error) {
	if docID == uuid.Nil {
		return 0, fmt.Errorf("missing doc_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).Where("doc_id = ?", docID).Delete(&types.KnowledgeChunk{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *chunkRepo) DeleteByConversation(dbc dbctx.Context, conversationID uuid.UUID) (int64, error) {
	if conversationID == uuid.Nil {
		return 0, fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).Where("conversation_id = ?", conversationID).Delete(&types.KnowledgeChunk{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
