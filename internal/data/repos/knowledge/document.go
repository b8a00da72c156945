package knowledge

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/chorusapp/chorus-backend/internal/domain"
	"github.com/chorusapp/chorus-backend/internal/platform/dbctx"
	"github.com/chorusapp/chorus-backend/internal/platform/logger"
)

type DocRepo interface {
	Create(dbc dbctx.Context, doc *types.KnowledgeDoc) (*types.KnowledgeDoc, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.KnowledgeDoc, error)
	ListByConversation(dbc dbctx.Context, conversationID uuid.UUID) ([]*types.KnowledgeDoc, error)
	DeleteByID(dbc dbctx.Context, id uuid.UUID) (int64, error)
	DeleteByConversation(dbc dbctx.Context, conversationID uuid.UUID) (int64, error)
}

type docRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocRepo(db *gorm.DB, log *logger.Logger) DocRepo {
	return &docRepo{db: db, log: log.With("repo", "KnowledgeDocRepo")}
}

func (r *docRepo) Create(dbc dbctx.Context, doc *types.KnowledgeDoc) (*types.KnowledgeDoc, error) {
	if doc == nil {
		return nil, fmt.Errorf("missing doc")
	}
	if doc.ConversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	now := time.Now().UTC()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if err := txx.WithContext(dbc.Ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *docRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.KnowledgeDoc, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.KnowledgeDoc
	err := txx.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *docRepo) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID) ([]*types.KnowledgeDoc, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.KnowledgeDoc
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.KnowledgeDoc{}).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *docRepo) DeleteByID(dbc dbctx.Context, id uuid.UUID) (int64, error) {
	if id == uuid.Nil {
		return 0, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).Where("id = ?", id).Delete(&types.KnowledgeDoc{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *docRepo) DeleteByConversation(dbc dbctx.Context, conversationID uuid.UUID) (int64, error) {
	if conversationID == uuid.Nil {
		return 0, fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).Where("conversation_id = ?", conversationID).Delete(&types.KnowledgeDoc{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
