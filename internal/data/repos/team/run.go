package team

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/chorusapp/chorus-backend/internal/domain"
	"github.com/chorusapp/chorus-backend/internal/platform/dbctx"
	"github.com/chorusapp/chorus-backend/internal/platform/logger"
)

// RunRepo persists TeamRun rows. Saving is an upsert keyed by
// conversation_id; updated_at is assigned here on every write, never taken
// from the caller.
type RunRepo interface {
	Save(dbc dbctx.Context, run *types.TeamRun) (*types.TeamRun, error)
	GetByConversationID(dbc dbctx.Context, conversationID uuid.UUID) (*types.TeamRun, error)
	LockByConversationID(dbc dbctx.Context, conversationID uuid.UUID) (*types.TeamRun, error)
	Clear(dbc dbctx.Context, conversationID uuid.UUID) (int64, error)
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunRepo(db *gorm.DB, log *logger.Logger) RunRepo {
	return &runRepo{db: db, log: log.With("repo", "TeamRunRepo")}
}

func (r *runRepo) Save(dbc dbctx.Context, run *types.TeamRun) (*types.TeamRun, error) {
	if run == nil {
		return nil, fmt.Errorf("missing run")
	}
	if run.ConversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}

	now := time.Now().UTC()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	err := txx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "conversation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"parent_message_id", "status", "lead_plan", "specialists", "shared_context", "updated_at",
			}),
		}).
		Create(run).Error
	if err != nil {
		return nil, err
	}
	// Re-read so the caller sees the row as stored (the conflict path keeps
	// the original id and created_at).
	return r.GetByConversationID(dbctx.Context{Ctx: dbc.Ctx, Tx: txx}, run.ConversationID)
}

func (r *runRepo) GetByConversationID(dbc dbctx.Context, conversationID uuid.UUID) (*types.TeamRun, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.TeamRun
	err := txx.WithContext(dbc.Ctx).Where("conversation_id = ?", conversationID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *runRepo) LockByConversationID(dbc dbctx.Context, conversationID uuid.UUID) (*types.TeamRun, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByConversationID requires dbc.Tx")
	}
	q := dbc.Tx.WithContext(dbc.Ctx)
	// sqlite has no FOR UPDATE; its transactions serialize writes anyway.
	if dbc.Tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var out types.TeamRun
	err := q.Where("conversation_id = ?", conversationID).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *runRepo) Clear(dbc dbctx.Context, conversationID uuid.UUID) (int64, error) {
	if conversationID == uuid.Nil {
		return 0, fmt.Errorf("missing conversation_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&types.TeamRun{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
