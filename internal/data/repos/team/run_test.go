package team

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	types "github.com/chorusapp/chorus-backend/internal/domain"
	"github.com/chorusapp/chorus-backend/internal/platform/dbctx"
	"github.com/chorusapp/chorus-backend/internal/platform/logger"
)

func newTestRepo(t *testing.T) (RunRepo, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&types.TeamRun{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	log := &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
	return NewRunRepo(db, log), db
}

func TestSaveUpsertsByConversation(t *testing.T) {
	repo, _ := newTestRepo(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	conv := uuid.New()

	first, err := repo.Save(dbc, &types.TeamRun{
		ConversationID: conv,
		Status:         types.TeamRunInProgress,
		SharedContext:  "v1",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if first.ID == uuid.Nil || first.CreatedAt.IsZero() || first.UpdatedAt.IsZero() {
		t.Fatalf("server-assigned fields missing: %+v", first)
	}

	time.Sleep(5 * time.Millisecond)
	second, err := repo.Save(dbc, &types.TeamRun{
		ConversationID: conv,
		Status:         types.TeamRunPaused,
		SharedContext:  "v2",
	})
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert changed id: %s -> %s", first.ID, second.ID)
	}
	if second.Status != types.TeamRunPaused || second.SharedContext != "v2" {
		t.Fatalf("upsert did not apply: %+v", second)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("updated_at not advanced: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at changed on upsert: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo, _ := newTestRepo(t)
	got, err := repo.GetByConversationID(dbctx.Context{Ctx: context.Background()}, uuid.New())
	if err != nil {
		t.Fatalf("GetByConversationID: %v", err)
	}
	if got != nil {
		t.Fatalf("want nil for missing run, got %+v", got)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	repo, _ := newTestRepo(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	conv := uuid.New()

	if _, err := repo.Save(dbc, &types.TeamRun{ConversationID: conv, Status: types.TeamRunInProgress}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	n, err := repo.Clear(dbc, conv)
	if err != nil || n != 1 {
		t.Fatalf("Clear = (%d, %v), want (1, nil)", n, err)
	}
	n, err = repo.Clear(dbc, conv)
	if err != nil || n != 0 {
		t.Fatalf("second Clear = (%d, %v), want (0, nil)", n, err)
	}
}

func TestLockRequiresTransaction(t *testing.T) {
	repo, db := newTestRepo(t)
	conv := uuid.New()
	dbc := dbctx.Context{Ctx: context.Background()}

	if _, err := repo.LockByConversationID(dbc, conv); err == nil {
		t.Fatal("lock without Tx should fail")
	}

	if _, err := repo.Save(dbc, &types.TeamRun{ConversationID: conv, Status: types.TeamRunInProgress}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		run, err := repo.LockByConversationID(dbctx.Context{Ctx: context.Background(), Tx: tx}, conv)
		if err != nil {
			return err
		}
		if run == nil {
			t.Fatal("run missing under lock")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
}

func TestSpecialistsRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	conv := uuid.New()

	run := &types.TeamRun{ConversationID: conv, Status: types.TeamRunInProgress}
	specs := []types.SpecialistState{
		{AgentName: "a", Role: "r", Status: types.SpecialistPending},
		{AgentName: "b", Role: "r", Status: types.SpecialistPaused, InterruptQuestion: "which one?",
			Messages: []types.SpecialistMessage{{Role: "assistant", Content: "hi", CreatedAt: time.Now().UTC()}}},
	}
	if err := run.SetSpecialists(specs); err != nil {
		t.Fatalf("SetSpecialists: %v", err)
	}
	saved, err := repo.Save(dbc, run)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := saved.DecodeSpecialists()
	if err != nil {
		t.Fatalf("DecodeSpecialists: %v", err)
	}
	if len(got) != 2 || got[1].InterruptQuestion != "which one?" || len(got[1].Messages) != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	// Order is part of the contract; it drives execution order.
	if got[0].AgentName != "a" || got[1].AgentName != "b" {
		t.Fatalf("specialist order changed: %+v", got)
	}
}
