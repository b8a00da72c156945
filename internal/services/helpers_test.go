package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	types "github.com/chorusapp/chorus-backend/internal/domain"
	"github.com/chorusapp/chorus-backend/internal/platform/logger"
	"github.com/chorusapp/chorus-backend/internal/realtime"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
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
	// In-memory sqlite with one writer per test.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&types.TeamRun{}, &types.KnowledgeDoc{}, &types.KnowledgeChunk{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// wordEmbedder hashes words into a small bag-of-words vector, so texts that
// share vocabulary score high on cosine without a real provider.
type wordEmbedder struct {
	calls int
	mu    sync.Mutex
}

const wordDims = 16

func (e *wordEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	out := make([][]float32, len(inputs))
	for i, text := range inputs {
		vec := make([]float32, wordDims)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			vec[h.Sum32()%wordDims]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm > 0 {
			n := float32(math.Sqrt(norm))
			for j := range vec {
				vec[j] /= n
			}
		} else {
			vec[0] = 1
		}
		out[i] = vec
	}
	return out, nil
}

// recordingEmitter captures emitted team events in order.
type recordingEmitter struct {
	mu     sync.Mutex
	events []realtime.TeamEvent
}

func (r *recordingEmitter) Emit(_ context.Context, msg realtime.SSEMessage) {
	ev, ok := msg.Data.(realtime.TeamEvent)
	if !ok {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingEmitter) all() []realtime.TeamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.TeamEvent(nil), r.events...)
}

func (r *recordingEmitter) find(kind realtime.TeamEventKind, action string) (realtime.TeamEvent, bool) {
	for _, ev := range r.all() {
		if ev.Kind == kind && (action == "" || ev.Action == action) {
			return ev, true
		}
	}
	return realtime.TeamEvent{}, false
}
