package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	knowledgerepo "github.com/chorusapp/chorus-backend/internal/data/repos/knowledge"
	pkgerrors "github.com/chorusapp/chorus-backend/internal/pkg/errors"
)

func newKnowledgeService(t *testing.T, embedder Embedder, cfg KnowledgeConfig) KnowledgeService {
	t.Helper()
	db := newTestDB(t)
	log := testLogger()
	return NewKnowledgeService(db, knowledgerepo.NewDocRepo(db, log), knowledgerepo.NewChunkRepo(db, log), embedder, cfg, log)
}

func TestSaveDocChunksAndSearch(t *testing.T) {
	svc := newKnowledgeService(t, &wordEmbedder{}, KnowledgeConfig{ChunkWindow: 120, ChunkOverlap: 20})
	ctx := context.Background()
	conv := uuid.New()

	_, err := svc.SaveDoc(ctx, SaveDocInput{
		ConversationID: conv,
		Title:          "Release checklist",
		Content: strings.Repeat("verify migrations and rollback steps before deploying the release train\n", 8) +
			"owner: platform team",
	})
	if err != nil {
		t.Fatalf("SaveDoc: %v", err)
	}
	_, err = svc.SaveDoc(ctx, SaveDocInput{
		ConversationID: conv,
		Title:          "Lunch notes",
		Content:        "the cafeteria serves tacos on tuesdays and soup on fridays",
	})
	if err != nil {
		t.Fatalf("SaveDoc: %v", err)
	}

	hits, err := svc.Search(ctx, conv, "rollback steps for the release", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits")
	}
	if hits[0].Title != "Release checklist" {
		t.Fatalf("top hit title = %q, want the release doc", hits[0].Title)
	}
	if hits[0].Score <= 0 {
		t.Fatalf("top hit score = %v, want > 0", hits[0].Score)
	}
	if hits[0].StartLine < 1 {
		t.Fatalf("start line = %d, want 1-based", hits[0].StartLine)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatalf("hits out of order at %d: %v > %v", i, hits[i].Score, hits[i-1].Score)
		}
	}
}

func TestSearchEmptyKnowledgeBase(t *testing.T) {
	svc := newKnowledgeService(t, &wordEmbedder{}, KnowledgeConfig{})
	hits, err := svc.Search(context.Background(), uuid.New(), "anything", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", hits)
	}
}

func TestSearchScopedToConversation(t *testing.T) {
	svc := newKnowledgeService(t, &wordEmbedder{}, KnowledgeConfig{})
	ctx := context.Background()
	convA, convB := uuid.New(), uuid.New()

	if _, err := svc.SaveDoc(ctx, SaveDocInput{ConversationID: convA, Title: "A", Content: "alpha payload"}); err != nil {
		t.Fatalf("SaveDoc: %v", err)
	}
	hits, err := svc.Search(ctx, convB, "alpha payload", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("conversation B must not see A's docs, got %d hits", len(hits))
	}
}

func TestSaveAndSearchWithoutEmbedder(t *testing.T) {
	svc := newKnowledgeService(t, nil, KnowledgeConfig{})
	ctx := context.Background()
	conv := uuid.New()

	if _, err := svc.SaveDoc(ctx, SaveDocInput{ConversationID: conv, Title: "t", Content: "c"}); !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("SaveDoc err = %v, want ErrEmbeddingUnavailable", err)
	}
	if _, err := svc.Search(ctx, conv, "q", 1); !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("Search err = %v, want ErrEmbeddingUnavailable", err)
	}
	// Reads and deletes still work.
	if _, err := svc.ListDocs(ctx, conv); err != nil {
		t.Fatalf("ListDocs: %v", err)
	}
	if _, err := svc.Clear(ctx, conv); err != nil {
		t.Fatalf("Clear: %v", err)
	}
}

func TestReadDocLineRange(t *testing.T) {
	svc := newKnowledgeService(t, &wordEmbedder{}, KnowledgeConfig{})
	ctx := context.Background()
	conv := uuid.New()

	doc, err := svc.SaveDoc(ctx, SaveDocInput{
		ConversationID: conv,
		Title:          "doc",
		Content:        "one\ntwo\nthree\nfour",
	})
	if err != nil {
		t.Fatalf("SaveDoc: %v", err)
	}

	cases := []struct {
		name     string
		from, to int
		want     string
		wantErr  bool
	}{
		{"whole", 0, 0, "one\ntwo\nthree\nfour", false},
		{"middle", 2, 3, "two\nthree", false},
		{"open end", 3, 0, "three\nfour", false},
		{"clamped end", 2, 99, "two\nthree\nfour", false},
		{"inverted", 3, 2, "", true},
		{"past end", 9, 9, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.ReadDoc(ctx, doc.ID, tc.from, tc.to)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("want error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadDoc: %v", err)
			}
			if got != tc.want {
				t.Fatalf("ReadDoc = %q, want %q", got, tc.want)
			}
		})
	}

	if _, err := svc.ReadDoc(ctx, uuid.New(), 0, 0); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("missing doc err = %v, want ErrNotFound", err)
	}
}

func TestDeleteDocRemovesChunksAndIsIdempotent(t *testing.T) {
	svc := newKnowledgeService(t, &wordEmbedder{}, KnowledgeConfig{ChunkWindow: 50, ChunkOverlap: 10})
	ctx := context.Background()
	conv := uuid.New()

	doc, err := svc.SaveDoc(ctx, SaveDocInput{
		ConversationID: conv,
		Title:          "doc",
		Content:        strings.Repeat("searchable words here ", 20),
	})
	if err != nil {
		t.Fatalf("SaveDoc: %v", err)
	}

	n, err := svc.DeleteDoc(ctx, doc.ID)
	if err != nil || n != 1 {
		t.Fatalf("DeleteDoc = (%d, %v), want (1, nil)", n, err)
	}
	n, err = svc.DeleteDoc(ctx, doc.ID)
	if err != nil || n != 0 {
		t.Fatalf("second DeleteDoc = (%d, %v), want (0, nil)", n, err)
	}

	hits, err := svc.Search(ctx, conv, "searchable words", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("chunks survived doc deletion: %d hits", len(hits))
	}
}

func TestClearConversation(t *testing.T) {
	svc := newKnowledgeService(t, &wordEmbedder{}, KnowledgeConfig{})
	ctx := context.Background()
	conv := uuid.New()

	for _, title := range []string{"a", "b", "c"} {
		if _, err := svc.SaveDoc(ctx, SaveDocInput{ConversationID: conv, Title: title, Content: "content " + title}); err != nil {
			t.Fatalf("SaveDoc: %v", err)
		}
	}
	n, err := svc.Clear(ctx, conv)
	if err != nil || n != 3 {
		t.Fatalf("Clear = (%d, %v), want (3, nil)", n, err)
	}
	n, err = svc.Clear(ctx, conv)
	if err != nil || n != 0 {
		t.Fatalf("second Clear = (%d, %v), want (0, nil)", n, err)
	}
	docs, err := svc.ListDocs(ctx, conv)
	if err != nil || len(docs) != 0 {
		t.Fatalf("ListDocs after clear = (%d, %v)", len(docs), err)
	}
}
