package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	knowledgerepo "github.com/chorusapp/chorus-backend/internal/data/repos/knowledge"
	types "github.com/chorusapp/chorus-backend/internal/domain"
	pkgerrors "github.com/chorusapp/chorus-backend/internal/pkg/errors"
	"github.com/chorusapp/chorus-backend/internal/pkg/vector"
	"github.com/chorusapp/chorus-backend/internal/platform/dbctx"
	"github.com/chorusapp/chorus-backend/internal/platform/logger"
)

// Embedder is the slice of the model client the knowledge base needs.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type SaveDocInput struct {
	ConversationID uuid.UUID
	Title          string
	Content        string
	Tags           []string
	CreatedBy      string
}

// SearchHit is one scored chunk, carrying enough to cite the source.
type SearchHit struct {
	DocID     uuid.UUID `json:"doc_id"`
	Title     string    `json:"title"`
	ChunkIdx  int       `json:"chunk_idx"`
	Text      string    `json:"text"`
	Score     float64   `json:"score"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
}

// KnowledgeService is the conversation-scoped knowledge base: save chunks and
// embeds documents, search ranks chunks by cosine similarity. It doubles as
// the specialist tool surface (ListDocs, ReadDoc, Search).
type KnowledgeService interface {
	SaveDoc(ctx context.Context, in SaveDocInput) (*types.KnowledgeDoc, error)
	GetDoc(ctx context.Context, id uuid.UUID) (*types.KnowledgeDoc, error)
	ReadDoc(ctx context.Context, id uuid.UUID, fromLine, toLine int) (string, error)
	ListDocs(ctx context.Context, conversationID uuid.UUID) ([]*types.KnowledgeDoc, error)
	Search(ctx context.Context, conversationID uuid.UUID, query string, k int) ([]SearchHit, error)
	DeleteDoc(ctx context.Context, id uuid.UUID) (int64, error)
	Clear(ctx context.Context, conversationID uuid.UUID) (int64, error)
}

type KnowledgeConfig struct {
	ChunkWindow  int
	ChunkOverlap int
	SearchTopK   int
}

func (c *KnowledgeConfig) normalize() {
	if c.ChunkWindow <= 0 {
		c.ChunkWindow = vector.DefaultWindow
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkWindow {
		c.ChunkOverlap = vector.DefaultOverlap
	}
	if c.SearchTopK <= 0 {
		c.SearchTopK = 5
	}
}

type knowledgeService struct {
	db       *gorm.DB
	docs     knowledgerepo.DocRepo
	chunks   knowledgerepo.ChunkRepo
	embedder Embedder
	cfg      KnowledgeConfig
	log      *logger.Logger
}

// NewKnowledgeService wires the knowledge base. embedder may be nil, in which
// case SaveDoc and Search fail with ErrEmbeddingUnavailable while reads and
// deletes keep working.
func NewKnowledgeService(db *gorm.DB, docs knowledgerepo.DocRepo, chunks knowledgerepo.ChunkRepo, embedder Embedder, cfg KnowledgeConfig, log *logger.Logger) KnowledgeService {
	cfg.normalize()
	return &knowledgeService{
		db:       db,
		docs:     docs,
		chunks:   chunks,
		embedder: embedder,
		cfg:      cfg,
		log:      log.With("service", "KnowledgeService"),
	}
}

func (s *knowledgeService) SaveDoc(ctx context.Context, in SaveDocInput) (*types.KnowledgeDoc, error) {
	if in.ConversationID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing conversation_id", pkgerrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: missing title", pkgerrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: missing content", pkgerrors.ErrInvalidArgument)
	}
	if s.embedder == nil {
		return nil, ErrEmbeddingUnavailable
	}

	pieces := vector.SplitChunks(in.Content, s.cfg.ChunkWindow, s.cfg.ChunkOverlap)

	// Embed before opening the transaction; provider latency must not hold
	// row locks.
	inputs := make([]string, len(pieces))
	for i, p := range pieces {
		inputs[i] = p.Text
	}
	vecs, err := s.embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embed document: %w", err)
	}
	if len(vecs) != len(pieces) {
		return nil, fmt.Errorf("embed document: got %d vectors for %d chunks", len(vecs), len(pieces))
	}

	doc := &types.KnowledgeDoc{
		ConversationID: in.ConversationID,
		Title:          strings.TrimSpace(in.Title),
		Content:        in.Content,
		CreatedBy:      in.CreatedBy,
	}
	if len(in.Tags) > 0 {
		b, mErr := json.Marshal(in.Tags)
		if mErr != nil {
			return nil, fmt.Errorf("encode tags: %w", mErr)
		}
		doc.Tags = datatypes.JSON(b)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, cErr := s.docs.Create(dbc, doc); cErr != nil {
			return cErr
		}
		rows := make([]*types.KnowledgeChunk, len(pieces))
		for i, p := range pieces {
			emb, mErr := json.Marshal(vecs[i])
			if mErr != nil {
				return fmt.Errorf("encode embedding: %w", mErr)
			}
			rows[i] = &types.KnowledgeChunk{
				DocID:          doc.ID,
				ConversationID: doc.ConversationID,
				Idx:            p.Index,
				Text:           p.Text,
				Embedding:      datatypes.JSON(emb),
				StartLine:      p.StartLine,
				EndLine:        p.EndLine,
			}
		}
		_, cErr := s.chunks.CreateBatch(dbc, rows)
		return cErr
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Knowledge doc saved",
		"docID", doc.ID, "conversationID", in.ConversationID, "chunks", len(pieces))
	return doc, nil
}

func (s *knowledgeService) GetDoc(ctx context.Context, id uuid.UUID) (*types.KnowledgeDoc, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: missing id", pkgerrors.ErrInvalidArgument)
	}
	return s.docs.GetByID(dbctx.Context{Ctx: ctx}, id)
}

// ReadDoc returns the document content, optionally restricted to a 1-based
// inclusive line range. fromLine/toLine of 0 mean unbounded on that side.
func (s *knowledgeService) ReadDoc(ctx context.Context, id uuid.UUID, fromLine, toLine int) (string, error) {
	doc, err := s.GetDoc(ctx, id)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", pkgerrors.ErrNotFound
	}
	if fromLine <= 0 && toLine <= 0 {
		return doc.Content, nil
	}

	lines := strings.Split(doc.Content, "\n")
	if fromLine <= 0 {
		fromLine = 1
	}
	if toLine <= 0 || toLine > len(lines) {
		toLine = len(lines)
	}
	if fromLine > toLine || fromLine > len(lines) {
		return "", fmt.Errorf("%w: line range %d-%d outside document (%d lines)",
			pkgerrors.ErrInvalidArgument, fromLine, toLine, len(lines))
	}
	return strings.Join(lines[fromLine-1:toLine], "\n"), nil
}

func (s *knowledgeService) ListDocs(ctx context.Context, conversationID uuid.UUID) ([]*types.KnowledgeDoc, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing conversation_id", pkgerrors.ErrInvalidArgument)
	}
	docs, err := s.docs.ListByConversation(dbctx.Context{Ctx: ctx}, conversationID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*types.KnowledgeDoc{}
	}
	return docs, nil
}

func (s *knowledgeService) Search(ctx context.Context, conversationID uuid.UUID, query string, k int) ([]SearchHit, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing conversation_id", pkgerrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: missing query", pkgerrors.ErrInvalidArgument)
	}
	if s.embedder == nil {
		return nil, ErrEmbeddingUnavailable
	}
	if k <= 0 {
		k = s.cfg.SearchTopK
	}

	rows, err := s.chunks.ListByConversation(dbctx.Context{Ctx: ctx}, conversationID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []SearchHit{}, nil
	}

	qVecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qVecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(qVecs))
	}
	qVec := qVecs[0]

	candidates := make([][]float32, len(rows))
	for i, row := range rows {
		if len(row.Embedding) == 0 {
			continue
		}
		var emb []float32
		if uErr := json.Unmarshal(row.Embedding, &emb); uErr != nil {
			s.log.Warn("Skipping chunk with bad embedding", "chunkID", row.ID, "error", uErr)
			continue
		}
		candidates[i] = emb
	}

	top := vector.TopK(qVec, candidates, k)

	titles, err := s.titlesByDoc(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(top))
	for _, sc := range top {
		row := rows[sc.Index]
		hits = append(hits, SearchHit{
			DocID:     row.DocID,
			Title:     titles[row.DocID],
			ChunkIdx:  row.Idx,
			Text:      row.Text,
			Score:     sc.Score,
			StartLine: row.StartLine,
			EndLine:   row.EndLine,
		})
	}
	return hits, nil
}

func (s *knowledgeService) titlesByDoc(ctx context.Context, conversationID uuid.UUID) (map[uuid.UUID]string, error) {
	docs, err := s.docs.ListByConversation(dbctx.Context{Ctx: ctx}, conversationID)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]string, len(docs))
	for _, d := range docs {
		out[d.ID] = d.Title
	}
	return out, nil
}

func (s *knowledgeService) DeleteDoc(ctx context.Context, id uuid.UUID) (int64, error) {
	if id == uuid.Nil {
		return 0, fmt.Errorf("%w: missing id", pkgerrors.ErrInvalidArgument)
	}
	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, dErr := s.chunks.DeleteByDoc(dbc, id); dErr != nil {
			return dErr
		}
		n, dErr := s.docs.DeleteByID(dbc, id)
		if dErr != nil {
			return dErr
		}
		deleted = n
		return nil
	})
	return deleted, err
}

func (s *knowledgeService) Clear(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	if conversationID == uuid.Nil {
		return 0, fmt.Errorf("%w: missing conversation_id", pkgerrors.ErrInvalidArgument)
	}
	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, dErr := s.chunks.DeleteByConversation(dbc, conversationID); dErr != nil {
			return dErr
		}
		n, dErr := s.docs.DeleteByConversation(dbc, conversationID)
		if dErr != nil {
			return dErr
		}
		deleted = n
		return nil
	})
	return deleted, err
}
