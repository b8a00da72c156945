package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chorusapp/chorus-backend/internal/http/response"
	pkgerrors "github.com/chorusapp/chorus-backend/internal/pkg/errors"
	"github.com/chorusapp/chorus-backend/internal/services"
)

type KnowledgeHandler struct {
	knowledge services.KnowledgeService
}

func NewKnowledgeHandler(knowledge services.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledge: knowledge}
}

type saveDocReq struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Tags           []string  `json:"tags"`
	CreatedBy      string    `json:"created_by"`
}

// POST /api/knowledge/docs
func (h *KnowledgeHandler) SaveDoc(c *gin.Context) {
	var req saveDocReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	doc, err := h.knowledge.SaveDoc(c.Request.Context(), services.SaveDocInput{
		ConversationID: req.ConversationID,
		Title:          req.Title,
		Content:        req.Content,
		Tags:           req.Tags,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmbeddingUnavailable):
			response.RespondError(c, http.StatusServiceUnavailable, "embedding_unavailable", err)
		case errors.Is(err, pkgerrors.ErrInvalidArgument):
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		default:
			response.RespondError(c, http.StatusInternalServerError, "save_doc_failed", err)
		}
		return
	}
	response.RespondOK(c, gin.H{"doc": doc})
}

// GET /api/knowledge/docs?conversation_id=
func (h *KnowledgeHandler) ListDocs(c *gin.Context) {
	conversationID, err := uuid.Parse(strings.TrimSpace(c.Query("conversation_id")))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	docs, err := h.knowledge.ListDocs(c.Request.Context(), conversationID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_docs_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"docs": docs})
}

// GET /api/knowledge/docs/:id?from=&to=
func (h *KnowledgeHandler) GetDoc(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_doc_id", err)
		return
	}
	from := intQuery(c, "from")
	to := intQuery(c, "to")

	if from > 0 || to > 0 {
		content, err := h.knowledge.ReadDoc(c.Request.Context(), id, from, to)
		if err != nil {
			if errors.Is(err, pkgerrors.ErrNotFound) {
				response.RespondError(c, http.StatusNotFound, "doc_not_found", err)
				return
			}
			response.RespondError(c, http.StatusBadRequest, "read_doc_failed", err)
			return
		}
		response.RespondOK(c, gin.H{"content": content, "from": from, "to": to})
		return
	}

	doc, err := h.knowledge.GetDoc(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_doc_failed", err)
		return
	}
	if doc == nil {
		response.RespondError(c, http.StatusNotFound, "doc_not_found", pkgerrors.ErrNotFound)
		return
	}
	response.RespondOK(c, gin.H{"doc": doc})
}

// DELETE /api/knowledge/docs/:id
func (h *KnowledgeHandler) DeleteDoc(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_doc_id", err)
		return
	}
	deleted, err := h.knowledge.DeleteDoc(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "delete_doc_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": deleted})
}

// DELETE /api/knowledge/docs?conversation_id=
func (h *KnowledgeHandler) ClearDocs(c *gin.Context) {
	conversationID, err := uuid.Parse(strings.TrimSpace(c.Query("conversation_id")))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	deleted, err := h.knowledge.Clear(c.Request.Context(), conversationID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "clear_docs_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": deleted})
}

type searchReq struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Query          string    `json:"query"`
	K              int       `json:"k"`
}

// POST /api/knowledge/search
func (h *KnowledgeHandler) Search(c *gin.Context) {
	var req searchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	hits, err := h.knowledge.Search(c.Request.Context(), req.ConversationID, req.Query, req.K)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmbeddingUnavailable):
			response.RespondError(c, http.StatusServiceUnavailable, "embedding_unavailable", err)
		case errors.Is(err, pkgerrors.ErrInvalidArgument):
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		default:
			response.RespondError(c, http.StatusInternalServerError, "search_failed", err)
		}
		return
	}
	response.RespondOK(c, gin.H{"hits": hits})
}

func intQuery(c *gin.Context, key string) int {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
