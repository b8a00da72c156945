package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chorusapp/chorus-backend/internal/http/response"
	pkgerrors "github.com/chorusapp/chorus-backend/internal/pkg/errors"
	"github.com/chorusapp/chorus-backend/internal/services"
)

type TeamHandler struct {
	team services.TeamService
}

func NewTeamHandler(team services.TeamService) *TeamHandler {
	return &TeamHandler{team: team}
}

type startRunReq struct {
	ConversationID  uuid.UUID `json:"conversation_id"`
	ParentMessageID uuid.UUID `json:"parent_message_id"`
	Objective       string    `json:"objective"`
}

// POST /api/team/runs
func (h *TeamHandler) StartRun(c *gin.Context) {
	var req startRunReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	run, err := h.team.StartRun(c.Request.Context(), services.StartRunInput{
		ConversationID:  req.ConversationID,
		ParentMessageID: req.ParentMessageID,
		Objective:       req.Objective,
	})
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			status = http.StatusInternalServerError
		}
		response.RespondError(c, status, "start_run_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

// GET /api/team/runs/:conversationId
func (h *TeamHandler) GetRun(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	run, err := h.team.Get(c.Request.Context(), conversationID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_run_failed", err)
		return
	}
	if run == nil {
		response.RespondError(c, http.StatusNotFound, "run_not_found", pkgerrors.ErrNotFound)
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

type answerReq struct {
	AgentName string `json:"agent_name"`
	Answer    string `json:"answer"`
}

// POST /api/team/runs/:conversationId/answer
func (h *TeamHandler) Answer(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	var req answerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	run, err := h.team.Answer(c.Request.Context(), conversationID, req.AgentName, req.Answer)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRunNotFound), errors.Is(err, services.ErrSpecialistNotFound):
			response.RespondError(c, http.StatusNotFound, "not_found", err)
		case errors.Is(err, services.ErrSpecialistNotPaused):
			response.RespondError(c, http.StatusConflict, "not_paused", err)
		default:
			response.RespondError(c, http.StatusBadRequest, "answer_failed", err)
		}
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

// POST /api/team/runs/:conversationId/cancel
func (h *TeamHandler) CancelRun(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	canceled := h.team.Cancel(c.Request.Context(), conversationID)
	response.RespondOK(c, gin.H{"canceled": canceled})
}

// DELETE /api/team/runs/:conversationId
func (h *TeamHandler) ClearRun(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	deleted, err := h.team.Clear(c.Request.Context(), conversationID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "clear_run_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": deleted})
}
