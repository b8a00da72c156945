package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/chorusapp/chorus-backend/internal/http/handlers"
	httpMW "github.com/chorusapp/chorus-backend/internal/http/middleware"
	"github.com/chorusapp/chorus-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	TeamHandler      *httpH.TeamHandler
	KnowledgeHandler *httpH.KnowledgeHandler
	RealtimeHandler  *httpH.RealtimeHandler
	HealthHandler    *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("chorus-backend"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.RealtimeHandler != nil {
			api.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}

		if cfg.TeamHandler != nil {
			api.POST("/team/runs", cfg.TeamHandler.StartRun)
			api.GET("/team/runs/:conversationId", cfg.TeamHandler.GetRun)
			api.POST("/team/runs/:conversationId/answer", cfg.TeamHandler.Answer)
			api.POST("/team/runs/:conversationId/cancel", cfg.TeamHandler.CancelRun)
			api.DELETE("/team/runs/:conversationId", cfg.TeamHandler.ClearRun)
		}

		if cfg.KnowledgeHandler != nil {
			api.POST("/knowledge/docs", cfg.KnowledgeHandler.SaveDoc)
			api.GET("/knowledge/docs", cfg.KnowledgeHandler.ListDocs)
			api.GET("/knowledge/docs/:id", cfg.KnowledgeHandler.GetDoc)
			api.DELETE("/knowledge/docs/:id", cfg.KnowledgeHandler.DeleteDoc)
			api.DELETE("/knowledge/docs", cfg.KnowledgeHandler.ClearDocs)
			api.POST("/knowledge/search", cfg.KnowledgeHandler.Search)
		}
	}

	return r
}
