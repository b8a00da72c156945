package app

import (
	httpH "github.com/chorusapp/chorus-backend/internal/http/handlers"
	"github.com/chorusapp/chorus-backend/internal/platform/logger"
	"github.com/chorusapp/chorus-backend/internal/realtime"
)

type Handlers struct {
	Team      *httpH.TeamHandler
	Knowledge *httpH.KnowledgeHandler
	Realtime  *httpH.RealtimeHandler
	Health    *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, svcs Services, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Team:      httpH.NewTeamHandler(svcs.Team),
		Knowledge: httpH.NewKnowledgeHandler(svcs.Knowledge),
		Realtime:  httpH.NewRealtimeHandler(log, hub),
		Health:    httpH.NewHealthHandler(),
	}
}
