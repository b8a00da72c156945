package app

import (
	"gorm.io/gorm"

	knowledgerepo "github.com/chorusapp/chorus-backend/internal/data/repos/knowledge"
	teamrepo "github.com/chorusapp/chorus-backend/internal/data/repos/team"
	"github.com/chorusapp/chorus-backend/internal/platform/logger"
)

type Repos struct {
	TeamRun        teamrepo.RunRepo
	KnowledgeDoc   knowledgerepo.DocRepo
	KnowledgeChunk knowledgerepo.ChunkRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		TeamRun:        teamrepo.NewRunRepo(db, log),
		KnowledgeDoc:   knowledgerepo.NewDocRepo(db, log),
		KnowledgeChunk: knowledgerepo.NewChunkRepo(db, log),
	}
}
