package handlers

import (
	"time"

	"gallery-server/internal/backfill"
	"gallery-server/internal/database"
	"gallery-server/internal/pipeline"
)

type Handlers struct {
	pipe      *pipeline.Pipeline
	db        *database.Database
	backfill  *backfill.Runner
	startTime time.Time
}

func New(pipe *pipeline.Pipeline, db *database.Database, bf *backfill.Runner) *Handlers {
	return &Handlers{
		pipe:      pipe,
		db:        db,
		backfill:  bf,
		startTime: time.Now(),
	}
}
