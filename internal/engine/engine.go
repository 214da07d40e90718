package engine

import (
	"database/sql"
	"time"

	"cadence/internal/config"
	"cadence/internal/events"
	"cadence/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time

	cache    *rangeCache
	inflight *inflightSet
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Now:      time.Now,
		cache:    newRangeCache(),
		inflight: newInflightSet(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) invalidate(userID string) {
	if e.cache != nil {
		e.cache.invalidateUser(userID)
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
