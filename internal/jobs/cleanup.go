package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quillread/peersync-go/internal/config"
	"github.com/quillread/peersync-go/internal/repository"
)

// CleanupJob periodically deletes finished sync sessions and reaps active
// ones whose peer crashed without disconnecting.
type CleanupJob struct {
	sessionRepo repository.SyncSessionRepository
	interval    time.Duration
	maxAge      time.Duration
	done        chan struct{}
}

func NewCleanupJob(sessionRepo repository.SyncSessionRepository, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		sessionRepo: sessionRepo,
		interval:    interval,
		maxAge:      config.SyncSessionMaxAge,
		done:        make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := j.sessionRepo.DeleteStale(ctx, time.Now().Add(-j.maxAge))
	if err != nil {
		log.Error().Err(err).Msg("failed to cleanup sync sessions")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("cleaned up sync sessions")
	}
}
