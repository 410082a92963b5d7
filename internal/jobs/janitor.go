package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/jobs/config"
)

const (
	DefaultSchedule   = "@every 5m"
	DefaultStaleAfter = 15 * time.Minute
	runTimeout        = time.Minute
)

type StaleMarker interface {
	UploadMarkStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Janitor переводит зависшие в processando партии в erro
type Janitor struct {
	cron       *cron.Cron
	store      StaleMarker
	staleAfter time.Duration
	zaplog     *zap.Logger
	now        func() time.Time
}

func NewJanitor(cfg config.Config, store StaleMarker, zaplog *zap.Logger) (*Janitor, error) {
	schedule := cfg.JanitorSchedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	staleAfter := cfg.JanitorStaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	j := &Janitor{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		store:      store,
		staleAfter: staleAfter,
		zaplog:     zaplog,
		now:        time.Now,
	}
	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return nil, fmt.Errorf("unable to schedule janitor: %w", err)
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
	j.zaplog.Info("janitor scheduler started", zap.Duration("stale_after", j.staleAfter))
}

func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	return j.store.UploadMarkStale(ctx, j.now().Add(-j.staleAfter))
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	n, err := j.RunOnce(ctx)
	if err != nil {
		j.zaplog.Error("janitor run failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.zaplog.Info("stale upload batches marked as failed", zap.Int64("count", n))
	}
}
