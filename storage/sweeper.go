package storage

import (
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/audio-analyzer/media"
)

// SweepJob removes orphaned derived waveforms and, when retention is set,
// stored media older than retention.
type SweepJob struct {
	store     *Store
	grace     time.Duration
	retention time.Duration
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewSweepJob(store *Store, grace, retention time.Duration, log logrus.FieldLogger) *SweepJob {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SweepJob{store: store, grace: grace, retention: retention, log: log.WithField("component", "sweeper"), now: time.Now}
}

// Run implements cron.Job.
func (j *SweepJob) Run() {
	removed, err := j.Sweep()
	if err != nil {
		j.log.WithError(err).Warn("sweep failed")
		return
	}
	if removed > 0 {
		j.log.WithField("removed", removed).Info("sweep finished")
	}
}

// Sweep performs one pass and reports how many files it removed.
func (j *SweepJob) Sweep() (int, error) {
	entries, err := os.ReadDir(j.store.Dir())
	if err != nil {
		return 0, err
	}
	now := j.now()
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		age := now.Sub(info.ModTime())
		derived := strings.HasSuffix(e.Name(), media.DerivedSuffix)
		switch {
		case derived && age > j.grace:
		case !derived && j.retention > 0 && age > j.retention:
		default:
			continue
		}
		if err := j.store.Delete(e.Name()); err != nil {
			j.log.WithError(err).WithField("file", e.Name()).Warn("remove expired file")
			continue
		}
		removed++
	}
	return removed, nil
}

// Scheduler runs the sweep job on a cron spec.
type Scheduler struct {
	cron *cron.Cron
	log  logrus.FieldLogger
}

func NewScheduler(spec string, job *SweepJob) (*Scheduler, error) {
	c := cron.New()
	if _, err := c.AddJob(spec, job); err != nil {
		return nil, err
	}
	return &Scheduler{cron: c, log: job.log}, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits up to 10s for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Second):
		s.log.Warn("sweeper stop timed out")
	}
}
