package sched

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// Job is a named unit of periodic work.
type Job interface {
	Name() string
	Schedule() string // cron expression or descriptor like "@hourly"
	Run(ctx context.Context) error
}

// Scheduler runs registered jobs on their cron schedules. Each job holds a
// per-job mutex so a slow run never overlaps with the next tick of the same
// job (TryLock — atomic, no race).
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   []Job
	locks  map[string]*sync.Mutex
	cancel context.CancelFunc
}

// New creates a scheduler. Jobs must be registered before Start().
func New() *Scheduler {
	return &Scheduler{locks: make(map[string]*sync.Mutex)}
}

// Register adds a job. Duplicate names are an error.
func (s *Scheduler) Register(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.locks[j.Name()]; exists {
		return fmt.Errorf("sched: duplicate job name %q", j.Name())
	}
	s.locks[j.Name()] = &sync.Mutex{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start begins executing registered jobs. Returns an error if any job has
// an invalid schedule expression.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	parser := cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	s.cron = cron.New(cron.WithParser(parser))

	for _, j := range s.jobs {
		job := j
		lock := s.locks[job.Name()]

		_, err := s.cron.AddFunc(job.Schedule(), func() {
			if !lock.TryLock() {
				log.Printf("sched: job %s still running, skipping tick", job.Name())
				return
			}
			defer lock.Unlock()

			if err := job.Run(ctx); err != nil {
				log.Printf("sched: job %s failed: %v", job.Name(), err)
			}
		})
		if err != nil {
			cancel()
			return fmt.Errorf("sched: invalid schedule for job %q: %w", job.Name(), err)
		}
	}

	s.cron.Start()
	log.Printf("sched: started with %d jobs", len(s.jobs))
	return nil
}

// Stop shuts the scheduler down, waiting for in-flight jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		log.Printf("sched: stopped")
	}
}
