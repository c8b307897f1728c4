package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/privacy-observatory/crawler/internal/config"
	"github.com/privacy-observatory/crawler/internal/storage"
)

// RunFunc drives a single task to completion and returns its Observation.
// The Scheduler never inspects the browser directly - it only knows how to
// fan a task set out across RunFunc calls and persist what comes back.
type RunFunc func(ctx context.Context, task storage.Task) storage.Observation

// ProgressFunc reports scheduler-level task lifecycle events, distinct from
// the engine's inside-a-task phase callbacks.
type ProgressFunc func(taskKey, event, detail string)

// Stats summarizes one Scheduler run.
type Stats struct {
	TotalTasks   int
	Completed    int64
	Succeeded    int64
	Failed       int64
	Skipped      int64
	Retried      int64
	StartTime    time.Time
	ElapsedTime  time.Duration
}

// Scheduler runs the cartesian product of sites x consent modes with bounded
// parallelism, resume-skip, and per-task retries.
type Scheduler struct {
	cfg      *config.Config
	store    *storage.Database
	run      RunFunc
	onEvent  ProgressFunc
	limiter  *InterTaskLimiter

	completed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	retried   atomic.Int64
	startTime time.Time
}

// New builds a Scheduler. run is called once per attempt of each task;
// store is queried for resume-skip and written to after every attempt.
func New(cfg *config.Config, store *storage.Database, run RunFunc, onEvent ProgressFunc) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		store:   store,
		run:     run,
		onEvent: onEvent,
		limiter: NewInterTaskLimiter(time.Duration(cfg.Crawler.InterSiteDelayMS) * time.Millisecond),
	}
}

// Run executes every (site, mode) task in sites x modes, honoring resume
// (skipping any task with a prior successful Observation already stored)
// and retrying non-SUCCESS outcomes up to cfg.Crawler.MaxRetries times,
// always with a fresh RunFunc invocation - never by re-entering a previous
// attempt's state.
func (s *Scheduler) Run(ctx context.Context, sites []storage.Site, modes []storage.ConsentMode, resume bool) Stats {
	s.startTime = time.Now()

	tasks := make([]storage.Task, 0, len(sites)*len(modes))
	for _, site := range sites {
		for _, mode := range modes {
			tasks = append(tasks, storage.Task{Site: site, ConsentMode: mode})
		}
	}

	concurrency := s.cfg.Crawler.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, task := range tasks {
		task := task
		if resume {
			if done, err := s.store.HasSession(task.Site.ID, task.ConsentMode); err == nil && done {
				s.skipped.Add(1)
				s.event(task, "skipped", "resume: prior session found")
				continue
			}
		}

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.runWithRetries(ctx, task)

			select {
			case <-ctx.Done():
			default:
				s.limiter.Wait(ctx)
			}
		}()
	}

	wg.Wait()

	return Stats{
		TotalTasks:  len(tasks),
		Completed:   s.completed.Load(),
		Succeeded:   s.succeeded.Load(),
		Failed:      s.failed.Load(),
		Skipped:     s.skipped.Load(),
		Retried:     s.retried.Load(),
		StartTime:   s.startTime,
		ElapsedTime: time.Since(s.startTime),
	}
}

func (s *Scheduler) runWithRetries(ctx context.Context, task storage.Task) {
	maxRetries := s.cfg.Crawler.MaxRetries
	var obs storage.Observation

	for attempt := 0; attempt <= maxRetries; attempt++ {
		task.Attempt = attempt
		if attempt > 0 {
			s.retried.Add(1)
			s.event(task, "retrying", fmt.Sprintf("attempt %d", attempt+1))
			time.Sleep(2 * time.Second)
		}

		obs = s.run(ctx, task)
		obs.Session.RetryCount = attempt

		if obs.Session.Status == storage.StatusSuccess {
			break
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}

	s.completed.Add(1)
	if obs.Session.Status == storage.StatusSuccess {
		s.succeeded.Add(1)
		s.event(task, "succeeded", obs.Session.FinalURL)
	} else {
		s.failed.Add(1)
		s.event(task, "failed", string(obs.Session.Status)+": "+obs.Session.ErrorMessage)
	}

	if _, err := s.store.SaveCrawlResult(&obs); err != nil {
		log.Printf("persist observation for %s (%s): %v", task.Site.Domain, task.ConsentMode, err)
	}
}

func (s *Scheduler) event(task storage.Task, phase, detail string) {
	if s.onEvent == nil {
		return
	}
	s.onEvent(fmt.Sprintf("%s:%s", task.Site.Domain, task.ConsentMode), phase, detail)
}
