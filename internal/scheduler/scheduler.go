package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/apalacios/aemet-opendata/internal/weather"
)

// Scheduler periodically refreshes the station catalog and prefetches
// snapshots for the configured locations.
type Scheduler struct {
	scheduler       *gocron.Scheduler
	service         *weather.Service
	queries         []weather.Query
	fetchInterval   time.Duration
	catalogInterval time.Duration
}

// New creates a Scheduler over the given service and query list.
func New(queries []weather.Query, fetchInterval, catalogInterval time.Duration, service *weather.Service) *Scheduler {
	return &Scheduler{
		scheduler:       gocron.NewScheduler(time.UTC),
		service:         service,
		queries:         queries,
		fetchInterval:   fetchInterval,
		catalogInterval: catalogInterval,
	}
}

// Start schedules the periodic jobs and starts the underlying scheduler.
// The catalog refresh job always runs; the prefetch job only when locations
// are configured.
func (s *Scheduler) Start() error {
	catalogMinutes := int(s.catalogInterval.Minutes())
	if catalogMinutes <= 0 {
		catalogMinutes = 24 * 60
	}
	if _, err := s.scheduler.Every(catalogMinutes).Minutes().Do(s.refreshCatalog); err != nil {
		return err
	}

	if len(s.queries) == 0 {
		log.Println("scheduler: no locations configured; skipping snapshot prefetch job")
	} else {
		fetchMinutes := int(s.fetchInterval.Minutes())
		if fetchMinutes <= 0 {
			fetchMinutes = 15
		}
		if _, err := s.scheduler.Every(fetchMinutes).Minutes().Do(s.prefetch); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) refreshCatalog() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := s.service.LoadCatalog(ctx); err != nil {
		log.Printf("scheduler: catalog refresh failed: %v", err)
	}
}

func (s *Scheduler) prefetch() {
	log.Println("scheduler: running snapshot prefetch job")

	var wg sync.WaitGroup
	for _, q := range s.queries {
		q := q
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if _, err := s.service.GetSnapshot(ctx, q); err != nil {
				log.Printf("scheduler: prefetch failed for %+v: %v", q, err)
			}
		}()
	}
	wg.Wait()
	log.Println("scheduler: completed snapshot prefetch job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
