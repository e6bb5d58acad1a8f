package agent

import (
	"context"
	"log"
	"time"
)

// Reaper evicts sessions that have been idle longer than TTL.
type Reaper struct {
	Builder  *Builder
	TTL      time.Duration
	Interval time.Duration

	// OnEvict is called with the id of every evicted session.
	OnEvict []func(id string)
}

func NewReaper(b *Builder, ttl time.Duration) *Reaper {
	return &Reaper{
		Builder:  b,
		TTL:      ttl,
		Interval: time.Minute,
	}
}

// Start sweeps until ctx is done. A zero TTL disables eviction.
func (r *Reaper) Start(ctx context.Context) {
	if r.TTL <= 0 {
		return
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	log.Println("Session reaper started...")

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(ctx, now)
		}
	}
}

// Sweep evicts the sessions idle at now and returns their ids.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) []string {
	ids, err := r.Builder.Idle(ctx, now.Add(-r.TTL))
	if err != nil {
		log.Printf("Error listing idle sessions: %v", err)
	}

	var evicted []string
	for _, id := range ids {
		if err := r.Builder.Delete(ctx, id); err != nil {
			log.Printf("Error evicting session %s: %v", id, err)
			continue
		}
		evicted = append(evicted, id)
		for _, fn := range r.OnEvict {
			fn(id)
		}
	}
	if len(evicted) > 0 {
		log.Printf("Evicted %d idle sessions", len(evicted))
	}
	return evicted
}
