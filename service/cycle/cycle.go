// Package cycle owns the submission-cycle singleton: advancing it
// once a day and reading the live window.
package cycle

import (
	"context"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aux-fm/auxio/db"
	"github.com/aux-fm/auxio/errs"
	"github.com/aux-fm/auxio/models"
)

// RevealNotifier is woken exactly once when a cycle's reveal time
// arrives.
type RevealNotifier interface {
	NotifyReveal(cycle *models.Cycle)
}

type Advancer struct {
	db       *db.DB
	clock    clockwork.Clock
	minDelay time.Duration
	maxDelay time.Duration
	notifier RevealNotifier
	logger   *log.Logger
}

func NewAdvancer(database *db.DB, clock clockwork.Clock, minDelay, maxDelay time.Duration, notifier RevealNotifier) *Advancer {
	if maxDelay <= minDelay {
		maxDelay = minDelay + time.Hour
	}

	return &Advancer{
		db:       database,
		clock:    clock,
		minDelay: minDelay,
		maxDelay: maxDelay,
		notifier: notifier,
		logger:   log.New(os.Stdout, "cycle: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// Advance picks the next reveal time uniformly at random inside the
// configured window, persists it, and schedules one reveal wake-up.
// The external scheduler calls this once per day; a duplicate fire is
// tolerated with last-write-wins semantics.
func (a *Advancer) Advance(ctx context.Context) (*models.Cycle, error) {
	const op errs.Op = "cycle.Advance"

	now := a.clock.Now().UTC()
	delay := a.minDelay + time.Duration(rand.Int63n(int64(a.maxDelay-a.minDelay)))
	reveal := now.Add(delay)

	cyc, err := a.db.AdvanceCycle(reveal, now)
	if err != nil {
		return nil, errs.E(op, err)
	}

	a.logger.Printf("advanced to cycle %d, reveal in %s", cyc.Number, delay.Round(time.Minute))

	if a.notifier != nil {
		go a.wakeAtReveal(cyc, delay)
	}

	return cyc, nil
}

func (a *Advancer) wakeAtReveal(cyc *models.Cycle, delay time.Duration) {
	<-a.clock.After(delay)

	// A later advance supersedes this wake-up.
	live, err := a.db.GetCycle()
	if err != nil {
		a.logger.Printf("reveal wake-up for cycle %d: %v", cyc.Number, err)
		return
	}
	if live.Number != cyc.Number {
		return
	}

	a.notifier.NotifyReveal(cyc)
}

// Current returns the live cycle.
func (a *Advancer) Current(ctx context.Context) (*models.Cycle, error) {
	const op errs.Op = "cycle.Current"

	cyc, err := a.db.GetCycle()
	if err != nil {
		return nil, errs.E(op, err)
	}

	return cyc, nil
}
