package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/infrastructure/logger"
	"github.com/bnema/tunecast/internal/port"
)

// sweepPageSize caps one sweep's working set. A tune left behind is picked up
// by the next interval, so the cap needs to be generous, not exact.
const sweepPageSize = 1000

// Dispatcher is the timer-driven sweep: it finds due pending tunes across all
// users, refreshes each owner's credentials once, and fans the group out to
// the Fulfiller. User groups run concurrently; the upload bound lives inside
// the Fulfiller and spans all groups.
type Dispatcher struct {
	tunes     port.TuneStore
	users     port.UserStore
	refresher *CredentialRefresher
	fulfiller *Fulfiller
	interval  time.Duration
	now       func() time.Time
}

func NewDispatcher(tunes port.TuneStore, users port.UserStore, refresher *CredentialRefresher, fulfiller *Fulfiller, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		tunes:     tunes,
		users:     users,
		refresher: refresher,
		fulfiller: fulfiller,
		interval:  interval,
		now:       time.Now,
	}
}

// Run sweeps at the configured interval until the context is cancelled.
// Overlap with a slow previous sweep is tolerated: the executed flag in the
// store is the single source of truth, so a tune is at-least-once, never
// twice-after-done.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	logger.Info.Printf("dispatcher running, sweep interval %s", d.interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info.Printf("dispatcher shutting down")
			return
		case <-ticker.C:
			if err := d.DispatchDue(ctx); err != nil {
				logger.Error.Printf("sweep failed: %v", err)
			}
		}
	}
}

// DispatchDue runs one sweep: query due pending tunes, group per user,
// process groups concurrently. A single tune's failure is logged and never
// aborts its siblings or the sweep.
func (d *Dispatcher) DispatchDue(ctx context.Context) error {
	now := d.now().UTC()
	executed := false
	due, total, err := d.tunes.List(ctx, port.TuneFilter{
		Before:   &now,
		Executed: &executed,
		Page:     1,
		Limit:    sweepPageSize,
	})
	if err != nil {
		return fmt.Errorf("query due tunes: %w", err)
	}
	if len(due) == 0 {
		return nil
	}
	logger.Info.Printf("sweep found %d due tunes (%d total pending)", len(due), total)

	groups := make(map[int64][]*domain.Tune)
	for _, t := range due {
		groups[t.UserID] = append(groups[t.UserID], t)
	}

	var wg sync.WaitGroup
	for userID, group := range groups {
		wg.Add(1)
		go func(userID int64, group []*domain.Tune) {
			defer wg.Done()
			d.dispatchUserGroup(ctx, userID, group)
		}(userID, group)
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) dispatchUserGroup(ctx context.Context, userID int64, group []*domain.Tune) {
	user, err := d.users.GetUserByID(ctx, userID)
	if err != nil {
		logger.Error.Printf("skipping %d tunes: load user %d: %v", len(group), userID, err)
		return
	}

	creds, err := d.refresher.EnsureValid(ctx, user)
	if err != nil {
		var reauth *domain.ReauthRequiredError
		if errors.As(err, &reauth) {
			logger.Warn.Printf("skipping %d tunes: user %d needs re-authorization", len(group), userID)
		} else {
			logger.Error.Printf("skipping %d tunes: credentials for user %d: %v", len(group), userID, err)
		}
		return
	}

	// Re-check eligibility at dispatch time: credential refresh can lag the
	// query, and an overlapping sweep may have finished a tune meanwhile.
	now := d.now().UTC()
	for _, t := range group {
		if !t.Due(now) {
			continue
		}
		if err := d.fulfiller.FulfillOne(ctx, t, creds); err != nil {
			logger.Error.Printf("fulfillment failed, tune stays pending: %v", err)
		}
	}
}

// FulfillNow is the on-demand path: a user acting now expects an immediate,
// correctly-authorized attempt, so credentials are refreshed up front and the
// due-date filter is bypassed.
func (d *Dispatcher) FulfillNow(ctx context.Context, tuneID int64) error {
	tune, err := d.tunes.Get(ctx, tuneID)
	if err != nil {
		return err
	}
	if tune.Executed {
		return domain.ErrAlreadyExecuted
	}

	user, err := d.users.GetUserByID(ctx, tune.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", tune.UserID, err)
	}

	creds, err := d.refresher.EnsureValid(ctx, user)
	if err != nil {
		return err
	}
	return d.fulfiller.FulfillOne(ctx, tune, creds)
}
