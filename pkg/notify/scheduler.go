/*
 * Copyright 2025 Home Relay Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/quietlane/home-relay/pkg/fanout"
	"github.com/quietlane/home-relay/pkg/logger"
	"github.com/quietlane/home-relay/pkg/models"
)

// Scheduler periodically evaluates the due set and pushes it to live
// viewers. One instance runs per process.
type Scheduler struct {
	store *Store
	bus   *fanout.Bus
	cfg   models.NotificationConfig
	log   logger.Logger
	now   func() time.Time
}

func NewScheduler(store *Store, bus *fanout.Bus, cfg models.NotificationConfig, log logger.Logger) *Scheduler {
	return &Scheduler{
		store: store,
		bus:   bus,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// SetNowFunc overrides the scheduler's clock, for tests.
func (s *Scheduler) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Run evaluates once immediately and then on every tick until the context
// is canceled. Evaluation failures are logged; the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.CheckNow(ctx); err != nil {
		s.log.Error().Err(err).Msg("Notification check failed")
	}

	ticker := time.NewTicker(s.cfg.TickInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.CheckNow(ctx); err != nil {
				s.log.Error().Err(err).Msg("Notification check failed")
			}
		}
	}
}

// Due evaluates the due set without side effects, for plain reads that
// must not push anything to live viewers.
func (s *Scheduler) Due(ctx context.Context) ([]models.DueNotification, error) {
	return s.store.DueEvents(ctx, s.now())
}

// CheckNow evaluates the due set and, when non-empty, broadcasts it as one
// batch on the notification channel. It returns the batch either way so the
// HTTP layer can serve on-demand checks.
func (s *Scheduler) CheckNow(ctx context.Context) ([]models.DueNotification, error) {
	due, err := s.store.DueEvents(ctx, s.now())
	if err != nil {
		return nil, err
	}

	if len(due) > 0 {
		s.bus.Broadcast(fanout.ChannelNotification, map[string]any{
			"type":          "notifications",
			"notifications": due,
		})
	}

	return due, nil
}

// DismissFor applies a dismissal of the given mode to an event. For
// DismissForHours, hours <= 0 selects the configured default.
func (s *Scheduler) DismissFor(ctx context.Context, id int64, mode models.DismissMode, hours int) error {
	now := s.now()

	var until time.Time

	switch mode {
	case models.DismissForHours, "":
		if hours <= 0 {
			hours = s.cfg.DefaultDismissHours
		}

		until = now.Add(time.Duration(hours) * time.Hour)
	case models.DismissUntilMidnight:
		until = nextMidnight(now)
	case models.DismissPermanent:
		until = now.Add(models.PermanentDismissWindow)
	default:
		return fmt.Errorf("invalid dismiss mode %q", mode)
	}

	return s.store.Dismiss(ctx, id, until)
}

// nextMidnight returns the start of the next local day.
func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}
