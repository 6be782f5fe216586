package sweep

import (
	"context"
	"fmt"
	"log"
	"time"

	"parking-reservation-backend/config"
	"parking-reservation-backend/internal/calendar"
	"parking-reservation-backend/internal/model"
	"parking-reservation-backend/internal/notification"
	"parking-reservation-backend/internal/store"
)

// Service runs the time-driven status transitions.
type Service struct {
	enabled  bool
	schedule Schedule
	store    store.Store
	producer notification.Producer
	clock    calendar.Clock
}

// Result counts what one job run did.
type Result struct {
	Job       Job
	Selected  int
	Updated   int
	Conflicts int
}

// NewService creates a sweep service. Wall-clock times in cfg are read in the
// location of the clock.
func NewService(cfg config.SweepConfig, s store.Store, producer notification.Producer, clock calendar.Clock) (*Service, error) {
	schedule, err := ParseSchedule(cfg)
	if err != nil {
		return nil, err
	}
	if producer == nil {
		producer = notification.Nop{}
	}
	return &Service{
		enabled:  cfg.Enabled,
		schedule: schedule,
		store:    s,
		producer: producer,
		clock:    clock,
	}, nil
}

// Run fires the scheduled jobs until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.enabled {
		log.Println("Sweeps are disabled. Not starting.")
		return
	}
	log.Println("Starting sweep scheduler...")

	for {
		now := s.clock.Now()
		next, jobs := s.schedule.Next(now)
		if next.IsZero() {
			log.Println("Sweep schedule is empty. Stopping.")
			return
		}
		log.Printf("Next sweep at %s: %v", next.Format(time.RFC3339), jobs)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("Sweep scheduler shutting down.")
			return
		case <-timer.C:
			for _, job := range jobs {
				if _, err := s.RunJob(ctx, job); err != nil {
					log.Printf("Sweep %s failed, retrying at the next tick: %v", job, err)
				}
			}
		}
	}
}

// RunJob executes one job immediately.
func (s *Service) RunJob(ctx context.Context, job Job) (Result, error) {
	switch job {
	case JobExpire:
		return s.ExpireNoShows(ctx)
	case JobComplete:
		return s.CompleteFinished(ctx)
	case JobRemind:
		return s.SendReminders(ctx)
	default:
		return Result{Job: job}, fmt.Errorf("unknown sweep job %q", job)
	}
}

// ExpireNoShows moves today's ACTIVE reservations that have started without
// a check-in to EXPIRED. Reservations that have not started yet (the
// afternoon ones at a morning deadline) are left for a later run.
func (s *Service) ExpireNoShows(ctx context.Context) (Result, error) {
	now := s.clock.Now()
	notCheckedIn := false
	return s.transition(ctx, JobExpire, model.StatusExpired, now, store.ReservationFilter{
		Day:         calendar.DateOf(now).String(),
		Statuses:    []model.ReservationStatus{model.StatusActive},
		CheckedIn:   &notCheckedIn,
		StartBefore: now,
	})
}

// CompleteFinished moves CHECKED_IN reservations whose end has passed to
// COMPLETED.
func (s *Service) CompleteFinished(ctx context.Context) (Result, error) {
	now := s.clock.Now()
	return s.transition(ctx, JobComplete, model.StatusCompleted, now, store.ReservationFilter{
		Statuses:  []model.ReservationStatus{model.StatusCheckedIn},
		EndBefore: now,
	})
}

func (s *Service) transition(ctx context.Context, job Job, next model.ReservationStatus, now time.Time, f store.ReservationFilter) (Result, error) {
	res := Result{Job: job}

	rs, err := s.store.QueryReservations(ctx, f)
	if err != nil {
		return res, fmt.Errorf("%s: select candidates: %w", job, err)
	}
	res.Selected = len(rs)
	log.Printf("Sweep %s: %d reservation(s) selected", job, res.Selected)
	if len(rs) == 0 {
		return res, nil
	}

	batch := make([]*model.Reservation, 0, len(rs))
	for i := range rs {
		if err := rs[i].Transition(next, now); err != nil {
			log.Printf("Sweep %s: skipping reservation %s: %v", job, rs[i].ID, err)
			continue
		}
		batch = append(batch, &rs[i])
	}

	versions := make([]int64, len(batch))
	for i, r := range batch {
		versions[i] = r.Version
	}

	out, err := s.store.SaveReservations(ctx, batch)
	if err != nil {
		return res, fmt.Errorf("%s: %d selected, none written: %w", job, res.Selected, err)
	}
	res.Updated = out.Updated
	res.Conflicts = out.Conflicts
	log.Printf("Sweep %s: %d of %d updated, %d changed concurrently", job, res.Updated, res.Selected, res.Conflicts)

	for i, r := range batch {
		// Rows that lost a race keep their version.
		if r.Version != versions[i] {
			s.audit(ctx, job, r, now)
		}
	}
	return res, nil
}

// SendReminders enqueues a reminder for every ACTIVE reservation on the next
// working day.
func (s *Service) SendReminders(ctx context.Context) (Result, error) {
	res := Result{Job: JobRemind}
	now := s.clock.Now()
	tomorrow := calendar.DateOf(now).NextWorkingDay()

	rs, err := s.store.QueryReservations(ctx, store.ReservationFilter{
		Day:      tomorrow.String(),
		Statuses: []model.ReservationStatus{model.StatusActive},
	})
	if err != nil {
		return res, fmt.Errorf("%s: select candidates: %w", JobRemind, err)
	}
	res.Selected = len(rs)

	loc := now.Location()
	addresses := make(map[string]string)
	for _, r := range rs {
		addr, ok := addresses[r.UserID]
		if !ok {
			u, err := s.store.GetUser(ctx, r.UserID)
			if err != nil {
				log.Printf("Sweep %s: cannot resolve owner %s: %v", JobRemind, r.UserID, err)
			} else {
				addr = u.Username
			}
			addresses[r.UserID] = addr
		}
		if addr == "" {
			continue
		}
		s.producer.Enqueue(ctx, notification.KindReminder, addr, map[string]string{
			notification.FieldReservationID: r.ID,
			notification.FieldSpotID:        r.SpotID,
			notification.FieldDate:          r.Day,
			notification.FieldTimeSlot:      string(model.SlotOf(r.StartAt.In(loc), r.EndAt.In(loc))),
		})
		res.Updated++
	}
	log.Printf("Sweep %s: %d reminder(s) queued for %s", JobRemind, res.Updated, tomorrow)
	return res, nil
}

func (s *Service) audit(ctx context.Context, job Job, r *model.Reservation, now time.Time) {
	entry := &model.AuditLog{
		Timestamp:  now,
		ActorID:    "system",
		Action:     string(job),
		EntityType: "RESERVATION",
		EntityID:   r.ID,
		Details:    map[string]any{"status": string(r.Status)},
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		log.Printf("Failed to write audit entry for reservation %s: %v", r.ID, err)
	}
}
