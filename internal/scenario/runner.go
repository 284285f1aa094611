package scenario

import (
	"context"
	"fmt"
	"time"

	"starcam-link/internal/command"
	"starcam-link/internal/link"
	"starcam-link/internal/logging"
	"starcam-link/internal/session"
)

// Controller is the part of the session a scenario drives.
type Controller interface {
	SendCommand(req command.Request) (command.Receipt, error)
	Status() session.Status
}

// Runner steps a Controller through a scenario.
type Runner struct {
	Ctl  Controller
	Poll time.Duration
	Now  func() time.Time
	// OnPhase, if set, is called as each phase is entered.
	OnPhase func(p Phase)
}

// phaseWatch turns status snapshots into trigger events for one phase.
type phaseWatch struct {
	baseRecords uint64
	startedAt   time.Time
	sawSweep    bool
}

func (w *phaseWatch) events(st session.Status, now time.Time) []Event {
	if st.FocusActive {
		w.sawSweep = true
	}
	evs := []Event{
		{Type: EventRecords, Value: int(st.Records - w.baseRecords)},
		{Type: EventElapsed, Value: int(now.Sub(w.startedAt) / time.Second)},
	}
	if w.sawSweep && !st.FocusActive {
		evs = append(evs, Event{Type: EventFocusSweepDone, Value: 1})
	}
	return evs
}

// Run enters the first phase and follows triggers until a phase without triggers
// has sent its command. It fails when the link drops or a command is rejected.
func (r *Runner) Run(ctx context.Context, s *Scenario) error {
	if err := s.Validate(); err != nil {
		return err
	}
	poll := r.Poll
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}
	log := logging.FromContext(ctx).With("scenario", s.Name)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	phase := s.Phases[0]
	for {
		log.Info("entering phase", "phase", phase.Name)
		if r.OnPhase != nil {
			r.OnPhase(phase)
		}
		if phase.Command != nil {
			receipt, err := r.Ctl.SendCommand(*phase.Command)
			if err != nil {
				return fmt.Errorf("phase %s: %w", phase.Name, err)
			}
			log.Info("phase command sent", "phase", phase.Name, "bytes", receipt.Bytes)
		}
		if len(phase.Triggers) == 0 {
			return nil
		}

		w := phaseWatch{baseRecords: r.Ctl.Status().Records, startedAt: now()}
		next := ""
		for next == "" {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
			st := r.Ctl.Status()
			if !st.Connected {
				return fmt.Errorf("phase %s: %w", phase.Name, link.ErrNotConnected)
			}
			for _, ev := range w.events(st, now()) {
				if n, ok := s.NextPhase(phase.Name, ev); ok {
					log.Info("trigger fired", "phase", phase.Name, "event", ev.Type, "value", ev.Value, "next", n)
					next = n
					break
				}
			}
		}
		phase, _ = s.Phase(next)
	}
}
