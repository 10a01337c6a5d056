package kds

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/kitchen-display/models"
)

// RequestTransition validates a status change against the state machine,
// applies it optimistically, then confirms it with the feed. When the
// confirmation fails the order returns to its previous status and a
// *CommandError is returned.
func (e *Engine) RequestTransition(ctx context.Context, id uint, next models.Status) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, next)
	}

	e.mu.Lock()
	change, err := e.store.ApplyLocalStatusChange(id, next)
	if err != nil {
		e.mu.Unlock()
		e.metrics.Commands.WithLabelValues("status", "rejected").Inc()
		return err
	}
	// entering preparing starts the countdown now, leaving it waits for confirmation
	if next == models.StatusPreparing {
		e.startTimer(change.Order)
	}
	e.mu.Unlock()
	e.dispatch(outbox{changed: true})

	log := e.log.WithFields(logrus.Fields{"order_id": id, "from": change.From, "to": next})
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CommandTimeout)
	remoteErr := e.commands.ConfirmStatus(cctx, id, next)
	cancel()

	e.mu.Lock()
	if remoteErr != nil {
		cmdErr := &CommandError{OrderID: id, Action: "status change", Target: string(next), Err: remoteErr}
		e.store.RollbackLocalStatus(id, cmdErr.Error())
		if next == models.StatusPreparing {
			e.timers.OnOrderLeftPreparing(id)
		}
		out := outbox{changed: true}
		out.alerts = append(out.alerts, e.alerts.Record(models.NotificationCommandError, id, cmdErr.Error()))
		// back in preparing: an expiry held during the attempt is due now
		if x, held := e.heldExpiry[id]; held {
			delete(e.heldExpiry, id)
			if n, ok := e.expiryAlert(x); ok {
				out.alerts = append(out.alerts, n)
			}
		}
		e.mu.Unlock()

		e.metrics.Commands.WithLabelValues("status", "failed").Inc()
		log.WithError(remoteErr).Warn("status change rolled back")
		e.dispatch(out)
		return cmdErr
	}

	e.store.ConfirmLocalStatus(id)
	delete(e.heldExpiry, id)
	if change.From == models.StatusPreparing {
		e.timers.OnOrderLeftPreparing(id)
	}
	var out outbox
	out.changed = true
	if next == models.StatusReady {
		msg := fmt.Sprintf("%s is ready", change.Order.Label())
		if n, ok := e.alerts.Notify(models.NotificationOrderReady, id, string(models.StatusReady), msg); ok {
			out.alerts = append(out.alerts, n)
		}
	}
	e.mu.Unlock()

	e.metrics.Commands.WithLabelValues("status", "confirmed").Inc()
	log.Info("status change confirmed")
	e.dispatch(out)
	return nil
}

// RequestPriorityChange follows the same optimistic, confirm or roll back
// pattern as RequestTransition without a state machine constraint.
func (e *Engine) RequestPriorityChange(ctx context.Context, id uint, priority models.Priority) error {
	e.mu.Lock()
	prev, err := e.store.ApplyLocalPriorityChange(id, priority)
	e.mu.Unlock()
	if err != nil {
		e.metrics.Commands.WithLabelValues("priority", "rejected").Inc()
		return err
	}
	e.dispatch(outbox{changed: true})

	log := e.log.WithFields(logrus.Fields{"order_id": id, "from": prev, "to": priority})
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CommandTimeout)
	remoteErr := e.commands.ConfirmPriority(cctx, id, priority)
	cancel()

	e.mu.Lock()
	if remoteErr != nil {
		cmdErr := &CommandError{OrderID: id, Action: "priority change", Target: string(priority), Err: remoteErr}
		e.store.RollbackLocalPriority(id, cmdErr.Error())
		n := e.alerts.Record(models.NotificationCommandError, id, cmdErr.Error())
		e.mu.Unlock()

		e.metrics.Commands.WithLabelValues("priority", "failed").Inc()
		log.WithError(remoteErr).Warn("priority change rolled back")
		e.dispatch(outbox{alerts: []models.Notification{n}, changed: true})
		return cmdErr
	}
	e.store.ConfirmLocalPriority(id)
	e.mu.Unlock()

	e.metrics.Commands.WithLabelValues("priority", "confirmed").Inc()
	log.Info("priority change confirmed")
	e.dispatch(outbox{changed: true})
	return nil
}
