package services

import (
	"time"

	"github.com/bobuk/opscal/internal/models"
)

// DeriveDisplayStatus projects an event and its latest tokens into the
// status shown to operators. The first matching rule wins:
//
//  1. a pending shift exists
//  2. the latest shift token was confirmed and applied within window
//  3. a cancelled event was rebooked
//  4. a cancelled event has an unused rebook token
//  5. a cancelled event's latest token is an unconfirmed cancel notice
func DeriveDisplayStatus(ev *models.CalendarEvent, latest *models.MaydayToken, rebook *models.RebookToken, now time.Time, window time.Duration) models.DisplayStatus {
	if ev.HasPendingShift() {
		return models.DisplayShiftPending
	}
	if latest != nil && latest.Kind == models.MaydayShift && latest.Confirmed && latest.Applied {
		at := latest.ConfirmedAt
		if at == nil {
			at = latest.AppliedAt
		}
		if at != nil && now.Sub(*at) <= window {
			return models.DisplayShiftConfirmed
		}
	}
	if ev.Status != models.StatusCancelled {
		return models.DisplayNone
	}
	if ev.RebookedAt != nil || (rebook != nil && rebook.Used) {
		return models.DisplayRebooked
	}
	if rebook != nil {
		return models.DisplayAwaitingRebooking
	}
	if latest != nil && latest.Kind == models.MaydayCancel && !latest.Confirmed {
		return models.DisplayCancellationPending
	}
	return models.DisplayNone
}
