package reminder

import (
	"fmt"
	"time"

	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/models"
)

// Outcome classifies an item for a given evaluation date.
type Outcome string

const (
	OutcomeDue           Outcome = "due"
	OutcomeNotDue        Outcome = "not_due"
	OutcomeMissed        Outcome = "missed"
	OutcomeTerminal      Outcome = "terminal"
	OutcomeMisconfigured Outcome = "misconfigured"
)

// Evaluation is the result of Evaluate. Offset is only meaningful when the
// outcome is due; Err is only set when the item is misconfigured.
type Evaluation struct {
	Item     models.Item
	Outcome  Outcome
	DaysLeft int
	Offset   int
	Err      error
}

// Evaluate decides whether item fires on date. It fires only when the whole
// number of calendar days until expiry equals one of the rule offsets, so
// offsets already behind the date are never backfilled.
//
// An item past expiry is terminal if it reached reminder_sent and missed
// otherwise. Log history is not consulted here: callers resolve a missed
// outcome with Settle, and the planner filters due items per recipient and
// channel.
func Evaluate(item models.Item, date time.Time) Evaluation {
	ev := Evaluation{
		Item:     item,
		DaysLeft: models.DaysBetween(date, item.ExpiryDate),
	}

	if err := validateItem(item); err != nil {
		ev.Outcome = OutcomeMisconfigured
		ev.Err = err
		return ev
	}

	switch {
	case item.WorkflowStatus.Terminal():
		ev.Outcome = OutcomeTerminal
	case ev.DaysLeft < 0 && item.WorkflowStatus == models.StatusReminderSent:
		ev.Outcome = OutcomeTerminal
	case ev.DaysLeft < 0:
		ev.Outcome = OutcomeMissed
	case containsOffset(item.Offsets, ev.DaysLeft):
		ev.Outcome = OutcomeDue
		ev.Offset = ev.DaysLeft
	default:
		ev.Outcome = OutcomeNotDue
	}
	return ev
}

// Settle resolves a missed evaluation against the notification log. An
// expired item with any logged attempt is terminal.
func (ev Evaluation) Settle(attempted bool) Evaluation {
	if ev.Outcome == OutcomeMissed && attempted {
		ev.Outcome = OutcomeTerminal
	}
	return ev
}

func validateItem(item models.Item) error {
	switch {
	case item.ReminderRuleID == nil:
		return apperrors.NewConfigurationError(item.ID, "item has no reminder rule")
	case item.DepartmentID == nil:
		return apperrors.NewConfigurationError(item.ID, "item has no department")
	case item.CategoryID == nil:
		return apperrors.NewConfigurationError(item.ID, "item has no category")
	case len(item.Offsets) == 0:
		return apperrors.NewConfigurationError(item.ID, fmt.Sprintf("reminder rule %d has no offsets", *item.ReminderRuleID))
	}
	for _, o := range item.Offsets {
		if o < 0 {
			return apperrors.NewConfigurationError(item.ID, fmt.Sprintf("reminder rule %d has negative offset %d", *item.ReminderRuleID, o))
		}
	}
	return nil
}

func containsOffset(offsets []int, days int) bool {
	for _, o := range offsets {
		if o == days {
			return true
		}
	}
	return false
}

// NextFiring returns the next date on or after date at which an item with
// the given expiry and offsets fires, or false if no offset remains ahead.
func NextFiring(expiry time.Time, offsets []int, date time.Time) (time.Time, int, bool) {
	daysLeft := models.DaysBetween(date, expiry)
	best := -1
	for _, o := range offsets {
		if o >= 0 && o <= daysLeft && o > best {
			best = o
		}
	}
	if best < 0 {
		return time.Time{}, 0, false
	}
	return models.DateOf(expiry).AddDate(0, 0, -best), best, true
}

// AnnotateNext fills NextReminder on every view that still has a firing day
// ahead of date.
func AnnotateNext(views []models.ItemView, date time.Time) {
	for i := range views {
		v := &views[i]
		if v.WorkflowStatus.Terminal() {
			continue
		}
		expiry, err := models.ParseDate(v.ExpiryDate)
		if err != nil {
			continue
		}
		if next, offset, ok := NextFiring(expiry, v.Offsets, date); ok {
			v.NextReminder = &models.NextReminder{Date: next.Format(models.DateLayout), Offset: offset}
		}
	}
}
