package models

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/threepl_backend/utils"
)

// BillingPeriod is an inclusive range of calendar days.
type BillingPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (p BillingPeriod) Contains(day time.Time) bool {
	day = utils.DateOnly(day)
	return !day.Before(p.Start) && !day.After(p.End)
}

func (p BillingPeriod) String() string {
	return p.Start.Format("2006-01-02") + ".." + p.End.Format("2006-01-02")
}

// PreviousBillingPeriod returns the last complete period of cycle that ended before asOf.
// Weeks run Monday to Sunday; months and quarters are calendar periods.
func PreviousBillingPeriod(cycle BillingCycle, asOf time.Time) (BillingPeriod, error) {
	day := utils.DateOnly(asOf)
	switch cycle {
	case BillingCycleWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		thisMonday := day.AddDate(0, 0, -offset)
		return BillingPeriod{Start: thisMonday.AddDate(0, 0, -7), End: thisMonday.AddDate(0, 0, -1)}, nil
	case BillingCycleMonthly:
		firstOfMonth := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return BillingPeriod{Start: firstOfMonth.AddDate(0, -1, 0), End: firstOfMonth.AddDate(0, 0, -1)}, nil
	case BillingCycleQuarterly:
		quarterMonth := time.Month((int(day.Month())-1)/3*3 + 1)
		firstOfQuarter := time.Date(day.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)
		return BillingPeriod{Start: firstOfQuarter.AddDate(0, -3, 0), End: firstOfQuarter.AddDate(0, 0, -1)}, nil
	}
	return BillingPeriod{}, fmt.Errorf("%w: unknown billing cycle %q", ErrValidation, cycle)
}
