package pension

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD HELPERS - Pro-ration, classification, tax year, age
// =============================================================================

// PeriodKind classifies a contribution period by its length. Used for
// reporting and for callers that key remittance schedules off period type.
type PeriodKind string

const (
	PeriodDaily       PeriodKind = "daily"
	PeriodWeekly      PeriodKind = "weekly"
	PeriodBiweekly    PeriodKind = "biweekly"
	PeriodSemiMonthly PeriodKind = "semi_monthly"
	PeriodMonthly     PeriodKind = "monthly"
	PeriodQuarterly   PeriodKind = "quarterly"
	PeriodAnnual      PeriodKind = "annual"
	PeriodCustom      PeriodKind = "custom"
)

var daysInYear = decimal.NewFromInt(365)

// PeriodDays returns the inclusive day count between start and end.
// A biweekly period Jan 1 - Jan 14 has 14 days.
func PeriodDays(start, end time.Time) int {
	s := dateOnly(start)
	e := dateOnly(end)
	return int(e.Sub(s).Hours()/24) + 1
}

// ValidatePeriod rejects periods whose end precedes their start.
func ValidatePeriod(start, end time.Time) error {
	if dateOnly(end).Before(dateOnly(start)) {
		return ErrInvalidPeriod
	}
	return nil
}

// PeriodFactor returns the fraction of a year this period covers:
// inclusive days divided by 365. Used to pro-rate the basic exemption.
func PeriodFactor(start, end time.Time) decimal.Decimal {
	return decimal.NewFromInt(int64(PeriodDays(start, end))).Div(daysInYear)
}

// ClassifyPeriod maps a period's day count onto a PeriodKind.
// Boundaries are inclusive ranges rather than exact counts so that
// calendar months (28-31 days) and leap years classify correctly.
func ClassifyPeriod(start, end time.Time) PeriodKind {
	switch days := PeriodDays(start, end); {
	case days == 1:
		return PeriodDaily
	case days == 7:
		return PeriodWeekly
	case days == 14:
		return PeriodBiweekly
	case days >= 15 && days <= 16:
		return PeriodSemiMonthly
	case days >= 28 && days <= 31:
		return PeriodMonthly
	case days >= 90 && days <= 92:
		return PeriodQuarterly
	case days >= 365 && days <= 366:
		return PeriodAnnual
	default:
		return PeriodCustom
	}
}

// TaxYearOf returns the tax year governing a period: the calendar year of
// its end date. A pay period spanning a year boundary is taxed under the
// year it concludes in.
func TaxYearOf(periodEnd time.Time) int {
	return periodEnd.Year()
}

// AgeAt returns the member's age in whole years at the given date.
func AgeAt(dateOfBirth, at time.Time) int {
	dob := dateOnly(dateOfBirth)
	ref := dateOnly(at)
	age := ref.Year() - dob.Year()
	// Birthday not yet reached this year.
	if ref.Month() < dob.Month() || (ref.Month() == dob.Month() && ref.Day() < dob.Day()) {
		age--
	}
	return age
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
