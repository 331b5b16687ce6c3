/*
Package pension provides the core pension contribution calculation engine.

PURPOSE:
  This package contains plan-agnostic types and algorithms for computing
  statutory pension contributions. Whether the plan is a flat-rate national
  plan with a basic exemption or a tiered provincial plan with progressive
  brackets, the same contract handles rate lookup, period pro-ration,
  contribution capping, and the remittance/statement lifecycle.

KEY CONCEPTS IN THIS FILE (types.go):
  - PensionMember: The contributing individual for one calculation
  - PensionableEarnings: One pay period's earnings subject to contribution
  - YTD: Caller-owned year-to-date accumulators, passed in on every call
  - ContributionCalculation: The immutable result of one calculation

DESIGN PRINCIPLES:
  1. Statelessness: The engine holds no per-member state; YTD figures are
     owned and persisted by the caller and supplied explicitly.
  2. Precision: Uses decimal.Decimal to avoid floating-point errors.
     Rounding is half-up to the cent, applied once per contribution figure.
  3. Auditability: Every calculation carries its inputs, post-cap figures,
     and updated YTD snapshot.

USAGE:
  calc, err := processor.CalculateContribution(member, earnings, ytd)
  if err != nil { ... }
  // caller persists calc and calc.YTDAfter

SEE ALSO:
  - rates.go: Rate tables and the versioned registry
  - period.go: Period pro-ration and eligibility helpers
  - processor.go: The polymorphic plan processor contract
  - remittance.go: Remittance submission and annual statements
*/
package pension

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PLAN TYPES AND ENVIRONMENT
// =============================================================================

// PlanType identifies a concrete plan implementation.
type PlanType string

const (
	PlanFlatRate PlanType = "flat_rate" // national CPP/QPP-style plan
	PlanTiered   PlanType = "tiered"    // provincial progressive-bracket plan
)

// Environment selects the remittance submission path.
type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string
type RemittanceID string

// =============================================================================
// MEMBER
// =============================================================================

// PensionMember is the contributing individual for a calculation.
// DateOfBirth is required wherever age-gating applies; Jurisdiction is
// required wherever the plan is jurisdiction-restricted.
type PensionMember struct {
	ID               MemberID
	Name             string
	DateOfBirth      time.Time
	Jurisdiction     string // province code, e.g. "ON", "BC"
	EmploymentStatus string // "active", "on_leave", "terminated"
}

// =============================================================================
// EARNINGS
// =============================================================================

// EarningsType classifies a component of gross pay for pensionability checks.
type EarningsType string

const (
	EarningsRegular       EarningsType = "regular"
	EarningsOvertime      EarningsType = "overtime"
	EarningsBonus         EarningsType = "bonus"
	EarningsCommission    EarningsType = "commission"
	EarningsReimbursement EarningsType = "expense_reimbursement"
	EarningsSeverance     EarningsType = "severance"
)

// PensionableEarnings is one pay period's earnings subject to contribution.
// PeriodStart and PeriodEnd are inclusive; the tax year is the calendar
// year of PeriodEnd, so a period spanning a year boundary is taxed under
// the year it concludes in.
type PensionableEarnings struct {
	GrossEarnings       decimal.Decimal
	PensionableEarnings decimal.Decimal // plan-defined subset of gross
	PeriodStart         time.Time
	PeriodEnd           time.Time
}

// =============================================================================
// YTD - Caller-owned year-to-date accumulators
// =============================================================================

// YTD bundles the year-to-date figures the caller persists between calls.
// The engine never mutates stored YTD state; it returns updated figures
// for the caller to persist.
type YTD struct {
	PensionableEarnings   decimal.Decimal
	EmployeeContributions decimal.Decimal
	EmployerContributions decimal.Decimal
}

// Add returns a new YTD with the period's post-cap figures accumulated.
func (y YTD) Add(earnings, employee, employer decimal.Decimal) YTD {
	return YTD{
		PensionableEarnings:   y.PensionableEarnings.Add(earnings),
		EmployeeContributions: y.EmployeeContributions.Add(employee),
		EmployerContributions: y.EmployerContributions.Add(employer),
	}
}

// =============================================================================
// CONTRIBUTION CALCULATION - Result of one calculation call
// =============================================================================

// ContributionCalculation is the result of a single calculateContribution
// call. Invariant: EmployeeContribution + EmployerContribution equals
// TotalContribution exactly, for every plan and every input.
type ContributionCalculation struct {
	PlanType PlanType
	MemberID MemberID
	TaxYear  int

	PeriodStart time.Time
	PeriodEnd   time.Time

	// Post-cap figures for this period.
	PensionableEarnings  decimal.Decimal
	BasicExemption       decimal.Decimal // zero for plans without an exemption
	EmployeeContribution decimal.Decimal
	EmployerContribution decimal.Decimal
	TotalContribution    decimal.Decimal

	// EffectiveRate is the blended employee rate (contribution over
	// pensionable earnings) for reporting. Not used in further math.
	EffectiveRate decimal.Decimal

	// YTDAfter is the caller-supplied YTD plus this period's post-cap
	// amounts. The caller persists this for the next call.
	YTDAfter YTD

	CalculatedAt time.Time
}

// IsZero reports whether the calculation carries no monetary effect
// (e.g. an age-ineligible member in a batch run).
func (c *ContributionCalculation) IsZero() bool {
	return c.TotalContribution.IsZero() && c.PensionableEarnings.IsZero()
}

// =============================================================================
// CAPABILITIES - Static flags declared by each plan implementation
// =============================================================================

// Capabilities describes what a plan implementation supports. Age bounds
// are nil when the plan has no age gate.
type Capabilities struct {
	SupportsElectronicRemittance bool
	SupportsBuyBack              bool
	SupportsEarlyRetirement      bool
	MinimumAge                   *int
	MaximumAge                   *int
}

// =============================================================================
// MONEY HELPERS
// =============================================================================

// Clock supplies the current time. Injected so CalculatedAt and
// confirmation numbers are deterministic under test.
type Clock func() time.Time

// RoundCents rounds to the nearest cent, half away from zero. All monetary
// figures are non-negative here, so this is round-half-up.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// MustDecimal parses a decimal literal, returning zero on failure.
// Intended for constants and seed data, not user input.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DecimalMax returns the larger of a and b.
func DecimalMax(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// DecimalMin returns the smaller of a and b.
func DecimalMin(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
