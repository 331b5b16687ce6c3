/*
rates.go - Versioned contribution-rate tables and the rate registry

PURPOSE:
  Holds the immutable rate tables every calculation depends on. Tables are
  keyed by (plan type, tax year) and loaded once at processor
  initialization; they are never mutated afterward. New tax years require
  a new entry, not an edit, preserving the ability to recompute any
  historical period exactly.

CRITICAL INVARIANTS:
  1. IMMUTABLE: A published (plan, year) table cannot be replaced.
  2. COMPLETE TIERS: Tiered tables form a contiguous, ascending partition
     of [0, inf); only the final tier is unbounded.
  3. SINGLE ACTIVE TABLE: Exactly one table governs a plan+date.

CAP CONSISTENCY:
  The yearly contribution maximum and the rate-times-earnings-maximum are
  set by different regulatory processes and can disagree in edge years.
  Load flags (logs, does not reject) any year where they diverge by more
  than one cent, since that usually indicates a data-entry error in the
  published table.

SEE ALSO:
  - processor.go: Processors consult the registry per calculation
  - factory/: Builds tables from plan-definition documents
*/
package pension

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONTRIBUTION RATES - One plan's rate table for one tax year
// =============================================================================

// ContributionRates is an immutable rate table. Rates are fractions
// (0.0595 means 5.95%). For flat-rate plans the EmployeeRate/EmployerRate
// pair applies; tiered plans carry Tiers instead and leave the flat
// fields zero.
type ContributionRates struct {
	PlanType PlanType
	TaxYear  int

	EmployeeRate decimal.Decimal
	EmployerRate decimal.Decimal

	// YearlyMaxPensionableEarnings caps YTD pensionable earnings. Zero
	// means uncapped (tiered plans with an unbounded top bracket).
	YearlyMaxPensionableEarnings decimal.Decimal

	// BasicExemptAmount is excluded from pensionable earnings, pro-rated
	// per pay period. Zero for plans without an exemption.
	BasicExemptAmount decimal.Decimal

	// YearlyMaxContribution caps YTD employee contributions. Zero means
	// uncapped.
	YearlyMaxContribution decimal.Decimal

	// Tiers, when present, replace the flat rates with a progressive
	// schedule. See EarningsTier.
	Tiers []EarningsTier

	EffectiveDate time.Time
	ExpiryDate    *time.Time // last covered date; nil means open-ended
}

// Tiered reports whether this table uses a progressive schedule.
func (r *ContributionRates) Tiered() bool { return len(r.Tiers) > 0 }

// EarningsTier is one progressive bracket. Threshold is the bracket's
// upper bound (exclusive of the next bracket); a zero Threshold marks the
// final, unbounded tier.
type EarningsTier struct {
	Threshold    decimal.Decimal
	EmployeeRate decimal.Decimal
	EmployerRate decimal.Decimal
}

// Unbounded reports whether this tier has no upper bound.
func (t EarningsTier) Unbounded() bool { return t.Threshold.IsZero() }

// =============================================================================
// RATE REGISTRY - Load once, read forever
// =============================================================================

// RateRegistry holds published rate tables. It is written during
// Initialize and read-only afterward; the mutex guards only the
// initialization window.
type RateRegistry struct {
	mu     sync.RWMutex
	tables map[PlanType]map[int]*ContributionRates
	logger Logger
}

func NewRateRegistry(logger Logger) *RateRegistry {
	if logger == nil {
		logger = NopLogger{}
	}
	return &RateRegistry{
		tables: make(map[PlanType]map[int]*ContributionRates),
		logger: logger,
	}
}

// Load registers an immutable rate table. Re-registering a published
// (plan, year) pair fails with ErrDuplicateRateTable.
func (r *RateRegistry) Load(table *ContributionRates) error {
	if err := r.validate(table); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	years, ok := r.tables[table.PlanType]
	if !ok {
		years = make(map[int]*ContributionRates)
		r.tables[table.PlanType] = years
	}
	if _, exists := years[table.TaxYear]; exists {
		return NewProcessorError(table.PlanType, CodeInvalidPeriod, ErrDuplicateRateTable,
			"rate table for tax year %d already published", table.TaxYear)
	}
	years[table.TaxYear] = table

	r.warnOnCapDivergence(table)
	return nil
}

// Lookup is a pure map read. A miss is fatal to the calculation call: it
// signals a configuration gap, not a data error, and is never retried
// internally.
func (r *RateRegistry) Lookup(plan PlanType, taxYear int) (*ContributionRates, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if table, ok := r.tables[plan][taxYear]; ok {
		return table, nil
	}
	return nil, NewProcessorError(plan, CodeRatesNotFound, ErrRatesNotFound,
		"no published rate table for tax year %d", taxYear)
}

// Years returns the published tax years for a plan, ascending.
func (r *RateRegistry) Years(plan PlanType) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	years := make([]int, 0, len(r.tables[plan]))
	for y := range r.tables[plan] {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// =============================================================================
// VALIDATION
// =============================================================================

func (r *RateRegistry) validate(table *ContributionRates) error {
	fail := func(format string, args ...any) error {
		return NewProcessorError(table.PlanType, CodeInvalidPeriod, ErrInvalidPeriod, format, args...)
	}

	if table.TaxYear < 1900 {
		return fail("implausible tax year %d", table.TaxYear)
	}
	if table.EffectiveDate.IsZero() {
		return fail("effective date required")
	}
	if table.ExpiryDate != nil && table.ExpiryDate.Before(table.EffectiveDate) {
		return fail("expiry date precedes effective date")
	}

	if table.Tiered() {
		return r.validateTiers(table, fail)
	}

	if !rateInRange(table.EmployeeRate) || !rateInRange(table.EmployerRate) {
		return fail("rates must be fractions in [0, 1]")
	}
	if table.BasicExemptAmount.IsNegative() {
		return fail("basic exemption cannot be negative")
	}
	if table.YearlyMaxPensionableEarnings.IsNegative() || table.YearlyMaxContribution.IsNegative() {
		return fail("yearly maxima cannot be negative")
	}
	return nil
}

func (r *RateRegistry) validateTiers(table *ContributionRates, fail func(string, ...any) error) error {
	prev := decimal.Zero
	for i, tier := range table.Tiers {
		if !rateInRange(tier.EmployeeRate) || !rateInRange(tier.EmployerRate) {
			return fail("tier %d: rates must be fractions in [0, 1]", i)
		}
		last := i == len(table.Tiers)-1
		if last {
			if !tier.Unbounded() {
				return fail("final tier must be unbounded")
			}
			continue
		}
		if tier.Unbounded() {
			return fail("tier %d: only the final tier may be unbounded", i)
		}
		if !tier.Threshold.GreaterThan(prev) {
			return fail("tier %d: thresholds must ascend", i)
		}
		prev = tier.Threshold
	}
	if len(table.Tiers) == 0 {
		return fail("tiered table requires at least one tier")
	}
	return nil
}

func rateInRange(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(decimal.NewFromInt(1))
}

// warnOnCapDivergence flags tax years where the published contribution
// maximum disagrees with rate x contributory-earnings maximum by more
// than one cent. The table is still accepted; the two ceilings come from
// different regulatory processes and capping applies them independently.
func (r *RateRegistry) warnOnCapDivergence(table *ContributionRates) {
	if table.Tiered() || table.YearlyMaxContribution.IsZero() || table.YearlyMaxPensionableEarnings.IsZero() {
		return
	}
	implied := RoundCents(table.YearlyMaxPensionableEarnings.Sub(table.BasicExemptAmount).Mul(table.EmployeeRate))
	diff := implied.Sub(table.YearlyMaxContribution).Abs()
	if diff.GreaterThan(MustDecimal("0.01")) {
		r.logger.Warn("published contribution cap diverges from rate-implied cap",
			"plan", string(table.PlanType),
			"tax_year", table.TaxYear,
			"published_max", table.YearlyMaxContribution.String(),
			"implied_max", implied.String(),
		)
	}
}
