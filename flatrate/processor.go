/*
Package flatrate implements the national flat-rate pension plan processor.

PURPOSE:
  CPP/QPP-style plan: a single employee/employer rate applied to
  pensionable earnings after a pro-rated basic exemption, with two
  independent annual ceilings (pensionable earnings, then employee
  contributions).

ALGORITHM (per pay period):
  1. Resolve the tax year from the period end date; fetch rates.
  2. Age gate: members outside [minimum, maximum] age get an explicit
     zero-valued calculation, NOT an error, so a payroll batch proceeds
     without special-casing ineligible members.
  3. Period factor = inclusive period days / 365.
  4. Exemption for period = basic exempt amount x factor, rounded to the cent.
  5. Pensionable earnings = max(0, gross - exemption).
  6. Earnings cap: this period's pensionable earnings cannot push YTD
     pensionable earnings past the yearly maximum.
  7. Contributions = round-half-up(capped earnings x rate), per side.
  8. Contribution cap: applied after the earnings cap, independently -
     the two maxima come from separate regulatory processes and can
     diverge slightly from rate x earnings-max due to published rounding.

SEE ALSO:
  - pension/: Contract, rate registry, remittance lifecycle
  - tiered/: The progressive-bracket sibling plan
*/
package flatrate

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/pension-engine/pension"
)

// Default statutory age bounds for the flat-rate plan.
const (
	DefaultMinimumAge = 18
	DefaultMaximumAge = 70
)

// =============================================================================
// PROCESSOR
// =============================================================================

// Processor implements pension.PlanProcessor for the flat-rate plan.
// Stateless per call after Initialize: the registry is written once and
// read-only thereafter.
type Processor struct {
	tables []*pension.ContributionRates

	minimumAge int
	maximumAge int

	registry   *pension.RateRegistry
	remittance *pension.RemittanceService
	clock      pension.Clock
	logger     pension.Logger
}

// New creates a processor holding the given rate tables. Initialize must
// be called before any calculation.
func New(tables ...*pension.ContributionRates) *Processor {
	return &Processor{
		tables:     tables,
		minimumAge: DefaultMinimumAge,
		maximumAge: DefaultMaximumAge,
	}
}

func (p *Processor) Type() pension.PlanType { return pension.PlanFlatRate }

// Initialize loads the rate tables into the read-only registry and wires
// collaborators. Call once, before concurrent use.
func (p *Processor) Initialize(cfg pension.Config) error {
	cfg.Normalize()
	p.clock = cfg.Clock
	p.logger = cfg.Logger

	p.registry = pension.NewRateRegistry(cfg.Logger)
	for _, table := range p.tables {
		if table.PlanType == "" {
			table.PlanType = pension.PlanFlatRate
		}
		if table.PlanType != pension.PlanFlatRate {
			return fmt.Errorf("flatrate: table for tax year %d has plan type %q", table.TaxYear, table.PlanType)
		}
		if err := p.registry.Load(table); err != nil {
			return err
		}
	}

	p.remittance = &pension.RemittanceService{
		Plan:          pension.PlanFlatRate,
		Environment:   cfg.Environment,
		AccountNumber: cfg.EmployerAccountNumber,
		Remittances:   cfg.Remittances,
		Calculations:  cfg.Calculations,
		Submitter:     cfg.Submitter,
		Logger:        cfg.Logger,
		Clock:         cfg.Clock,
		Timeout:       cfg.SubmitTimeout,
	}
	return nil
}

func (p *Processor) Capabilities() pension.Capabilities {
	minAge, maxAge := p.minimumAge, p.maximumAge
	return pension.Capabilities{
		SupportsElectronicRemittance: true,
		SupportsBuyBack:              false,
		SupportsEarlyRetirement:      true,
		MinimumAge:                   &minAge,
		MaximumAge:                   &maxAge,
	}
}

// =============================================================================
// CALCULATION
// =============================================================================

// CalculateContribution applies the exemption + dual-cap algorithm.
func (p *Processor) CalculateContribution(member pension.PensionMember, earnings pension.PensionableEarnings, ytd pension.YTD) (*pension.ContributionCalculation, error) {
	if err := pension.ValidatePeriod(earnings.PeriodStart, earnings.PeriodEnd); err != nil {
		return nil, pension.NewProcessorError(pension.PlanFlatRate, pension.CodeInvalidPeriod, err,
			"period %s to %s", earnings.PeriodStart.Format("2006-01-02"), earnings.PeriodEnd.Format("2006-01-02"))
	}

	taxYear := pension.TaxYearOf(earnings.PeriodEnd)
	rates, err := p.registry.Lookup(pension.PlanFlatRate, taxYear)
	if err != nil {
		return nil, err
	}

	// Age-ineligibility is a valid zero-value result, never an error, so
	// batch runs are not interrupted by individually ineligible members.
	// A missing date of birth is treated the same way.
	if !p.eligibleByAge(member, earnings) {
		return p.zeroCalculation(member, earnings, ytd, taxYear), nil
	}

	factor := pension.PeriodFactor(earnings.PeriodStart, earnings.PeriodEnd)
	exemption := pension.RoundCents(rates.BasicExemptAmount.Mul(factor))

	pensionable := pension.DecimalMax(decimal.Zero, earnings.GrossEarnings.Sub(exemption))

	// Earnings cap: reduce by the excess over the yearly maximum, floor 0.
	capped := pensionable
	if rates.YearlyMaxPensionableEarnings.IsPositive() {
		projected := ytd.PensionableEarnings.Add(pensionable)
		if projected.GreaterThan(rates.YearlyMaxPensionableEarnings) {
			capped = pension.DecimalMax(decimal.Zero,
				rates.YearlyMaxPensionableEarnings.Sub(ytd.PensionableEarnings))
		}
	}

	employee := pension.RoundCents(capped.Mul(rates.EmployeeRate))
	employer := pension.RoundCents(capped.Mul(rates.EmployerRate))

	// Contribution cap, applied after the earnings cap. The excess of the
	// employee side over the yearly maximum comes off both sides.
	if rates.YearlyMaxContribution.IsPositive() {
		projected := ytd.EmployeeContributions.Add(employee)
		if projected.GreaterThan(rates.YearlyMaxContribution) {
			excess := projected.Sub(rates.YearlyMaxContribution)
			employee = pension.DecimalMax(decimal.Zero, employee.Sub(excess))
			employer = pension.DecimalMax(decimal.Zero, employer.Sub(excess))
		}
	}

	total := employee.Add(employer)
	effectiveRate := decimal.Zero
	if capped.IsPositive() {
		effectiveRate = employee.Div(capped).Round(6)
	}

	return &pension.ContributionCalculation{
		PlanType:             pension.PlanFlatRate,
		MemberID:             member.ID,
		TaxYear:              taxYear,
		PeriodStart:          earnings.PeriodStart,
		PeriodEnd:            earnings.PeriodEnd,
		PensionableEarnings:  capped,
		BasicExemption:       exemption,
		EmployeeContribution: employee,
		EmployerContribution: employer,
		TotalContribution:    total,
		EffectiveRate:        effectiveRate,
		YTDAfter:             ytd.Add(capped, employee, employer),
		CalculatedAt:         p.clock(),
	}, nil
}

func (p *Processor) eligibleByAge(member pension.PensionMember, earnings pension.PensionableEarnings) bool {
	if member.DateOfBirth.IsZero() {
		p.logger.Warn("member has no date of birth, treating as ineligible",
			"member_id", string(member.ID))
		return false
	}
	age := pension.AgeAt(member.DateOfBirth, earnings.PeriodEnd)
	return age >= p.minimumAge && age <= p.maximumAge
}

func (p *Processor) zeroCalculation(member pension.PensionMember, earnings pension.PensionableEarnings, ytd pension.YTD, taxYear int) *pension.ContributionCalculation {
	return &pension.ContributionCalculation{
		PlanType:             pension.PlanFlatRate,
		MemberID:             member.ID,
		TaxYear:              taxYear,
		PeriodStart:          earnings.PeriodStart,
		PeriodEnd:            earnings.PeriodEnd,
		PensionableEarnings:  decimal.Zero,
		BasicExemption:       decimal.Zero,
		EmployeeContribution: decimal.Zero,
		EmployerContribution: decimal.Zero,
		TotalContribution:    decimal.Zero,
		EffectiveRate:        decimal.Zero,
		YTDAfter:             ytd,
		CalculatedAt:         p.clock(),
	}
}

// =============================================================================
// RATES, PENSIONABILITY, LIFECYCLE
// =============================================================================

// ContributionRates returns the table for a tax year; 0 selects the
// current year per the processor clock.
func (p *Processor) ContributionRates(taxYear int) (*pension.ContributionRates, error) {
	if taxYear == 0 {
		taxYear = p.clock().Year()
	}
	return p.registry.Lookup(pension.PlanFlatRate, taxYear)
}

// IsPensionableEarnings classifies earnings types. Regular pay, overtime,
// bonuses, and commissions are pensionable; expense reimbursements and
// severance are not. Unknown types default to pensionable.
func (p *Processor) IsPensionableEarnings(_ pension.PensionMember, earningsType pension.EarningsType) bool {
	switch earningsType {
	case pension.EarningsReimbursement, pension.EarningsSeverance:
		return false
	default:
		return true
	}
}

func (p *Processor) SubmitRemittance(ctx context.Context, id pension.RemittanceID) (*pension.ContributionRemittance, error) {
	return p.remittance.Submit(ctx, id)
}

func (p *Processor) GenerateAnnualStatement(ctx context.Context, memberID pension.MemberID, taxYear int) (*pension.AnnualPensionStatement, error) {
	return p.remittance.GenerateStatement(ctx, memberID, taxYear)
}

// Remittance exposes the lifecycle service for callers that build
// remittances before submitting them.
func (p *Processor) Remittance() *pension.RemittanceService { return p.remittance }

// Years returns the tax years with loaded rate tables.
func (p *Processor) Years() []int { return p.registry.Years(pension.PlanFlatRate) }
