/*
Package tiered implements a provincial progressive-bracket plan processor.

PURPOSE:
  Teachers'-plan-style scheme: no basic exemption, jurisdiction-restricted
  eligibility, and a progressive rate schedule where different portions of
  earnings are taxed at different rates based on the member's cumulative
  YTD position within the year.

BRACKET ALLOCATION:
  The period's pensionable earnings are walked through the ordered tier
  list against a running YTD cursor (earnings already YTD plus earnings
  allocated in earlier tiers this call). Each tier's rates apply only to
  the amount falling within [previous threshold, tier threshold); the
  final tier is unbounded. The sum of per-tier contributions equals
  applying each tier's rate strictly to the in-tier portion: no
  double-counting, no gaps.

JURISDICTION:
  A member whose jurisdiction does not match the plan's fails hard with
  INVALID_PROVINCE - unlike age-ineligibility on the flat-rate plan, this
  indicates the member is enrolled in the wrong plan entirely, so no
  partial result is produced.

SEE ALSO:
  - pension/: Contract, rate registry, remittance lifecycle
  - flatrate/: The exemption + dual-cap sibling plan
*/
package tiered

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/pension-engine/pension"
)

// =============================================================================
// PROCESSOR
// =============================================================================

// Processor implements pension.PlanProcessor for a jurisdiction-restricted
// tiered plan.
type Processor struct {
	jurisdiction string
	tables       []*pension.ContributionRates

	registry   *pension.RateRegistry
	remittance *pension.RemittanceService
	clock      pension.Clock
	logger     pension.Logger
}

// New creates a processor restricted to the given jurisdiction (province
// code, e.g. "ON"). Initialize must be called before any calculation.
func New(jurisdiction string, tables ...*pension.ContributionRates) *Processor {
	return &Processor{
		jurisdiction: jurisdiction,
		tables:       tables,
	}
}

func (p *Processor) Type() pension.PlanType { return pension.PlanTiered }

// Jurisdiction returns the province this plan is restricted to.
func (p *Processor) Jurisdiction() string { return p.jurisdiction }

// Initialize loads the rate tables into the read-only registry and wires
// collaborators. Call once, before concurrent use.
func (p *Processor) Initialize(cfg pension.Config) error {
	cfg.Normalize()
	p.clock = cfg.Clock
	p.logger = cfg.Logger

	p.registry = pension.NewRateRegistry(cfg.Logger)
	for _, table := range p.tables {
		if table.PlanType == "" {
			table.PlanType = pension.PlanTiered
		}
		if table.PlanType != pension.PlanTiered {
			return fmt.Errorf("tiered: table for tax year %d has plan type %q", table.TaxYear, table.PlanType)
		}
		if !table.Tiered() {
			return fmt.Errorf("tiered: table for tax year %d has no tiers", table.TaxYear)
		}
		if err := p.registry.Load(table); err != nil {
			return err
		}
	}

	p.remittance = &pension.RemittanceService{
		Plan:          pension.PlanTiered,
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

// Capabilities: no age gate for this plan, so no min/max age.
func (p *Processor) Capabilities() pension.Capabilities {
	return pension.Capabilities{
		SupportsElectronicRemittance: true,
		SupportsBuyBack:              true,
		SupportsEarlyRetirement:      true,
	}
}

// =============================================================================
// CALCULATION
// =============================================================================

// CalculateContribution walks the period's pensionable earnings through
// the progressive brackets against the member's YTD position.
func (p *Processor) CalculateContribution(member pension.PensionMember, earnings pension.PensionableEarnings, ytd pension.YTD) (*pension.ContributionCalculation, error) {
	if err := pension.ValidatePeriod(earnings.PeriodStart, earnings.PeriodEnd); err != nil {
		return nil, pension.NewProcessorError(pension.PlanTiered, pension.CodeInvalidPeriod, err,
			"period %s to %s", earnings.PeriodStart.Format("2006-01-02"), earnings.PeriodEnd.Format("2006-01-02"))
	}

	// Hard error, not a zero result: a jurisdiction mismatch means the
	// member is enrolled in the wrong plan entirely.
	if member.Jurisdiction != "" && member.Jurisdiction != p.jurisdiction {
		return nil, pension.NewProcessorError(pension.PlanTiered, pension.CodeInvalidProvince, pension.ErrInvalidProvince,
			"member %s has jurisdiction %s, plan requires %s", member.ID, member.Jurisdiction, p.jurisdiction)
	}

	taxYear := pension.TaxYearOf(earnings.PeriodEnd)
	rates, err := p.registry.Lookup(pension.PlanTiered, taxYear)
	if err != nil {
		return nil, err
	}

	// No basic exemption: pensionable earnings are used as supplied.
	pensionable := pension.DecimalMax(decimal.Zero, earnings.PensionableEarnings)

	employee, employer := allocateTiers(rates.Tiers, ytd.PensionableEarnings, pensionable)

	// Same contribution-cap-after-earnings-cap policy as the flat-rate
	// plan: the employee-side excess comes off both sides.
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
	if pensionable.IsPositive() {
		effectiveRate = employee.Div(pensionable).Round(6)
	}

	return &pension.ContributionCalculation{
		PlanType:             pension.PlanTiered,
		MemberID:             member.ID,
		TaxYear:              taxYear,
		PeriodStart:          earnings.PeriodStart,
		PeriodEnd:            earnings.PeriodEnd,
		PensionableEarnings:  pensionable,
		BasicExemption:       decimal.Zero,
		EmployeeContribution: employee,
		EmployerContribution: employer,
		TotalContribution:    total,
		EffectiveRate:        effectiveRate,
		YTDAfter:             ytd.Add(pensionable, employee, employer),
		CalculatedAt:         p.clock(),
	}, nil
}

// allocateTiers distributes the period's earnings across brackets given
// the member's running YTD position, applying each tier's rates to the
// in-tier amount. The per-tier contributions are rounded to the cent as
// they accumulate, matching how per-bracket figures are reported.
func allocateTiers(tiers []pension.EarningsTier, ytdPosition, amount decimal.Decimal) (employee, employer decimal.Decimal) {
	employee = decimal.Zero
	employer = decimal.Zero

	cursor := ytdPosition
	remaining := amount

	for _, tier := range tiers {
		if remaining.IsZero() {
			break
		}

		var inTier decimal.Decimal
		if tier.Unbounded() {
			inTier = remaining
		} else {
			if cursor.GreaterThanOrEqual(tier.Threshold) {
				continue // bracket already exhausted by YTD position
			}
			inTier = pension.DecimalMin(remaining, tier.Threshold.Sub(cursor))
		}

		employee = employee.Add(pension.RoundCents(inTier.Mul(tier.EmployeeRate)))
		employer = employer.Add(pension.RoundCents(inTier.Mul(tier.EmployerRate)))
		cursor = cursor.Add(inTier)
		remaining = remaining.Sub(inTier)
	}
	return employee, employer
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
	return p.registry.Lookup(pension.PlanTiered, taxYear)
}

// IsPensionableEarnings classifies earnings types. The tiered plan treats
// bonuses and commissions as non-pensionable in addition to expense
// reimbursements and severance; only salary-like pay counts.
func (p *Processor) IsPensionableEarnings(_ pension.PensionMember, earningsType pension.EarningsType) bool {
	switch earningsType {
	case pension.EarningsRegular, pension.EarningsOvertime:
		return true
	default:
		return false
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
func (p *Processor) Years() []int { return p.registry.Years(pension.PlanTiered) }
