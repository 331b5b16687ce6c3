/*
processor.go - The polymorphic plan processor contract

PURPOSE:
  Every plan variant (flat-rate, tiered, future additions) implements
  PlanProcessor. Callers depend only on this contract, never on a
  concrete plan type, so new plans are added without touching caller
  code. Selection happens by PlanType at construction.

STATELESSNESS:
  Apart from the read-only rate cache built during Initialize, a
  processor holds no mutable state. CalculateContribution calls for
  different members, periods, or plans may run fully in parallel with no
  locking: YTD state is caller-owned and passed explicitly.

SEE ALSO:
  - flatrate/: Exemption + dual-cap implementation
  - tiered/: Progressive-bracket implementation
  - remittance.go: Lifecycle operations shared by all plans
*/
package pension

import (
	"context"
	"time"
)

// =============================================================================
// CONFIG - Supplied once at Initialize
// =============================================================================

// Config wires a processor to its environment and collaborators.
// Environment selects the remittance path: sandbox synthesizes
// confirmations, production requires an external Submitter.
type Config struct {
	Environment           Environment
	EmployerAccountNumber string

	// Collaborators. Logger defaults to a no-op sink; Clock defaults to
	// time.Now. Stores are required for remittance and statement
	// operations but not for calculation.
	Logger       Logger
	Clock        Clock
	Calculations CalculationStore
	Remittances  RemittanceStore
	Submitter    RemittanceSubmitter

	// SubmitTimeout bounds the external submission call. Zero selects
	// the default.
	SubmitTimeout time.Duration
}

// Normalize fills collaborator defaults in place.
func (c *Config) Normalize() {
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Environment == "" {
		c.Environment = EnvSandbox
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = DefaultSubmitTimeout
	}
}

// =============================================================================
// PLAN PROCESSOR - The polymorphism boundary
// =============================================================================

// PlanProcessor is the contract every plan implementation satisfies.
type PlanProcessor interface {
	// Type returns the tagged plan type used for selection.
	Type() PlanType

	// Initialize loads rate tables into the read-only registry and wires
	// collaborators. Must be called exactly once, before any concurrent
	// reads begin.
	Initialize(cfg Config) error

	// CalculateContribution computes one pay period's contributions.
	// YTD figures are caller-owned; the returned calculation includes the
	// updated YTD snapshot for the caller to persist.
	CalculateContribution(member PensionMember, earnings PensionableEarnings, ytd YTD) (*ContributionCalculation, error)

	// ContributionRates returns the table for a tax year; 0 selects the
	// current year per the processor clock.
	ContributionRates(taxYear int) (*ContributionRates, error)

	// IsPensionableEarnings reports whether an earnings type counts
	// toward pensionable earnings for this plan and member.
	IsPensionableEarnings(member PensionMember, earningsType EarningsType) bool

	// SubmitRemittance transitions a draft remittance through the
	// submission state machine. Idempotent for confirmed remittances.
	SubmitRemittance(ctx context.Context, id RemittanceID) (*ContributionRemittance, error)

	// GenerateAnnualStatement aggregates persisted calculations for a
	// member and tax year. Idempotent: same inputs, same totals.
	GenerateAnnualStatement(ctx context.Context, memberID MemberID, taxYear int) (*AnnualPensionStatement, error)

	// Capabilities returns the plan's static capability flags.
	Capabilities() Capabilities
}
