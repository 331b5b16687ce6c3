/*
remittance.go - Remittance submission and annual-statement lifecycle

PURPOSE:
  Aggregates calculation output into remittances for the plan
  administrator and into year-end member statements. Shared by every plan
  implementation; the processors embed a RemittanceService rather than
  reimplementing the state machine.

STATE MACHINE:
  draft -> submitted -> {confirmed | failed}

  Transitions are monotonic forward only. A confirmed remittance is never
  reopened; corrections require a new remittance referencing the
  original. Re-submitting a confirmed remittance is a no-op returning the
  existing confirmation, which is what makes caller-side retries safe.

SUBMISSION PATHS:
  sandbox:    synthesizes a confirmation number deterministically derived
              from submission time plus a random suffix, then confirms.
  production: calls the external administrator endpoint through the
              RemittanceSubmitter collaborator under a bounded timeout.
              A transport failure leaves the remittance in "submitted"
              (retryable), never terminal "failed" - the submission may
              have succeeded remotely.

SEE ALSO:
  - processor.go: PlanProcessor exposes these operations
  - store/sqlite: Persistent store implementations
  - store/memory.go (pension/store): Test store
*/
package pension

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultSubmitTimeout bounds the external submission call. Timeouts are
// surfaced as retryable failures, not terminal status.
const DefaultSubmitTimeout = 30 * time.Second

// =============================================================================
// REMITTANCE - Aggregated submission to the plan administrator
// =============================================================================

type RemittanceStatus string

const (
	RemittanceDraft     RemittanceStatus = "draft"
	RemittanceSubmitted RemittanceStatus = "submitted"
	RemittanceConfirmed RemittanceStatus = "confirmed"
	RemittanceFailed    RemittanceStatus = "failed"
)

// CanTransition enforces the forward-only state machine.
func (s RemittanceStatus) CanTransition(to RemittanceStatus) bool {
	switch s {
	case RemittanceDraft:
		return to == RemittanceSubmitted
	case RemittanceSubmitted:
		return to == RemittanceConfirmed || to == RemittanceFailed
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s RemittanceStatus) Terminal() bool {
	return s == RemittanceConfirmed || s == RemittanceFailed
}

// ContributionRemittance is an aggregated submission for one period.
type ContributionRemittance struct {
	ID       RemittanceID
	PlanType PlanType

	PeriodStart time.Time
	PeriodEnd   time.Time

	TotalEmployeeContributions decimal.Decimal
	TotalEmployerContributions decimal.Decimal
	TotalContributions         decimal.Decimal

	MemberIDs []MemberID

	Status             RemittanceStatus
	ConfirmationNumber string

	CreatedAt   time.Time
	SubmittedAt *time.Time
	ConfirmedAt *time.Time
}

// =============================================================================
// ANNUAL STATEMENT - Year-end summary for one member/plan/year
// =============================================================================

// AnnualPensionStatement is derived, read-only, and regenerable from
// ledger data; it is never mutated in place.
type AnnualPensionStatement struct {
	MemberID MemberID
	PlanType PlanType
	TaxYear  int

	TotalPensionableEarnings   decimal.Decimal
	TotalEmployeeContributions decimal.Decimal
	TotalEmployerContributions decimal.Decimal
	TotalContributions         decimal.Decimal

	// ContributionMonths counts distinct calendar months with a non-zero
	// total contribution.
	ContributionMonths int
	CalculationCount   int

	GeneratedAt time.Time
}

// =============================================================================
// STORES - Persistence collaborators (implemented elsewhere)
// =============================================================================

// CalculationStore is the caller-owned contribution ledger the statement
// operation aggregates from. Append-only: corrections are new records.
type CalculationStore interface {
	Append(ctx context.Context, calc ContributionCalculation) error

	// ListByMemberYear returns a member's calculations for a plan and tax
	// year, ordered by period end.
	ListByMemberYear(ctx context.Context, plan PlanType, memberID MemberID, taxYear int) ([]ContributionCalculation, error)

	// ListByPeriod returns all calculations for a plan whose period end
	// falls in [from, to], ordered by period end. Used to build remittances.
	ListByPeriod(ctx context.Context, plan PlanType, from, to time.Time) ([]ContributionCalculation, error)
}

// RemittanceStore persists remittance records.
type RemittanceStore interface {
	Create(ctx context.Context, rem *ContributionRemittance) error
	Get(ctx context.Context, id RemittanceID) (*ContributionRemittance, error)
	Update(ctx context.Context, rem *ContributionRemittance) error
}

// RemittanceSubmitter is the external government/administrator submission
// endpoint, reachable only in production. The concrete protocol is
// plan-specific and out of scope; the engine defines only the request
// intent and the confirmation it expects back.
type RemittanceSubmitter interface {
	Submit(ctx context.Context, rem *ContributionRemittance) (confirmationNumber string, err error)
}

// =============================================================================
// REMITTANCE SERVICE - Shared lifecycle implementation
// =============================================================================

// RemittanceService implements the submission state machine and statement
// aggregation for one plan. Plan processors embed it.
type RemittanceService struct {
	Plan          PlanType
	Environment   Environment
	AccountNumber string

	Remittances  RemittanceStore
	Calculations CalculationStore
	Submitter    RemittanceSubmitter

	Logger  Logger
	Clock   Clock
	Timeout time.Duration
}

// CreateRemittance aggregates calculations into a draft remittance.
// Zero-valued calculations (ineligible members) are skipped; their
// members do not appear on the remittance.
func (rs *RemittanceService) CreateRemittance(ctx context.Context, periodStart, periodEnd time.Time, calcs []ContributionCalculation) (*ContributionRemittance, error) {
	if err := ValidatePeriod(periodStart, periodEnd); err != nil {
		return nil, NewProcessorError(rs.Plan, CodeInvalidPeriod, err, "remittance period")
	}

	rem := &ContributionRemittance{
		ID:                         RemittanceID(uuid.NewString()),
		PlanType:                   rs.Plan,
		PeriodStart:                periodStart,
		PeriodEnd:                  periodEnd,
		TotalEmployeeContributions: decimal.Zero,
		TotalEmployerContributions: decimal.Zero,
		TotalContributions:         decimal.Zero,
		Status:                     RemittanceDraft,
		CreatedAt:                  rs.Clock(),
	}

	seen := make(map[MemberID]bool)
	for _, c := range calcs {
		if c.IsZero() {
			continue
		}
		rem.TotalEmployeeContributions = rem.TotalEmployeeContributions.Add(c.EmployeeContribution)
		rem.TotalEmployerContributions = rem.TotalEmployerContributions.Add(c.EmployerContribution)
		rem.TotalContributions = rem.TotalContributions.Add(c.TotalContribution)
		if !seen[c.MemberID] {
			seen[c.MemberID] = true
			rem.MemberIDs = append(rem.MemberIDs, c.MemberID)
		}
	}
	sort.Slice(rem.MemberIDs, func(i, j int) bool { return rem.MemberIDs[i] < rem.MemberIDs[j] })

	if err := rs.Remittances.Create(ctx, rem); err != nil {
		return nil, fmt.Errorf("create remittance: %w", err)
	}
	rs.Logger.Info("remittance created",
		"plan", string(rs.Plan), "remittance_id", string(rem.ID),
		"members", len(rem.MemberIDs), "total", rem.TotalContributions.String())
	return rem, nil
}

// Submit drives a remittance through the state machine.
//
// Idempotency: a confirmed remittance is returned as-is, never
// re-submitted. A failed remittance is terminal; corrections require a
// new remittance.
func (rs *RemittanceService) Submit(ctx context.Context, id RemittanceID) (*ContributionRemittance, error) {
	rem, err := rs.Remittances.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rem == nil {
		return nil, NewProcessorError(rs.Plan, CodeInvalidPeriod, ErrRemittanceNotFound, "remittance %s", id)
	}

	switch rem.Status {
	case RemittanceConfirmed:
		// Retry of an already-confirmed submission: no-op.
		return rem, nil
	case RemittanceFailed:
		return nil, NewProcessorError(rs.Plan, CodeInvalidPeriod, ErrInvalidTransition,
			"remittance %s is failed; create a new remittance referencing it", id)
	}

	now := rs.Clock()
	if rem.Status == RemittanceDraft {
		rem.Status = RemittanceSubmitted
		rem.SubmittedAt = &now
	}

	switch rs.Environment {
	case EnvProduction:
		if err := rs.checkProductionReady(rem); err != nil {
			return nil, err
		}
		// Persist the submitted state first: if the external call fails
		// the remittance stays "submitted" and the caller can retry.
		if err := rs.Remittances.Update(ctx, rem); err != nil {
			return nil, fmt.Errorf("update remittance: %w", err)
		}
		if err := rs.submitProduction(ctx, rem); err != nil {
			return nil, err
		}
	default:
		rs.confirmSandbox(rem, now)
	}

	if err := rs.Remittances.Update(ctx, rem); err != nil {
		return nil, fmt.Errorf("update remittance: %w", err)
	}
	rs.Logger.Info("remittance confirmed",
		"plan", string(rs.Plan), "remittance_id", string(rem.ID),
		"confirmation", rem.ConfirmationNumber)
	return rem, nil
}

// confirmSandbox synthesizes a confirmation number from the submission
// time and a random suffix. Deterministic under an injected clock apart
// from the suffix.
func (rs *RemittanceService) confirmSandbox(rem *ContributionRemittance, now time.Time) {
	suffix := uuid.NewString()[:8]
	rem.ConfirmationNumber = fmt.Sprintf("SB-%s-%s", now.UTC().Format("20060102150405"), suffix)
	rem.Status = RemittanceConfirmed
	rem.ConfirmedAt = &now
}

// checkProductionReady verifies submission preconditions before any state
// is persisted. A config gap must not move the remittance forward.
func (rs *RemittanceService) checkProductionReady(rem *ContributionRemittance) error {
	if rs.AccountNumber == "" {
		return NewProcessorError(rs.Plan, CodeMissingAccountNumber, ErrMissingAccountNumber,
			"remittance %s requires an employer account number", rem.ID)
	}
	if rs.Submitter == nil {
		return NewProcessorError(rs.Plan, CodeNotImplemented, ErrNotImplemented,
			"no production submitter configured")
	}
	return nil
}

func (rs *RemittanceService) submitProduction(ctx context.Context, rem *ContributionRemittance) error {
	timeout := rs.Timeout
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	confirmation, err := rs.Submitter.Submit(ctx, rem)
	if err != nil {
		// The remote submission may have succeeded; leave the remittance
		// in "submitted" so the caller can retry idempotently.
		rs.Logger.Warn("remittance submission failed",
			"plan", string(rs.Plan), "remittance_id", string(rem.ID), "error", err.Error())
		return NewProcessorError(rs.Plan, CodeSubmissionFailed, ErrSubmissionFailed,
			"remittance %s: %v", rem.ID, err)
	}

	now := rs.Clock()
	rem.ConfirmationNumber = confirmation
	rem.Status = RemittanceConfirmed
	rem.ConfirmedAt = &now
	return nil
}

// =============================================================================
// ANNUAL STATEMENT GENERATION
// =============================================================================

// GenerateStatement aggregates persisted calculations for a member, plan,
// and tax year. Pure aggregation: regenerating for the same inputs yields
// the same totals.
func (rs *RemittanceService) GenerateStatement(ctx context.Context, memberID MemberID, taxYear int) (*AnnualPensionStatement, error) {
	calcs, err := rs.Calculations.ListByMemberYear(ctx, rs.Plan, memberID, taxYear)
	if err != nil {
		return nil, fmt.Errorf("load calculations: %w", err)
	}

	stmt := &AnnualPensionStatement{
		MemberID:                   memberID,
		PlanType:                   rs.Plan,
		TaxYear:                    taxYear,
		TotalPensionableEarnings:   decimal.Zero,
		TotalEmployeeContributions: decimal.Zero,
		TotalEmployerContributions: decimal.Zero,
		TotalContributions:         decimal.Zero,
		GeneratedAt:                rs.Clock(),
	}

	months := make(map[time.Month]bool)
	for _, c := range calcs {
		stmt.TotalPensionableEarnings = stmt.TotalPensionableEarnings.Add(c.PensionableEarnings)
		stmt.TotalEmployeeContributions = stmt.TotalEmployeeContributions.Add(c.EmployeeContribution)
		stmt.TotalEmployerContributions = stmt.TotalEmployerContributions.Add(c.EmployerContribution)
		stmt.TotalContributions = stmt.TotalContributions.Add(c.TotalContribution)
		stmt.CalculationCount++
		if c.TotalContribution.IsPositive() {
			months[c.PeriodEnd.Month()] = true
		}
	}
	stmt.ContributionMonths = len(months)

	return stmt, nil
}
