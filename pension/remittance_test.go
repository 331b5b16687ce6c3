package pension_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/pension-engine/pension"
	"github.com/warp/pension-engine/pension/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func fixedClock(year int, month time.Month, day int) pension.Clock {
	return func() time.Time {
		return time.Date(year, month, day, 10, 30, 0, 0, time.UTC)
	}
}

func newSandboxService(mem *store.Memory) *pension.RemittanceService {
	return &pension.RemittanceService{
		Plan:         pension.PlanFlatRate,
		Environment:  pension.EnvSandbox,
		Remittances:  mem,
		Calculations: mem,
		Logger:       pension.NopLogger{},
		Clock:        fixedClock(2024, time.July, 15),
	}
}

func calc(memberID string, periodEnd time.Time, employee, employer string) pension.ContributionCalculation {
	ee := pension.MustDecimal(employee)
	er := pension.MustDecimal(employer)
	return pension.ContributionCalculation{
		PlanType:             pension.PlanFlatRate,
		MemberID:             pension.MemberID(memberID),
		TaxYear:              periodEnd.Year(),
		PeriodStart:          periodEnd.AddDate(0, 0, -13),
		PeriodEnd:            periodEnd,
		PensionableEarnings:  pension.MustDecimal("2000"),
		EmployeeContribution: ee,
		EmployerContribution: er,
		TotalContribution:    ee.Add(er),
	}
}

func zeroCalc(memberID string, periodEnd time.Time) pension.ContributionCalculation {
	return pension.ContributionCalculation{
		PlanType:    pension.PlanFlatRate,
		MemberID:    pension.MemberID(memberID),
		TaxYear:     periodEnd.Year(),
		PeriodStart: periodEnd.AddDate(0, 0, -13),
		PeriodEnd:   periodEnd,
	}
}

// stubSubmitter is a controllable external submission endpoint.
type stubSubmitter struct {
	confirmation string
	err          error
	calls        int
}

func (s *stubSubmitter) Submit(_ context.Context, _ *pension.ContributionRemittance) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.confirmation, nil
}

// =============================================================================
// REMITTANCE CREATION
// =============================================================================

func TestCreateRemittance_AggregatesCalculations(t *testing.T) {
	// GIVEN: Three calculations, two members, one of them zero-valued
	// WHEN: Creating a remittance for the period
	// THEN: Totals sum the non-zero calculations and the zero-valued
	//       member does not appear

	mem := store.NewMemory()
	svc := newSandboxService(mem)
	ctx := context.Background()

	periodEnd := date(2024, time.July, 14)
	calcs := []pension.ContributionCalculation{
		calc("emp-2", periodEnd, "100.00", "100.00"),
		calc("emp-1", periodEnd, "140.76", "140.76"),
		zeroCalc("emp-9", periodEnd),
	}

	rem, err := svc.CreateRemittance(ctx, date(2024, time.July, 1), periodEnd, calcs)
	require.NoError(t, err)

	assert.Equal(t, pension.RemittanceDraft, rem.Status)
	assert.True(t, rem.TotalEmployeeContributions.Equal(pension.MustDecimal("240.76")))
	assert.True(t, rem.TotalEmployerContributions.Equal(pension.MustDecimal("240.76")))
	assert.True(t, rem.TotalContributions.Equal(pension.MustDecimal("481.52")))

	// Member ids sorted, no zero-valued member.
	require.Len(t, rem.MemberIDs, 2)
	assert.Equal(t, pension.MemberID("emp-1"), rem.MemberIDs[0])
	assert.Equal(t, pension.MemberID("emp-2"), rem.MemberIDs[1])

	// Persisted as created.
	stored, err := mem.Get(ctx, rem.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, pension.RemittanceDraft, stored.Status)
}

func TestCreateRemittance_InvalidPeriod(t *testing.T) {
	svc := newSandboxService(store.NewMemory())

	_, err := svc.CreateRemittance(context.Background(),
		date(2024, time.July, 14), date(2024, time.July, 1), nil)
	assert.ErrorIs(t, err, pension.ErrInvalidPeriod)
}

// =============================================================================
// SANDBOX SUBMISSION
// =============================================================================

func TestSubmit_SandboxConfirms(t *testing.T) {
	// GIVEN: A draft remittance in the sandbox environment
	// WHEN: Submitting it
	// THEN: It confirms immediately with a synthetic SB- confirmation
	//       derived from the submission timestamp

	mem := store.NewMemory()
	svc := newSandboxService(mem)
	ctx := context.Background()

	rem, err := svc.CreateRemittance(ctx, date(2024, time.July, 1), date(2024, time.July, 14),
		[]pension.ContributionCalculation{calc("emp-1", date(2024, time.July, 14), "140.76", "140.76")})
	require.NoError(t, err)

	submitted, err := svc.Submit(ctx, rem.ID)
	require.NoError(t, err)

	assert.Equal(t, pension.RemittanceConfirmed, submitted.Status)
	assert.True(t, strings.HasPrefix(submitted.ConfirmationNumber, "SB-20240715103000-"),
		"confirmation %q should embed the submission timestamp", submitted.ConfirmationNumber)
	require.NotNil(t, submitted.SubmittedAt)
	require.NotNil(t, submitted.ConfirmedAt)
}

func TestSubmit_ConfirmedIsIdempotent(t *testing.T) {
	// GIVEN: An already-confirmed remittance
	// WHEN: Submitting it again
	// THEN: The existing confirmation is returned unchanged

	mem := store.NewMemory()
	svc := newSandboxService(mem)
	ctx := context.Background()

	rem, err := svc.CreateRemittance(ctx, date(2024, time.July, 1), date(2024, time.July, 14),
		[]pension.ContributionCalculation{calc("emp-1", date(2024, time.July, 14), "140.76", "140.76")})
	require.NoError(t, err)

	first, err := svc.Submit(ctx, rem.ID)
	require.NoError(t, err)

	second, err := svc.Submit(ctx, rem.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ConfirmationNumber, second.ConfirmationNumber)
	assert.Equal(t, pension.RemittanceConfirmed, second.Status)
}

func TestSubmit_FailedIsTerminal(t *testing.T) {
	// GIVEN: A remittance that reached the failed state
	// WHEN: Submitting it again
	// THEN: The submission is rejected; a correction needs a new remittance

	mem := store.NewMemory()
	svc := newSandboxService(mem)
	ctx := context.Background()

	rem, err := svc.CreateRemittance(ctx, date(2024, time.July, 1), date(2024, time.July, 14),
		[]pension.ContributionCalculation{calc("emp-1", date(2024, time.July, 14), "140.76", "140.76")})
	require.NoError(t, err)

	// Walk the record to failed through legal transitions.
	now := time.Now()
	rem.Status = pension.RemittanceSubmitted
	rem.SubmittedAt = &now
	require.NoError(t, mem.Update(ctx, rem))
	rem.Status = pension.RemittanceFailed
	require.NoError(t, mem.Update(ctx, rem))

	_, err = svc.Submit(ctx, rem.ID)
	assert.ErrorIs(t, err, pension.ErrInvalidTransition)
}

func TestSubmit_UnknownRemittance(t *testing.T) {
	svc := newSandboxService(store.NewMemory())
	_, err := svc.Submit(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, pension.ErrRemittanceNotFound)
}

func TestRemittanceStore_RejectsBackwardTransition(t *testing.T) {
	mem := store.NewMemory()
	svc := newSandboxService(mem)
	ctx := context.Background()

	rem, err := svc.CreateRemittance(ctx, date(2024, time.July, 1), date(2024, time.July, 14),
		[]pension.ContributionCalculation{calc("emp-1", date(2024, time.July, 14), "140.76", "140.76")})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, rem.ID)
	require.NoError(t, err)

	// Attempt to drag the confirmed record back to draft.
	rem.Status = pension.RemittanceDraft
	assert.ErrorIs(t, mem.Update(ctx, rem), pension.ErrInvalidTransition)
}

// =============================================================================
// PRODUCTION SUBMISSION
// =============================================================================

func newProductionService(mem *store.Memory, account string, submitter pension.RemittanceSubmitter) *pension.RemittanceService {
	return &pension.RemittanceService{
		Plan:          pension.PlanFlatRate,
		Environment:   pension.EnvProduction,
		AccountNumber: account,
		Remittances:   mem,
		Calculations:  mem,
		Submitter:     submitter,
		Logger:        pension.NopLogger{},
		Clock:         fixedClock(2024, time.July, 15),
	}
}

func productionDraft(t *testing.T, mem *store.Memory, svc *pension.RemittanceService) *pension.ContributionRemittance {
	t.Helper()
	rem, err := svc.CreateRemittance(context.Background(),
		date(2024, time.July, 1), date(2024, time.July, 14),
		[]pension.ContributionCalculation{calc("emp-1", date(2024, time.July, 14), "140.76", "140.76")})
	require.NoError(t, err)
	return rem
}

func TestSubmit_ProductionRequiresAccountNumber(t *testing.T) {
	mem := store.NewMemory()
	svc := newProductionService(mem, "", &stubSubmitter{confirmation: "RC-1"})
	rem := productionDraft(t, mem, svc)

	_, err := svc.Submit(context.Background(), rem.ID)
	assert.ErrorIs(t, err, pension.ErrMissingAccountNumber)
	assert.True(t, pension.IsConfigError(err))

	// Nothing was sent and nothing moved forward.
	stored, gerr := mem.Get(context.Background(), rem.ID)
	require.NoError(t, gerr)
	assert.Equal(t, pension.RemittanceDraft, stored.Status)
}

func TestSubmit_ProductionRequiresSubmitter(t *testing.T) {
	mem := store.NewMemory()
	svc := newProductionService(mem, "RP-0001-123456", nil)
	rem := productionDraft(t, mem, svc)

	_, err := svc.Submit(context.Background(), rem.ID)
	assert.ErrorIs(t, err, pension.ErrNotImplemented)

	stored, gerr := mem.Get(context.Background(), rem.ID)
	require.NoError(t, gerr)
	assert.Equal(t, pension.RemittanceDraft, stored.Status)
}

func TestSubmit_ProductionTransportFailureIsRetryable(t *testing.T) {
	// GIVEN: A configured production service whose external endpoint fails
	// WHEN: Submitting, then retrying after the endpoint recovers
	// THEN: The failure leaves the remittance "submitted" (not failed) and
	//       the retry confirms it

	mem := store.NewMemory()
	sub := &stubSubmitter{err: errors.New("connection reset")}
	svc := newProductionService(mem, "RP-0001-123456", sub)
	rem := productionDraft(t, mem, svc)
	ctx := context.Background()

	_, err := svc.Submit(ctx, rem.ID)
	assert.ErrorIs(t, err, pension.ErrSubmissionFailed)
	assert.True(t, pension.IsRetryable(err))

	stored, gerr := mem.Get(ctx, rem.ID)
	require.NoError(t, gerr)
	assert.Equal(t, pension.RemittanceSubmitted, stored.Status,
		"transport failure must leave the remittance retryable, never terminal")

	// Endpoint recovers; the retry confirms.
	sub.err = nil
	sub.confirmation = "RC-2024-00042"
	confirmed, err := svc.Submit(ctx, rem.ID)
	require.NoError(t, err)
	assert.Equal(t, pension.RemittanceConfirmed, confirmed.Status)
	assert.Equal(t, "RC-2024-00042", confirmed.ConfirmationNumber)
	assert.Equal(t, 2, sub.calls)
}

func TestSubmit_ProductionSuccess(t *testing.T) {
	mem := store.NewMemory()
	sub := &stubSubmitter{confirmation: "RC-2024-00007"}
	svc := newProductionService(mem, "RP-0001-123456", sub)
	rem := productionDraft(t, mem, svc)

	confirmed, err := svc.Submit(context.Background(), rem.ID)
	require.NoError(t, err)
	assert.Equal(t, pension.RemittanceConfirmed, confirmed.Status)
	assert.Equal(t, "RC-2024-00007", confirmed.ConfirmationNumber)
	assert.Equal(t, 1, sub.calls)
}

// =============================================================================
// ANNUAL STATEMENTS
// =============================================================================

func TestGenerateStatement_AggregatesYear(t *testing.T) {
	// GIVEN: Three persisted calculations across two months, plus one in
	//        another tax year
	// WHEN: Generating the 2024 statement
	// THEN: Totals cover only 2024 and contribution months count distinct
	//       months with a positive total

	mem := store.NewMemory()
	svc := newSandboxService(mem)
	ctx := context.Background()

	for _, c := range []pension.ContributionCalculation{
		calc("emp-1", date(2024, time.January, 14), "140.76", "140.76"),
		calc("emp-1", date(2024, time.January, 28), "140.76", "140.76"),
		calc("emp-1", date(2024, time.February, 11), "140.76", "140.76"),
		calc("emp-1", date(2025, time.January, 12), "145.00", "145.00"),
	} {
		require.NoError(t, mem.Append(ctx, c))
	}

	stmt, err := svc.GenerateStatement(ctx, "emp-1", 2024)
	require.NoError(t, err)

	assert.Equal(t, 3, stmt.CalculationCount)
	assert.Equal(t, 2, stmt.ContributionMonths)
	assert.True(t, stmt.TotalEmployeeContributions.Equal(pension.MustDecimal("422.28")))
	assert.True(t, stmt.TotalContributions.Equal(pension.MustDecimal("844.56")))
	assert.True(t, stmt.TotalPensionableEarnings.Equal(pension.MustDecimal("6000")))
}

func TestGenerateStatement_Idempotent(t *testing.T) {
	mem := store.NewMemory()
	svc := newSandboxService(mem)
	ctx := context.Background()

	require.NoError(t, mem.Append(ctx, calc("emp-1", date(2024, time.March, 15), "100.00", "100.00")))

	first, err := svc.GenerateStatement(ctx, "emp-1", 2024)
	require.NoError(t, err)
	second, err := svc.GenerateStatement(ctx, "emp-1", 2024)
	require.NoError(t, err)

	assert.True(t, first.TotalContributions.Equal(second.TotalContributions))
	assert.Equal(t, first.CalculationCount, second.CalculationCount)
}

func TestGenerateStatement_EmptyYear(t *testing.T) {
	svc := newSandboxService(store.NewMemory())

	stmt, err := svc.GenerateStatement(context.Background(), "emp-1", 2024)
	require.NoError(t, err)
	assert.Equal(t, 0, stmt.CalculationCount)
	assert.Equal(t, 0, stmt.ContributionMonths)
	assert.True(t, stmt.TotalContributions.IsZero())
}
