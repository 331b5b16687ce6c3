package flatrate_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/pension-engine/flatrate"
	"github.com/warp/pension-engine/pension"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func rates2024() *pension.ContributionRates {
	return &pension.ContributionRates{
		PlanType:                     pension.PlanFlatRate,
		TaxYear:                      2024,
		EmployeeRate:                 pension.MustDecimal("0.0595"),
		EmployerRate:                 pension.MustDecimal("0.0595"),
		YearlyMaxPensionableEarnings: pension.MustDecimal("68500"),
		BasicExemptAmount:            pension.MustDecimal("3500"),
		YearlyMaxContribution:        pension.MustDecimal("3867.50"),
		EffectiveDate:                date(2024, time.January, 1),
	}
}

func rates2025() *pension.ContributionRates {
	return &pension.ContributionRates{
		PlanType:                     pension.PlanFlatRate,
		TaxYear:                      2025,
		EmployeeRate:                 pension.MustDecimal("0.0595"),
		EmployerRate:                 pension.MustDecimal("0.0595"),
		YearlyMaxPensionableEarnings: pension.MustDecimal("71300"),
		BasicExemptAmount:            pension.MustDecimal("3500"),
		YearlyMaxContribution:        pension.MustDecimal("4034.10"),
		EffectiveDate:                date(2025, time.January, 1),
	}
}

func newTestProcessor(t *testing.T, tables ...*pension.ContributionRates) *flatrate.Processor {
	t.Helper()
	p := flatrate.New(tables...)
	err := p.Initialize(pension.Config{
		Logger: pension.NopLogger{},
		Clock:  func() time.Time { return date(2024, time.July, 15) },
	})
	require.NoError(t, err)
	return p
}

// member born 1990: age 34 in 2024, inside the [18, 70] gate.
func adultMember(id string) pension.PensionMember {
	return pension.PensionMember{
		ID:          pension.MemberID(id),
		Name:        "Test Member",
		DateOfBirth: date(1990, time.June, 15),
	}
}

func biweekly(gross string, year int, month time.Month, startDay int) pension.PensionableEarnings {
	start := date(year, month, startDay)
	return pension.PensionableEarnings{
		GrossEarnings:       pension.MustDecimal(gross),
		PensionableEarnings: pension.MustDecimal(gross),
		PeriodStart:         start,
		PeriodEnd:           start.AddDate(0, 0, 13),
	}
}

// =============================================================================
// CORE CALCULATION
// =============================================================================

func TestCalculateContribution_BiweeklyExemption(t *testing.T) {
	// GIVEN: $2500 gross over a 14-day period, fresh YTD, 2024 rates
	// WHEN: Calculating the period contribution
	// THEN: The $3500 exemption pro-rates to 134.25, and both sides
	//       contribute 5.95% of the remainder

	p := newTestProcessor(t, rates2024())

	calc, err := p.CalculateContribution(adultMember("emp-1"),
		biweekly("2500", 2024, time.January, 1), pension.YTD{})
	require.NoError(t, err)

	// 3500 x 14/365 = 134.2465..., rounded to the cent before subtraction.
	assert.True(t, calc.BasicExemption.Equal(pension.MustDecimal("134.25")),
		"exemption = %s", calc.BasicExemption)
	assert.True(t, calc.PensionableEarnings.Equal(pension.MustDecimal("2365.75")))

	// (2500 - 134.25) x 0.0595 = 140.762125 -> 140.76 per side.
	assert.True(t, calc.EmployeeContribution.Equal(pension.MustDecimal("140.76")),
		"employee = %s", calc.EmployeeContribution)
	assert.True(t, calc.EmployerContribution.Equal(pension.MustDecimal("140.76")))
	assert.True(t, calc.TotalContribution.Equal(pension.MustDecimal("281.52")))

	// YTD snapshot advances by the period's post-cap figures.
	assert.True(t, calc.YTDAfter.PensionableEarnings.Equal(pension.MustDecimal("2365.75")))
	assert.True(t, calc.YTDAfter.EmployeeContributions.Equal(pension.MustDecimal("140.76")))
}

func TestCalculateContribution_ExemptionExceedsGross(t *testing.T) {
	// Gross below the pro-rated exemption floors at zero, not negative.
	p := newTestProcessor(t, rates2024())

	calc, err := p.CalculateContribution(adultMember("emp-1"),
		biweekly("100", 2024, time.January, 1), pension.YTD{})
	require.NoError(t, err)

	assert.True(t, calc.PensionableEarnings.IsZero())
	assert.True(t, calc.TotalContribution.IsZero())
}

func TestCalculateContribution_EarningsCap(t *testing.T) {
	// GIVEN: YTD pensionable earnings of 68400 against a 68500 maximum
	// WHEN: A period would add 300 pensionable dollars
	// THEN: Only the remaining 100 is contributory

	p := newTestProcessor(t, rates2024())

	ytd := pension.YTD{PensionableEarnings: pension.MustDecimal("68400")}
	calc, err := p.CalculateContribution(adultMember("emp-1"),
		biweekly("434.25", 2024, time.November, 4), ytd)
	require.NoError(t, err)

	// 434.25 - 134.25 exemption = 300 pre-cap, capped to 100.
	assert.True(t, calc.PensionableEarnings.Equal(pension.MustDecimal("100")),
		"capped earnings = %s", calc.PensionableEarnings)
	assert.True(t, calc.EmployeeContribution.Equal(pension.MustDecimal("5.95")))
	assert.True(t, calc.YTDAfter.PensionableEarnings.Equal(pension.MustDecimal("68500")))
}

func TestCalculateContribution_EarningsCapAlreadyReached(t *testing.T) {
	p := newTestProcessor(t, rates2024())

	ytd := pension.YTD{PensionableEarnings: pension.MustDecimal("68500")}
	calc, err := p.CalculateContribution(adultMember("emp-1"),
		biweekly("2500", 2024, time.December, 2), ytd)
	require.NoError(t, err)

	assert.True(t, calc.PensionableEarnings.IsZero())
	assert.True(t, calc.TotalContribution.IsZero())
	assert.True(t, calc.YTDAfter.PensionableEarnings.Equal(pension.MustDecimal("68500")))
}

func TestCalculateContribution_ContributionCap(t *testing.T) {
	// GIVEN: YTD employee contributions of 3860 against a 3867.50 maximum
	// WHEN: A period's raw contribution would be 140.76 per side
	// THEN: The employee-side excess comes off both sides equally

	p := newTestProcessor(t, rates2024())

	ytd := pension.YTD{EmployeeContributions: pension.MustDecimal("3860")}
	calc, err := p.CalculateContribution(adultMember("emp-1"),
		biweekly("2500", 2024, time.October, 7), ytd)
	require.NoError(t, err)

	// Raw 140.76; projected 4000.76 exceeds 3867.50 by 133.26.
	assert.True(t, calc.EmployeeContribution.Equal(pension.MustDecimal("7.50")),
		"employee = %s", calc.EmployeeContribution)
	assert.True(t, calc.EmployerContribution.Equal(pension.MustDecimal("7.50")))
	assert.True(t, calc.YTDAfter.EmployeeContributions.Equal(pension.MustDecimal("3867.50")))
}

func TestCalculateContribution_Decomposition(t *testing.T) {
	// Employee + employer always equals total, capped or not.
	p := newTestProcessor(t, rates2024())

	for _, ytdEE := range []string{"0", "3800", "3867.50"} {
		ytd := pension.YTD{EmployeeContributions: pension.MustDecimal(ytdEE)}
		calc, err := p.CalculateContribution(adultMember("emp-1"),
			biweekly("2500", 2024, time.June, 3), ytd)
		require.NoError(t, err)
		assert.True(t, calc.EmployeeContribution.Add(calc.EmployerContribution).Equal(calc.TotalContribution),
			"decomposition broken at ytd %s", ytdEE)
	}
}

// =============================================================================
// TAX YEAR SELECTION
// =============================================================================

func TestCalculateContribution_YearBoundaryPeriod(t *testing.T) {
	// A period spanning Dec 29 2024 - Jan 11 2025 is taxed under 2025.
	p := newTestProcessor(t, rates2024(), rates2025())

	earnings := pension.PensionableEarnings{
		GrossEarnings:       pension.MustDecimal("2500"),
		PensionableEarnings: pension.MustDecimal("2500"),
		PeriodStart:         date(2024, time.December, 29),
		PeriodEnd:           date(2025, time.January, 11),
	}
	calc, err := p.CalculateContribution(adultMember("emp-1"), earnings, pension.YTD{})
	require.NoError(t, err)
	assert.Equal(t, 2025, calc.TaxYear)
}

func TestCalculateContribution_MissingRateYear(t *testing.T) {
	p := newTestProcessor(t, rates2024())

	_, err := p.CalculateContribution(adultMember("emp-1"),
		biweekly("2500", 2030, time.January, 1), pension.YTD{})
	assert.ErrorIs(t, err, pension.ErrRatesNotFound)
}

func TestCalculateContribution_InvalidPeriod(t *testing.T) {
	p := newTestProcessor(t, rates2024())

	earnings := pension.PensionableEarnings{
		GrossEarnings: pension.MustDecimal("2500"),
		PeriodStart:   date(2024, time.June, 14),
		PeriodEnd:     date(2024, time.June, 1),
	}
	_, err := p.CalculateContribution(adultMember("emp-1"), earnings, pension.YTD{})
	assert.ErrorIs(t, err, pension.ErrInvalidPeriod)
}

// =============================================================================
// AGE GATE
// =============================================================================

func TestCalculateContribution_AgeGate(t *testing.T) {
	p := newTestProcessor(t, rates2024())
	earnings := biweekly("2500", 2024, time.June, 3)

	cases := []struct {
		name     string
		dob      time.Time
		eligible bool
	}{
		{"age 17", date(2007, time.January, 1), false},
		{"age 18", date(2006, time.June, 1), true},
		{"age 34", date(1990, time.June, 15), true},
		{"age 70", date(1954, time.June, 1), true},
		{"age 71", date(1953, time.January, 1), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			member := pension.PensionMember{ID: "emp-1", DateOfBirth: tc.dob}
			calc, err := p.CalculateContribution(member, earnings, pension.YTD{})

			// Ineligibility is a zero-valued result, never an error.
			require.NoError(t, err)
			if tc.eligible {
				assert.True(t, calc.TotalContribution.IsPositive())
			} else {
				assert.True(t, calc.TotalContribution.IsZero())
				assert.True(t, calc.PensionableEarnings.IsZero())
			}
		})
	}
}

func TestCalculateContribution_MissingDateOfBirth(t *testing.T) {
	// GIVEN: A member record with no date of birth
	// WHEN: Calculating
	// THEN: A zero-valued result comes back (with a warning logged), so a
	//       batch run is not interrupted by one bad record

	p := newTestProcessor(t, rates2024())

	member := pension.PensionMember{ID: "emp-1"}
	calc, err := p.CalculateContribution(member, biweekly("2500", 2024, time.June, 3), pension.YTD{})
	require.NoError(t, err)
	assert.True(t, calc.TotalContribution.IsZero())
	assert.True(t, calc.IsZero())
}

// =============================================================================
// DETERMINISM
// =============================================================================

func TestCalculateContribution_Deterministic(t *testing.T) {
	p := newTestProcessor(t, rates2024())

	first, err := p.CalculateContribution(adultMember("emp-1"),
		biweekly("2500", 2024, time.January, 1), pension.YTD{})
	require.NoError(t, err)
	second, err := p.CalculateContribution(adultMember("emp-1"),
		biweekly("2500", 2024, time.January, 1), pension.YTD{})
	require.NoError(t, err)

	assert.True(t, first.TotalContribution.Equal(second.TotalContribution))
	assert.Equal(t, first.CalculatedAt, second.CalculatedAt, "injected clock makes the timestamp reproducible")
}

// =============================================================================
// RATES, PENSIONABILITY, CAPABILITIES
// =============================================================================

func TestContributionRates_ZeroSelectsCurrentYear(t *testing.T) {
	p := newTestProcessor(t, rates2024(), rates2025())

	rates, err := p.ContributionRates(0)
	require.NoError(t, err)
	assert.Equal(t, 2024, rates.TaxYear, "clock is pinned to 2024")

	rates, err = p.ContributionRates(2025)
	require.NoError(t, err)
	assert.Equal(t, 2025, rates.TaxYear)
}

func TestIsPensionableEarnings(t *testing.T) {
	p := newTestProcessor(t, rates2024())
	m := adultMember("emp-1")

	assert.True(t, p.IsPensionableEarnings(m, pension.EarningsRegular))
	assert.True(t, p.IsPensionableEarnings(m, pension.EarningsOvertime))
	assert.True(t, p.IsPensionableEarnings(m, pension.EarningsBonus))
	assert.True(t, p.IsPensionableEarnings(m, pension.EarningsCommission))
	assert.False(t, p.IsPensionableEarnings(m, pension.EarningsReimbursement))
	assert.False(t, p.IsPensionableEarnings(m, pension.EarningsSeverance))
}

func TestCapabilities(t *testing.T) {
	p := newTestProcessor(t, rates2024())
	caps := p.Capabilities()

	assert.True(t, caps.SupportsElectronicRemittance)
	assert.False(t, caps.SupportsBuyBack)
	require.NotNil(t, caps.MinimumAge)
	require.NotNil(t, caps.MaximumAge)
	assert.Equal(t, 18, *caps.MinimumAge)
	assert.Equal(t, 70, *caps.MaximumAge)
}

func TestInitialize_RejectsForeignTable(t *testing.T) {
	table := rates2024()
	table.PlanType = pension.PlanTiered
	table.Tiers = []pension.EarningsTier{{EmployeeRate: pension.MustDecimal("0.1"), EmployerRate: pension.MustDecimal("0.1")}}

	p := flatrate.New(table)
	err := p.Initialize(pension.Config{Logger: pension.NopLogger{}})
	assert.Error(t, err)
}

func TestInitialize_RejectsDuplicateYear(t *testing.T) {
	p := flatrate.New(rates2024(), rates2024())
	err := p.Initialize(pension.Config{Logger: pension.NopLogger{}})
	assert.True(t, errors.Is(err, pension.ErrDuplicateRateTable))
}
