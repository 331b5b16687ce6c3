package pension_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/warp/pension-engine/pension"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// captureLogger records warn messages for assertions.
type captureLogger struct {
	mu    sync.Mutex
	warns []string
}

func (c *captureLogger) Debug(string, ...any) {}
func (c *captureLogger) Info(string, ...any)  {}
func (c *captureLogger) Error(string, ...any) {}
func (c *captureLogger) Warn(msg string, _ ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warns = append(c.warns, msg)
}

func flatTable(taxYear int) *pension.ContributionRates {
	return &pension.ContributionRates{
		PlanType:                     pension.PlanFlatRate,
		TaxYear:                      taxYear,
		EmployeeRate:                 pension.MustDecimal("0.0595"),
		EmployerRate:                 pension.MustDecimal("0.0595"),
		YearlyMaxPensionableEarnings: pension.MustDecimal("68500"),
		BasicExemptAmount:            pension.MustDecimal("3500"),
		YearlyMaxContribution:        pension.MustDecimal("3867.50"),
		EffectiveDate:                date(taxYear, time.January, 1),
	}
}

func tieredTable(taxYear int) *pension.ContributionRates {
	return &pension.ContributionRates{
		PlanType: pension.PlanTiered,
		TaxYear:  taxYear,
		Tiers: []pension.EarningsTier{
			{Threshold: pension.MustDecimal("68500"), EmployeeRate: pension.MustDecimal("0.106"), EmployerRate: pension.MustDecimal("0.146")},
			{EmployeeRate: pension.MustDecimal("0.138"), EmployerRate: pension.MustDecimal("0.176")},
		},
		EffectiveDate: date(taxYear, time.January, 1),
	}
}

// =============================================================================
// LOAD AND LOOKUP
// =============================================================================

func TestRateRegistry_LoadAndLookup(t *testing.T) {
	reg := pension.NewRateRegistry(nil)

	if err := reg.Load(flatTable(2024)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got, err := reg.Lookup(pension.PlanFlatRate, 2024)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !got.EmployeeRate.Equal(pension.MustDecimal("0.0595")) {
		t.Errorf("EmployeeRate = %s, want 0.0595", got.EmployeeRate)
	}
}

func TestRateRegistry_LookupMissingYear(t *testing.T) {
	reg := pension.NewRateRegistry(nil)
	if err := reg.Load(flatTable(2024)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	_, err := reg.Lookup(pension.PlanFlatRate, 1999)
	if !errors.Is(err, pension.ErrRatesNotFound) {
		t.Fatalf("Lookup(1999) = %v, want ErrRatesNotFound", err)
	}
	if !pension.IsConfigError(err) {
		t.Error("missing rates should classify as a config error")
	}

	var perr *pension.ProcessorError
	if !errors.As(err, &perr) {
		t.Fatal("expected a ProcessorError")
	}
	if perr.Code != pension.CodeRatesNotFound {
		t.Errorf("Code = %s, want %s", perr.Code, pension.CodeRatesNotFound)
	}
}

func TestRateRegistry_DuplicateYearRejected(t *testing.T) {
	reg := pension.NewRateRegistry(nil)
	if err := reg.Load(flatTable(2024)); err != nil {
		t.Fatalf("first Load failed: %v", err)
	}

	err := reg.Load(flatTable(2024))
	if !errors.Is(err, pension.ErrDuplicateRateTable) {
		t.Errorf("second Load = %v, want ErrDuplicateRateTable", err)
	}

	// The original table survives intact.
	got, err := reg.Lookup(pension.PlanFlatRate, 2024)
	if err != nil {
		t.Fatalf("Lookup after duplicate failed: %v", err)
	}
	if !got.YearlyMaxContribution.Equal(pension.MustDecimal("3867.50")) {
		t.Errorf("original table replaced: max = %s", got.YearlyMaxContribution)
	}
}

func TestRateRegistry_Years(t *testing.T) {
	reg := pension.NewRateRegistry(nil)
	for _, y := range []int{2025, 2023, 2024} {
		if err := reg.Load(flatTable(y)); err != nil {
			t.Fatalf("Load(%d) failed: %v", y, err)
		}
	}

	years := reg.Years(pension.PlanFlatRate)
	want := []int{2023, 2024, 2025}
	if len(years) != len(want) {
		t.Fatalf("Years = %v, want %v", years, want)
	}
	for i := range want {
		if years[i] != want[i] {
			t.Fatalf("Years = %v, want %v", years, want)
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestRateRegistry_RejectsOutOfRangeRate(t *testing.T) {
	reg := pension.NewRateRegistry(nil)

	table := flatTable(2024)
	table.EmployeeRate = pension.MustDecimal("5.95") // percent, not fraction
	if err := reg.Load(table); err == nil {
		t.Error("rate above 1 should be rejected")
	}

	table = flatTable(2024)
	table.EmployerRate = pension.MustDecimal("-0.01")
	if err := reg.Load(table); err == nil {
		t.Error("negative rate should be rejected")
	}
}

func TestRateRegistry_RejectsMissingEffectiveDate(t *testing.T) {
	reg := pension.NewRateRegistry(nil)
	table := flatTable(2024)
	table.EffectiveDate = time.Time{}
	if err := reg.Load(table); err == nil {
		t.Error("missing effective date should be rejected")
	}
}

func TestRateRegistry_TierValidation(t *testing.T) {
	t.Run("valid schedule loads", func(t *testing.T) {
		reg := pension.NewRateRegistry(nil)
		if err := reg.Load(tieredTable(2024)); err != nil {
			t.Errorf("valid tiered table rejected: %v", err)
		}
	})

	t.Run("final tier must be unbounded", func(t *testing.T) {
		reg := pension.NewRateRegistry(nil)
		table := tieredTable(2024)
		table.Tiers[1].Threshold = pension.MustDecimal("100000")
		if err := reg.Load(table); err == nil {
			t.Error("bounded final tier should be rejected")
		}
	})

	t.Run("only final tier may be unbounded", func(t *testing.T) {
		reg := pension.NewRateRegistry(nil)
		table := tieredTable(2024)
		table.Tiers[0].Threshold = pension.MustDecimal("0")
		if err := reg.Load(table); err == nil {
			t.Error("unbounded non-final tier should be rejected")
		}
	})

	t.Run("thresholds must ascend", func(t *testing.T) {
		reg := pension.NewRateRegistry(nil)
		table := tieredTable(2024)
		table.Tiers = []pension.EarningsTier{
			{Threshold: pension.MustDecimal("68500"), EmployeeRate: pension.MustDecimal("0.106"), EmployerRate: pension.MustDecimal("0.146")},
			{Threshold: pension.MustDecimal("50000"), EmployeeRate: pension.MustDecimal("0.12"), EmployerRate: pension.MustDecimal("0.15")},
			{EmployeeRate: pension.MustDecimal("0.138"), EmployerRate: pension.MustDecimal("0.176")},
		}
		if err := reg.Load(table); err == nil {
			t.Error("descending thresholds should be rejected")
		}
	})

	t.Run("empty tier list rejected through validation", func(t *testing.T) {
		// A table with no tiers at all is a flat table, so exercise the
		// tier path with a table that claims tiers but supplies none
		// ascending from zero.
		reg := pension.NewRateRegistry(nil)
		table := tieredTable(2024)
		table.Tiers = []pension.EarningsTier{
			{Threshold: pension.MustDecimal("0"), EmployeeRate: pension.MustDecimal("0.106"), EmployerRate: pension.MustDecimal("0.146")},
			{Threshold: pension.MustDecimal("0"), EmployeeRate: pension.MustDecimal("0.138"), EmployerRate: pension.MustDecimal("0.176")},
		}
		// First tier unbounded but not final.
		if err := reg.Load(table); err == nil {
			t.Error("expected rejection")
		}
	})
}

// =============================================================================
// CAP DIVERGENCE WARNING
// =============================================================================

func TestRateRegistry_WarnsOnCapDivergence(t *testing.T) {
	// Consistent table: 0.0595 x (68500 - 3500) = 3867.50 exactly.
	logger := &captureLogger{}
	reg := pension.NewRateRegistry(logger)
	if err := reg.Load(flatTable(2024)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(logger.warns) != 0 {
		t.Errorf("consistent caps should not warn, got %v", logger.warns)
	}

	// Divergent table: published max two dollars below the implied cap.
	logger = &captureLogger{}
	reg = pension.NewRateRegistry(logger)
	table := flatTable(2025)
	table.YearlyMaxContribution = pension.MustDecimal("3865.50")
	if err := reg.Load(table); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(logger.warns) != 1 {
		t.Errorf("divergent caps should warn once, got %d warnings", len(logger.warns))
	}
}
