// Package store provides in-memory store implementations for testing/dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/pension-engine/pension"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements pension.CalculationStore and pension.RemittanceStore.
type Memory struct {
	mu           sync.RWMutex
	calculations map[calcKey][]pension.ContributionCalculation
	remittances  map[pension.RemittanceID]pension.ContributionRemittance
}

type calcKey struct {
	Plan     pension.PlanType
	MemberID pension.MemberID
}

func NewMemory() *Memory {
	return &Memory{
		calculations: make(map[calcKey][]pension.ContributionCalculation),
		remittances:  make(map[pension.RemittanceID]pension.ContributionRemittance),
	}
}

// -----------------------------------------------------------------------------
// CalculationStore
// -----------------------------------------------------------------------------

// Append records a calculation. Append-only: there is no update or delete.
func (m *Memory) Append(_ context.Context, calc pension.ContributionCalculation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := calcKey{Plan: calc.PlanType, MemberID: calc.MemberID}
	calcs := m.calculations[k]

	// Insert sorted by period end so reads are chronological.
	i := sort.Search(len(calcs), func(i int) bool {
		return calcs[i].PeriodEnd.After(calc.PeriodEnd)
	})
	calcs = append(calcs, pension.ContributionCalculation{})
	copy(calcs[i+1:], calcs[i:])
	calcs[i] = calc
	m.calculations[k] = calcs
	return nil
}

func (m *Memory) ListByMemberYear(_ context.Context, plan pension.PlanType, memberID pension.MemberID, taxYear int) ([]pension.ContributionCalculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []pension.ContributionCalculation
	for _, c := range m.calculations[calcKey{Plan: plan, MemberID: memberID}] {
		if c.TaxYear == taxYear {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *Memory) ListByPeriod(_ context.Context, plan pension.PlanType, from, to time.Time) ([]pension.ContributionCalculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []pension.ContributionCalculation
	for k, calcs := range m.calculations {
		if k.Plan != plan {
			continue
		}
		for _, c := range calcs {
			if !c.PeriodEnd.Before(from) && !c.PeriodEnd.After(to) {
				result = append(result, c)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].PeriodEnd.Equal(result[j].PeriodEnd) {
			return result[i].MemberID < result[j].MemberID
		}
		return result[i].PeriodEnd.Before(result[j].PeriodEnd)
	})
	return result, nil
}

// -----------------------------------------------------------------------------
// RemittanceStore
// -----------------------------------------------------------------------------

func (m *Memory) Create(_ context.Context, rem *pension.ContributionRemittance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remittances[rem.ID] = copyRemittance(rem)
	return nil
}

func (m *Memory) Get(_ context.Context, id pension.RemittanceID) (*pension.ContributionRemittance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rem, ok := m.remittances[id]
	if !ok {
		return nil, nil
	}
	out := copyRemittance(&rem)
	return &out, nil
}

func (m *Memory) Update(_ context.Context, rem *pension.ContributionRemittance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.remittances[rem.ID]
	if !ok {
		return pension.ErrRemittanceNotFound
	}
	if existing.Status != rem.Status && !existing.Status.CanTransition(rem.Status) {
		// A sandbox submit moves draft to confirmed in one write; accept
		// it as the composition of two legal steps.
		if !(existing.Status == pension.RemittanceDraft && rem.Status == pension.RemittanceConfirmed) {
			return pension.ErrInvalidTransition
		}
	}
	m.remittances[rem.ID] = copyRemittance(rem)
	return nil
}

// copyRemittance keeps callers from mutating stored state through shared
// slices or pointers.
func copyRemittance(rem *pension.ContributionRemittance) pension.ContributionRemittance {
	out := *rem
	out.MemberIDs = append([]pension.MemberID(nil), rem.MemberIDs...)
	if rem.SubmittedAt != nil {
		t := *rem.SubmittedAt
		out.SubmittedAt = &t
	}
	if rem.ConfirmedAt != nil {
		t := *rem.ConfirmedAt
		out.ConfirmedAt = &t
	}
	return out
}
