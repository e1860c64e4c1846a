// Package store provides in-memory implementations of the ledger storage
// interfaces, used by engine tests and demos.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/billing-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements every ledger store interface over maps. Safe for
// concurrent use.
type Memory struct {
	mu sync.RWMutex

	workPackages map[ledger.WorkPackageID]ledger.WorkPackage
	periods      map[ledger.WorkPackageID][]ledger.ValidityPeriod
	models       map[string]ledger.CorrectionModel
	assignments  map[ledger.WorkPackageID][]ledger.ModelAssignment

	worklogs        map[worklogKey][]ledger.WorklogEntry
	metrics         map[metricKey]ledger.MonthlyMetric
	regularizations map[string]ledger.Regularization
	tickets         map[ledger.WorkPackageID]map[string]ledger.Ticket

	syncRuns    []ledger.SyncRun
	syncStopped bool
}

type worklogKey struct {
	WorkPackageID ledger.WorkPackageID
	Month         ledger.MonthKey
}

type metricKey struct {
	WorkPackageID ledger.WorkPackageID
	Month         ledger.MonthKey
}

func NewMemory() *Memory {
	return &Memory{
		workPackages:    make(map[ledger.WorkPackageID]ledger.WorkPackage),
		periods:         make(map[ledger.WorkPackageID][]ledger.ValidityPeriod),
		models:          make(map[string]ledger.CorrectionModel),
		assignments:     make(map[ledger.WorkPackageID][]ledger.ModelAssignment),
		worklogs:        make(map[worklogKey][]ledger.WorklogEntry),
		metrics:         make(map[metricKey]ledger.MonthlyMetric),
		regularizations: make(map[string]ledger.Regularization),
		tickets:         make(map[ledger.WorkPackageID]map[string]ledger.Ticket),
	}
}

// =============================================================================
// CONFIG STORE
// =============================================================================

func (m *Memory) SaveWorkPackage(_ context.Context, wp ledger.WorkPackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workPackages[wp.ID] = wp
	return nil
}

func (m *Memory) GetWorkPackage(_ context.Context, id ledger.WorkPackageID) (*ledger.WorkPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wp, ok := m.workPackages[id]
	if !ok {
		return nil, nil
	}
	return &wp, nil
}

func (m *Memory) ListWorkPackages(_ context.Context) ([]ledger.WorkPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]ledger.WorkPackage, 0, len(m.workPackages))
	for _, wp := range m.workPackages {
		result = append(result, wp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) SavePeriod(_ context.Context, p ledger.ValidityPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.periods[p.WorkPackageID]
	for i, other := range existing {
		if other.ID == p.ID {
			existing[i] = p
			return nil
		}
	}
	m.periods[p.WorkPackageID] = append(existing, p)
	return nil
}

func (m *Memory) ListPeriods(_ context.Context, wpID ledger.WorkPackageID) ([]ledger.ValidityPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := append([]ledger.ValidityPeriod{}, m.periods[wpID]...)
	sort.Slice(result, func(i, j int) bool { return result[i].Start.Before(result[j].Start) })
	return result, nil
}

// SaveModel inserts or updates a model by code. The default flag is never
// written here; default changes go through SetDefaultModel.
func (m *Memory) SaveModel(_ context.Context, model ledger.CorrectionModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.models[model.Code]; ok {
		model.Version = existing.Version + 1
		model.IsDefault = existing.IsDefault
	} else {
		if model.Version == 0 {
			model.Version = 1
		}
		model.IsDefault = false
	}
	m.models[model.Code] = model
	return nil
}

func (m *Memory) GetModel(_ context.Context, code string) (*ledger.CorrectionModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	model, ok := m.models[code]
	if !ok {
		return nil, nil
	}
	return &model, nil
}

func (m *Memory) ListModels(_ context.Context) ([]ledger.CorrectionModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]ledger.CorrectionModel, 0, len(m.models))
	for _, model := range m.models {
		result = append(result, model)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (m *Memory) SetDefaultModel(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.models[code]
	if !ok {
		return ledger.ErrModelNotFound
	}
	// Clear all, then set one. The map is only touched under the lock, so
	// the two steps are atomic to readers.
	for c, model := range m.models {
		if model.IsDefault {
			model.IsDefault = false
			m.models[c] = model
		}
	}
	target.IsDefault = true
	m.models[code] = target
	return nil
}

func (m *Memory) GetDefaultModel(_ context.Context) (*ledger.CorrectionModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, model := range m.models {
		if model.IsDefault {
			return &model, nil
		}
	}
	return nil, nil
}

func (m *Memory) SaveAssignment(_ context.Context, a ledger.ModelAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.assignments[a.WorkPackageID]
	for i, other := range existing {
		if other.ID == a.ID {
			existing[i] = a
			return nil
		}
	}
	m.assignments[a.WorkPackageID] = append(existing, a)
	return nil
}

func (m *Memory) ListAssignments(_ context.Context, wpID ledger.WorkPackageID) ([]ledger.ModelAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := append([]ledger.ModelAssignment{}, m.assignments[wpID]...)
	sort.Slice(result, func(i, j int) bool { return result[i].Start.Before(result[j].Start) })
	return result, nil
}

// =============================================================================
// WORKLOG STORE
// =============================================================================

func (m *Memory) ReplaceMonth(_ context.Context, wpID ledger.WorkPackageID, month ledger.MonthKey, entries []ledger.WorklogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := worklogKey{WorkPackageID: wpID, Month: month}
	replacement := make([]ledger.WorklogEntry, len(entries))
	copy(replacement, entries)
	sort.Slice(replacement, func(i, j int) bool {
		if !replacement[i].Date.Equal(replacement[j].Date) {
			return replacement[i].Date.Before(replacement[j].Date)
		}
		return replacement[i].ID < replacement[j].ID
	})
	m.worklogs[k] = replacement
	return nil
}

func (m *Memory) EntriesForMonth(_ context.Context, wpID ledger.WorkPackageID, month ledger.MonthKey) ([]ledger.WorklogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k := worklogKey{WorkPackageID: wpID, Month: month}
	return append([]ledger.WorklogEntry{}, m.worklogs[k]...), nil
}

func (m *Memory) EntriesInRange(_ context.Context, wpID ledger.WorkPackageID, from, to ledger.Date) ([]ledger.WorklogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []ledger.WorklogEntry
	for _, month := range ledger.MonthsBetween(from, to) {
		k := worklogKey{WorkPackageID: wpID, Month: month}
		for _, e := range m.worklogs[k] {
			if from.BeforeOrEqual(e.Date) && e.Date.BeforeOrEqual(to) {
				result = append(result, e)
			}
		}
	}
	return result, nil
}

// =============================================================================
// METRIC STORE
// =============================================================================

func (m *Memory) UpsertMetric(_ context.Context, metric ledger.MonthlyMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := metricKey{WorkPackageID: metric.WorkPackageID, Month: metric.Bucket()}
	m.metrics[k] = metric
	return nil
}

func (m *Memory) GetMetric(_ context.Context, wpID ledger.WorkPackageID, month ledger.MonthKey) (*ledger.MonthlyMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	metric, ok := m.metrics[metricKey{WorkPackageID: wpID, Month: month}]
	if !ok {
		return nil, nil
	}
	return &metric, nil
}

func (m *Memory) MetricsInRange(_ context.Context, wpID ledger.WorkPackageID, from, to ledger.Date) ([]ledger.MonthlyMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []ledger.MonthlyMetric
	for k, metric := range m.metrics {
		if k.WorkPackageID != wpID {
			continue
		}
		first := metric.Bucket().First()
		if from.BeforeOrEqual(first) && first.BeforeOrEqual(to) {
			result = append(result, metric)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Bucket().Before(result[j].Bucket())
	})
	return result, nil
}

// =============================================================================
// REGULARIZATION STORE
// =============================================================================

func (m *Memory) InsertRegularization(_ context.Context, r ledger.Regularization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Type == ledger.RegManualConsumption {
		for _, other := range m.regularizations {
			if other.Type == ledger.RegManualConsumption &&
				other.WorkPackageID == r.WorkPackageID &&
				other.Date.Equal(r.Date) &&
				other.TicketKey == r.TicketKey &&
				other.Quantity.Equal(r.Quantity) {
				return &ledger.DuplicateRegularizationError{
					WorkPackageID: r.WorkPackageID,
					Date:          r.Date,
					TicketKey:     r.TicketKey,
					ExistingID:    other.ID,
				}
			}
		}
	}
	m.regularizations[r.ID] = r
	return nil
}

func (m *Memory) UpdateRegularization(_ context.Context, r ledger.Regularization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.regularizations[r.ID]; !ok {
		return ledger.ErrRegularizationNotFound
	}
	m.regularizations[r.ID] = r
	return nil
}

func (m *Memory) DeleteRegularization(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.regularizations, id)
	return nil
}

func (m *Memory) GetRegularization(_ context.Context, id string) (*ledger.Regularization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regularizations[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) ListRegularizations(_ context.Context, wpID ledger.WorkPackageID, from, to ledger.Date, types ...ledger.RegularizationType) ([]ledger.Regularization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []ledger.Regularization
	for _, r := range m.regularizations {
		if r.WorkPackageID != wpID {
			continue
		}
		if r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		if len(types) > 0 && !containsType(types, r.Type) {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) ExcessForPeriod(_ context.Context, periodID string) (*ledger.Regularization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.regularizations {
		if r.Type == ledger.RegExcess && r.PeriodID == periodID {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}

func containsType(types []ledger.RegularizationType, t ledger.RegularizationType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// =============================================================================
// TICKET STORE
// =============================================================================

func (m *Memory) UpsertTickets(_ context.Context, tickets []ledger.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tickets {
		byKey := m.tickets[t.WorkPackageID]
		if byKey == nil {
			byKey = make(map[string]ledger.Ticket)
			m.tickets[t.WorkPackageID] = byKey
		}
		byKey[t.Key] = t
	}
	return nil
}

func (m *Memory) TicketsByWorkPackage(_ context.Context, wpID ledger.WorkPackageID) ([]ledger.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []ledger.Ticket
	for _, t := range m.tickets[wpID] {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// =============================================================================
// SYNC RUN STORE
// =============================================================================

func (m *Memory) SaveSyncRun(_ context.Context, run ledger.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, other := range m.syncRuns {
		if other.ID == run.ID {
			m.syncRuns[i] = run
			return nil
		}
	}
	m.syncRuns = append(m.syncRuns, run)
	return nil
}

func (m *Memory) ListSyncRuns(_ context.Context, wpID ledger.WorkPackageID, limit int) ([]ledger.SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []ledger.SyncRun
	for i := len(m.syncRuns) - 1; i >= 0; i-- {
		run := m.syncRuns[i]
		if wpID != "" && run.WorkPackageID != wpID {
			continue
		}
		result = append(result, run)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *Memory) IsSyncStopped(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.syncStopped, nil
}

func (m *Memory) SetSyncStopped(_ context.Context, stopped bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncStopped = stopped
	return nil
}
