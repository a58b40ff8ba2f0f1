// Package vocab holds the per-call knowledge snapshot (reference date plus the
// valid machine and KPI identifiers) and filters model-extracted identifiers
// against it.
package vocab

import (
	"context"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Sentinel tokens the extraction model uses instead of identifier lists.
const (
	TokenAll  = "ALL"
	TokenNull = "NULL"
)

// Source lists the identifiers a snapshot is built from.
type Source interface {
	// ProducingMachines returns machines that produce at least one KPI.
	ProducingMachines(ctx context.Context) ([]string, error)
	// AtomicKPIs returns KPIs that carry an atomic flag, true or false.
	AtomicKPIs(ctx context.Context) ([]string, error)
}

// Snapshot is an immutable view of the vocabulary and the reference date.
// Each top-level call holds its own Snapshot; nothing refreshes it in place.
type Snapshot struct {
	ref        time.Time
	machineIDs []string
	kpiIDs     []string
	machineSet mapset.Set[string]
	kpiSet     mapset.Set[string]
}

// NewSnapshot builds a Snapshot. Identifier order is kept (first occurrence
// wins) and is the order used when "all machines" expands to concrete ones.
func NewSnapshot(ref time.Time, machines, kpis []string) *Snapshot {
	y, m, d := ref.Date()
	s := &Snapshot{
		ref:        time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		machineSet: mapset.NewThreadUnsafeSet[string](),
		kpiSet:     mapset.NewThreadUnsafeSet[string](),
	}
	for _, id := range machines {
		if id != "" && s.machineSet.Add(id) {
			s.machineIDs = append(s.machineIDs, id)
		}
	}
	for _, id := range kpis {
		if id != "" && s.kpiSet.Add(id) {
			s.kpiIDs = append(s.kpiIDs, id)
		}
	}
	return s
}

// Load fetches the vocabulary from src and pins it to ref. This is the only
// call in a resolution that blocks; a failure is returned as-is, not retried.
func Load(ctx context.Context, src Source, ref time.Time) (*Snapshot, error) {
	machines, err := src.ProducingMachines(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing machines: %w", err)
	}
	kpis, err := src.AtomicKPIs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing kpis: %w", err)
	}
	return NewSnapshot(ref, machines, kpis), nil
}

// ReferenceDate is the "today" anchor for all relative time arithmetic.
func (s *Snapshot) ReferenceDate() time.Time { return s.ref }

// Machines returns a copy of the machine identifiers.
func (s *Snapshot) Machines() []string { return append([]string(nil), s.machineIDs...) }

// KPIs returns a copy of the KPI identifiers.
func (s *Snapshot) KPIs() []string { return append([]string(nil), s.kpiIDs...) }

// SelectMachines filters tokens against the machine universe.
func (s *Snapshot) SelectMachines(tokens []string) Selection {
	return Classify(Filter(tokens, s.machineSet))
}

// SelectKPIs filters tokens against the KPI universe.
func (s *Snapshot) SelectKPIs(tokens []string) Selection {
	return Classify(Filter(tokens, s.kpiSet))
}

// Static is a fixed in-memory Source.
type Static struct {
	MachineIDs []string
	KPIIDs     []string
}

func (s Static) ProducingMachines(context.Context) ([]string, error) {
	return append([]string(nil), s.MachineIDs...), nil
}

func (s Static) AtomicKPIs(context.Context) ([]string, error) {
	return append([]string(nil), s.KPIIDs...), nil
}
