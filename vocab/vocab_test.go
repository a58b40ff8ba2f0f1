package vocab

import (
	"context"
	"errors"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2024, 10, 19, 0, 0, 0, 0, time.UTC)

func TestFilter(t *testing.T) {
	machines := mapset.NewSet("Assembly Machine 1", "Assembly Machine 2")

	assert.Equal(t, []string{"Assembly Machine 1"},
		Filter([]string{"Assembly Machine 1", "Assembly Machine 6"}, machines))
	assert.Equal(t, []string{"ALL"}, Filter([]string{"ALL"}, machines))
	assert.Equal(t, []string{"NULL"}, Filter([]string{"NULL", "Riveting Machine"}, machines))
	assert.Equal(t, []string{}, Filter([]string{"assembly machine 1"}, machines))
	assert.Equal(t, []string{}, Filter(nil, machines))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		filtered []string
		want     Selection
	}{
		{"all", []string{"ALL"}, Selection{Kind: All}},
		{"none", []string{"NULL"}, Selection{Kind: None}},
		{"literal", []string{"a", "b"}, Selection{Kind: Literal, IDs: []string{"a", "b"}}},
		{"empty", []string{}, Selection{Kind: Literal, IDs: []string{}}},
		{"sentinel mixed with ids", []string{"ALL", "a", "NULL"}, Selection{Kind: Literal, IDs: []string{"a"}}},
		{"duplicates", []string{"a", "b", "a"}, Selection{Kind: Literal, IDs: []string{"a", "b"}}},
		{"repeated sentinel", []string{"ALL", "ALL"}, Selection{Kind: Literal, IDs: []string{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.filtered))
		})
	}
}

func TestSnapshot(t *testing.T) {
	clock := time.Date(2024, 10, 19, 17, 45, 0, 0, time.FixedZone("CEST", 2*3600))
	s := NewSnapshot(clock,
		[]string{"Assembly Machine 1", "Assembly Machine 2", "Assembly Machine 1", ""},
		[]string{"cost_idle_avg", "working_time_sum"})

	assert.Equal(t, today, s.ReferenceDate())
	assert.Equal(t, []string{"Assembly Machine 1", "Assembly Machine 2"}, s.Machines())
	assert.Equal(t, []string{"cost_idle_avg", "working_time_sum"}, s.KPIs())
	assert.Equal(t, LiteralOf("cost_idle_avg"), s.SelectKPIs([]string{"cost_idle_avg", "Assembly Machine 2"}))

	// Callers cannot reach the snapshot's own slices.
	m := s.Machines()
	m[0] = "mutated"
	assert.Equal(t, "Assembly Machine 1", s.Machines()[0])

	assert.Equal(t, LiteralOf("Assembly Machine 1"),
		s.SelectMachines([]string{"Assembly Machine 1", "Assembly Machine 6"}))
	assert.Equal(t, Selection{Kind: All}, s.SelectKPIs([]string{"ALL", "bogus_kpi"}))
	assert.Equal(t, Selection{Kind: None}, s.SelectKPIs([]string{"NULL"}))
}

type failingSource struct{ Static }

func (failingSource) AtomicKPIs(context.Context) ([]string, error) {
	return nil, errors.New("graph store offline")
}

func TestLoad(t *testing.T) {
	src := Static{
		MachineIDs: []string{"Riveting Machine", "Laser Cutter"},
		KPIIDs:     []string{"offline_time_med"},
	}
	s, err := Load(context.Background(), src, today)
	require.NoError(t, err)
	assert.Equal(t, src.MachineIDs, s.Machines())
	assert.Equal(t, src.KPIIDs, s.KPIs())

	_, err = Load(context.Background(), failingSource{src}, today)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing kpis")
}
