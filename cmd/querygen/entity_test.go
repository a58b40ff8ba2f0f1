//go:build cgo

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/querygen/store"
)

func newEntityStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "entities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAddEntityBuildsVocabulary(t *testing.T) {
	st := newEntityStore(t)
	ctx := context.Background()
	yes, no := true, false

	_, err := addEntity(ctx, st, "machine", "Laser Cutter", "", nil)
	require.NoError(t, err)
	cycles, err := addEntity(ctx, st, "KPI", "cycles", "cycle count", &yes)
	require.NoError(t, err)
	assert.True(t, cycles.Atomic)
	assert.True(t, cycles.HasAtomic)
	util, err := addEntity(ctx, st, "kpi", "utilization", "", &no)
	require.NoError(t, err)
	assert.False(t, util.Atomic)
	assert.True(t, util.HasAtomic)
	_, err = addEntity(ctx, st, "kpi", "notes", "", nil)
	require.NoError(t, err)

	for _, kpi := range []string{"cycles", "utilization"} {
		_, err := linkEntities(ctx, st, "Laser Cutter", kpi)
		require.NoError(t, err)
	}

	machines, err := st.ProducingMachines(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Laser Cutter"}, machines)
	kpis, err := st.AtomicKPIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cycles", "utilization"}, kpis)

	// Re-saving without --atomic keeps the flag.
	again, err := addEntity(ctx, st, "kpi", "cycles", "new description", nil)
	require.NoError(t, err)
	assert.True(t, again.Atomic)
	assert.Equal(t, "new description", again.Description)
}

func TestAddEntityErrors(t *testing.T) {
	st := newEntityStore(t)
	ctx := context.Background()

	_, err := addEntity(ctx, st, "sensor", "x", "", nil)
	assert.ErrorContains(t, err, "unknown entity type")
	_, err = addEntity(ctx, st, "kpi", "  ", "", nil)
	assert.ErrorContains(t, err, "empty kpi name")
}

func TestLinkAndListLinks(t *testing.T) {
	st := newEntityStore(t)
	ctx := context.Background()

	_, err := linkEntities(ctx, st, "Mill", "cycles")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = addEntity(ctx, st, "machine", "Mill", "", nil)
	require.NoError(t, err)
	_, err = addEntity(ctx, st, "kpi", "cycles", "", nil)
	require.NoError(t, err)
	link, err := linkEntities(ctx, st, "Mill", "cycles")
	require.NoError(t, err)
	_, err = linkEntities(ctx, st, "Mill", "cycles")
	require.NoError(t, err)

	links, err := listLinks(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, []store.Link{link}, links)

	require.NoError(t, st.DeleteEntity(ctx, "cycles", store.EntityKPI))
	links, err = listLinks(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestListEntitiesByType(t *testing.T) {
	st := newEntityStore(t)
	ctx := context.Background()

	all, err := listEntities(ctx, st, "")
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)

	_, err = addEntity(ctx, st, "machine", "Mill", "", nil)
	require.NoError(t, err)
	_, err = addEntity(ctx, st, "kpi", "cycles", "", nil)
	require.NoError(t, err)

	machines, err := listEntities(ctx, st, "machines")
	require.NoError(t, err)
	require.Len(t, machines, 1)
	assert.Equal(t, "Mill", machines[0].Name)

	_, err = listEntities(ctx, st, "sensor")
	assert.Error(t, err)

	require.NoError(t, st.ClearOntology(ctx))
	all, err = listEntities(ctx, st, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}
