package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *EmissionStore {
	t.Helper()
	store, err := OpenEmissionStore(filepath.Join(t.TempDir(), "emissions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEmissionStoreInsertAndCount(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	recs := []EmissionRecord{
		{RunID: "run-a", Tick: 1, SimTime: 0.1, VehicleID: "veh_0", Speed: 10.5, Headway: 12.0, Lane: 0, AccelCmd: 0.3},
		{RunID: "run-a", Tick: 1, SimTime: 0.1, VehicleID: "veh_1", Speed: 8.0, Headway: -0.5, Lane: 1, AccelCmd: -1.2, LaneChangeCmd: -1},
		{RunID: "run-a", Tick: 2, SimTime: 0.2, VehicleID: "veh_0", Speed: 10.6, Headway: 12.1, Lane: 0, AccelCmd: 0.2},
	}
	require.NoError(t, store.InsertBatch(recs))
	require.NoError(t, store.InsertBatch(nil)) // empty batch is a no-op

	n, err := store.CountByRun("run-a")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.CountByRun("run-b")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEmissionStoreExportCSV(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	require.NoError(t, store.InsertBatch([]EmissionRecord{
		{RunID: "run-a", Tick: 2, SimTime: 0.2, VehicleID: "veh_0", Speed: 11, Headway: 10, Lane: 0, AccelCmd: 0.1},
		{RunID: "run-a", Tick: 1, SimTime: 0.1, VehicleID: "veh_1", Speed: 9, Headway: 8, Lane: 1, AccelCmd: -0.2, LaneChangeCmd: -1},
		{RunID: "run-a", Tick: 1, SimTime: 0.1, VehicleID: "veh_0", Speed: 10, Headway: 12, Lane: 0, AccelCmd: 0.3},
		{RunID: "run-other", Tick: 1, SimTime: 0.1, VehicleID: "veh_9", Speed: 1, Headway: 1, Lane: 0, AccelCmd: 0},
	}))

	var buf bytes.Buffer
	require.NoError(t, store.ExportCSV("run-a", &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4) // header + 3 rows, other runs excluded
	assert.Equal(t, "tick,time,id,speed,headway,lane,accel_cmd,lane_change_cmd", lines[0])
	// ordered by tick then vehicle id
	assert.True(t, strings.HasPrefix(lines[1], "1,0.100,veh_0"))
	assert.True(t, strings.HasPrefix(lines[2], "1,0.100,veh_1"))
	assert.True(t, strings.HasPrefix(lines[3], "2,0.200,veh_0"))
	assert.Contains(t, lines[2], ",-1")
}
