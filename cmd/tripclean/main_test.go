package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/transfer"
)

func TestBuildJobsSingleInput(t *testing.T) {
	jobs, err := buildJobs(jobOptions{
		inputs:  []string{"data/raw.csv"},
		outCSV:  "out/enriched.csv",
		logPath: "out/log.json",
		load:    true,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, transfer.SourceFile, jobs[0].Source)
	assert.Equal(t, "out/enriched.csv", jobs[0].OutputCSV)
	assert.Equal(t, "out/log.json", jobs[0].LogPath)
	assert.True(t, jobs[0].Load)
}

func TestBuildJobsOutDir(t *testing.T) {
	jobs, err := buildJobs(jobOptions{
		inputs:    []string{"a/jan.csv", "b/feb.csv"},
		outDir:    "out",
		snowflake: "PUBLIC.RAW_TRIPS",
	})
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, filepath.Join("out", "jan.enriched.csv"), jobs[0].OutputCSV)
	assert.Equal(t, filepath.Join("out", "feb.cleaning_log.json"), jobs[1].LogPath)
	assert.Equal(t, transfer.SourceSnowflake, jobs[2].Source)
	assert.Equal(t, filepath.Join("out", "PUBLIC_RAW_TRIPS.enriched.csv"), jobs[2].OutputCSV)
	assert.False(t, jobs[0].Load)
}

func TestBuildJobsErrors(t *testing.T) {
	tests := []struct {
		name string
		opts jobOptions
	}{
		{"no inputs", jobOptions{outDir: "out"}},
		{"no outputs", jobOptions{inputs: []string{"a.csv"}}},
		{"csv without log", jobOptions{inputs: []string{"a.csv"}, outCSV: "o.csv"}},
		{"explicit outputs for several inputs", jobOptions{inputs: []string{"a.csv", "b.csv"}, outCSV: "o.csv", logPath: "l.json"}},
		{"colliding outputs", jobOptions{inputs: []string{"x/a.csv", "y/a.csv"}, outDir: "out"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildJobs(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestNewAppCommands(t *testing.T) {
	app := newApp()
	names := make([]string, 0, len(app.Commands))
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}
	assert.Equal(t, []string{"process", "load", "serve"}, names)
}
