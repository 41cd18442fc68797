/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/suparena/pagecache"
	"github.com/suparena/pagecache/config"
	"github.com/suparena/pagecache/errors"
	"github.com/suparena/pagecache/models"
	remotemock "github.com/suparena/pagecache/remote/mock"
)

// useMockEngine opens every engine on the memory driver and a scripted remote
func useMockEngine(t *testing.T, source *remotemock.Source) {
	t.Helper()
	previous := openEngine
	openEngine = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pagecache.Engine, error) {
		cfg.Store.Driver = "memory"
		return pagecache.Open(ctx, cfg, logger, pagecache.WithSource(source))
	}
	t.Cleanup(func() { openEngine = previous })
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBrowse(t *testing.T) {
	source := remotemock.New().WithSequentialRecords(1, 45)
	useMockEngine(t, source)

	out, err := run(t, "browse", "--limit", "30", "-o", "json")
	require.NoError(t, err)

	var records []models.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 30)
	assert.Equal(t, 1, records[0].ID)
	assert.Equal(t, 30, records[29].ID)
	assert.Equal(t, 2, source.PageCalls())
}

func TestBrowseRejectsBadLimit(t *testing.T) {
	useMockEngine(t, remotemock.New())
	_, err := run(t, "browse", "--limit", "0")
	assert.True(t, errors.IsValidationError(err))
}

func TestGet(t *testing.T) {
	useMockEngine(t, remotemock.New().WithSequentialRecords(1, 10))

	out, err := run(t, "get", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "record-7")

	_, err = run(t, "get", "abc")
	assert.True(t, errors.IsValidationError(err))

	_, err = run(t, "get", "99")
	assert.True(t, errors.IsNotFound(err))
}

func TestSearch(t *testing.T) {
	useMockEngine(t, remotemock.New().WithSequentialRecords(1, 30))

	out, err := run(t, "search", "25", "-o", "yaml")
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "record-25", records[0]["name"])

	out, err = run(t, "search", "missingno")
	require.NoError(t, err)
	assert.Contains(t, out, `no records match "missingno"`)
}

func TestListIsLocalOnly(t *testing.T) {
	source := remotemock.New().WithSequentialRecords(1, 30)
	useMockEngine(t, source)

	out, err := run(t, "list", "--limit", "5")
	require.NoError(t, err)
	assert.Empty(t, out, "a fresh memory store is empty")
	assert.Equal(t, 0, source.PageCalls())
}

func TestRefreshAndStats(t *testing.T) {
	useMockEngine(t, remotemock.New().WithSequentialRecords(1, 30))

	out, err := run(t, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "refreshed: 20 records loaded")

	out, err = run(t, "stats", "-o", "json")
	require.NoError(t, err)
	var stats pagecache.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, "memory", stats.Driver)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pagecache version "+pagecache.Version)
}

func TestUnknownOutput(t *testing.T) {
	useMockEngine(t, remotemock.New().WithSequentialRecords(1, 3))
	_, err := run(t, "stats", "-o", "xml")
	assert.True(t, errors.IsValidationError(err))
}
