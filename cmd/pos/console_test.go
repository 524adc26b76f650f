package main

import (
	"context"
	"testing"

	"github.com/fekuna/omnipos-offline/internal/api"
	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/model"
	"github.com/fekuna/omnipos-offline/internal/scan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScanner struct {
	results  map[string]scan.Result
	scanned  []string
	selected []int
}

func (f *fakeScanner) Scan(ctx context.Context, code string) scan.Result {
	f.scanned = append(f.scanned, code)
	if res, ok := f.results[code]; ok {
		return res
	}
	return scan.Result{Outcome: scan.NotFound, Code: code}
}

func (f *fakeScanner) Select(ctx context.Context, res scan.Result, idx int) (scan.Result, error) {
	f.selected = append(f.selected, idx)
	m := res.Matches[idx]
	return scan.Result{Outcome: scan.Resolved, Code: res.Code, Item: &model.CatalogItem{ID: m.ID, Name: m.Name}, Source: scan.SourceSelection}, nil
}

func ambiguous(code string) scan.Result {
	return scan.Result{Outcome: scan.Ambiguous, Code: code, Matches: []api.Match{
		{ID: 31, Name: "Amoxicillin 250"},
		{ID: 32, Name: "Amoxicillin 500"},
	}}
}

func TestConsoleSelectsCandidate(t *testing.T) {
	f := &fakeScanner{results: map[string]scan.Result{"8901234567890": ambiguous("8901234567890")}}
	buf := scan.NewKeystrokeBuffer()
	c := newScanConsole(f, buf, logger.NewNop())
	ctx := context.Background()

	res := c.handle(ctx, "8901234567890")
	require.Equal(t, scan.Ambiguous, res.Outcome)
	assert.Equal(t, 1, buf.MinLen, "short lines accepted while a choice is open")

	res = c.handle(ctx, "2")
	require.Equal(t, scan.Resolved, res.Outcome)
	assert.EqualValues(t, 32, res.Item.ID)
	assert.Equal(t, []int{1}, f.selected)
	assert.Equal(t, 3, buf.MinLen)

	c.handle(ctx, "2")
	assert.Equal(t, []int{1}, f.selected, "no choice open")
	assert.Equal(t, []string{"8901234567890", "2"}, f.scanned)
}

func TestConsoleOutOfRangeNumberIsScanned(t *testing.T) {
	f := &fakeScanner{results: map[string]scan.Result{"8901234567890": ambiguous("8901234567890")}}
	c := newScanConsole(f, scan.NewKeystrokeBuffer(), logger.NewNop())
	ctx := context.Background()

	c.handle(ctx, "8901234567890")
	res := c.handle(ctx, "5000123")
	assert.Equal(t, scan.NotFound, res.Outcome)
	assert.Empty(t, f.selected)
	assert.Nil(t, c.pending)
}

