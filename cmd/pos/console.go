package main

import (
	"context"
	"strconv"

	"github.com/fekuna/omnipos-offline/internal/logger"
	"github.com/fekuna/omnipos-offline/internal/scan"
	"go.uber.org/zap"
)

type scanner interface {
	Scan(ctx context.Context, code string) scan.Result
	Select(ctx context.Context, res scan.Result, idx int) (scan.Result, error)
}

// scanConsole feeds scanner input to the pipeline. While an ambiguous scan
// is pending, a line holding a candidate number (1-based) picks it.
type scanConsole struct {
	scanner scanner
	buf     *scan.KeystrokeBuffer
	minLen  int
	logger  logger.ZapLogger

	pending *scan.Result
}

func newScanConsole(s scanner, buf *scan.KeystrokeBuffer, log logger.ZapLogger) *scanConsole {
	return &scanConsole{scanner: s, buf: buf, minLen: buf.MinLen, logger: log}
}

func (c *scanConsole) handle(ctx context.Context, line string) scan.Result {
	if c.pending != nil {
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(c.pending.Matches) {
			res, err := c.scanner.Select(ctx, *c.pending, n-1)
			if err != nil {
				c.logger.Warn("Candidate selection failed", zap.Int("candidate", n), zap.Error(err))
				return scan.Result{Outcome: scan.Failed, Code: c.pending.Code, Mode: c.pending.Mode, Err: err}
			}
			c.setPending(nil)
			c.log(res)
			return res
		}
	}

	res := c.scanner.Scan(ctx, line)
	if res.Outcome == scan.Dropped {
		return res
	}
	if res.Outcome == scan.Ambiguous {
		c.setPending(&res)
	} else {
		c.setPending(nil)
	}
	c.log(res)
	return res
}

// setPending lets short index lines through the buffer only while a choice is open.
func (c *scanConsole) setPending(res *scan.Result) {
	c.pending = res
	if res != nil {
		c.buf.MinLen = 1
		return
	}
	c.buf.MinLen = c.minLen
}

func (c *scanConsole) log(res scan.Result) {
	fields := []zap.Field{
		zap.String("barcode", res.Code),
		zap.String("outcome", res.Outcome.String()),
		zap.String("source", string(res.Source)),
	}
	switch res.Outcome {
	case scan.Resolved:
		fields = append(fields, zap.Int64("item_id", res.Item.ID), zap.String("name", res.Item.Name))
	case scan.Ambiguous:
		for i, m := range res.Matches {
			c.logger.Info("Candidate",
				zap.Int("number", i+1),
				zap.Int64("item_id", m.ID),
				zap.String("name", m.Name),
				zap.Float64("confidence", m.Confidence),
			)
		}
		fields = append(fields, zap.String("hint", "enter a candidate number to select it"))
	case scan.Failed:
		fields = append(fields, zap.Error(res.Err))
	}
	c.logger.Info("Scan", fields...)
}
