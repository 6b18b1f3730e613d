// Package menu acquires the weekly menu document and turns it into a
// sendable image: candidate URL resolution, week-keyed caching on disk, and
// rasterization through an external converter.
package menu

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSourceUnavailable means every candidate fetch for the current
	// week failed; there is nothing to deliver.
	ErrSourceUnavailable = errors.New("menu: source document unavailable")

	// ErrConversionFailed means the rasterizer did not produce an output
	// image. The source document stays cached so the next request only
	// retries the conversion.
	ErrConversionFailed = errors.New("menu: conversion failed")
)

// WeekKey identifies the calendar week a cached artifact belongs to.
type WeekKey struct {
	Year int
	Week int
}

func (k WeekKey) String() string { return fmt.Sprintf("%d-KW%02d", k.Year, k.Week) }

// weekOf returns the week key for a date. The week number counts Monday as
// the first day of the week, with days before the year's first Monday in
// week 0. This is the kitchen's filename convention (strftime %W), not the
// ISO week.
func weekOf(t time.Time) WeekKey {
	yday := t.YearDay() - 1
	monday := (int(t.Weekday()) + 6) % 7
	return WeekKey{Year: t.Year(), Week: (yday - monday + 7) / 7}
}
