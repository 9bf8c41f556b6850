package models

import "errors"

// Custom errors
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key violation")
	ErrInvalidID      = errors.New("invalid ID format")
	ErrInvalidCadence = errors.New("invalid cadence")
	ErrInvalidRange   = errors.New("start date must not be after end date")
	ErrRunNotPending  = errors.New("backtest run is not pending")
)
