package evo

import "errors"

var (
	ErrInvalidConfiguration    = errors.New("invalid configuration")
	ErrGenomeLengthMismatch    = errors.New("genome length mismatch")
	ErrDegenerateSelectionPool = errors.New("degenerate selection pool")
	// ErrDivisionByZeroFitness marks an agent sitting on the food cell without
	// having reached it. The evaluator guards it and reports it, it never aborts.
	ErrDivisionByZeroFitness = errors.New("division by zero fitness")
	ErrGenomeIndexOutOfRange = errors.New("genome index out of range")
	ErrInvalidState          = errors.New("invalid runner state")
)
