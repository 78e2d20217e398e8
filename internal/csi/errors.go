package csi

import "errors"

// Recoverable outcomes of the ingestion path. None of them halts the pipeline.
var (
	ErrUnmatchedSource      = errors.New("frame source does not match the expected address")
	ErrMalformedFrame       = errors.New("frame holds an incomplete I/Q pair")
	ErrInsufficientData     = errors.New("not enough samples buffered for a full window")
	ErrTransportUnavailable = errors.New("result transport is not ready")
)
