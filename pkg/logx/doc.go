// Package logx wraps zerolog behind a small Logger/Service pair.
//
// The Service owns the sinks (console, optional file) and can swap
// levels/outputs at runtime via Apply(); Loggers handed out by the
// Service stay live across those swaps.
package logx
