// Package logging wraps zap with a small, opinionated surface: leveled
// structured logging, named child loggers, JSON or console encoding, and a
// runtime-adjustable level so a running daemon can change verbosity without
// a restart.
package logging
