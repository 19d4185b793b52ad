// Package logging provides concrete implementations of the csvdelta.Logger interface.
//
// Available implementations:
//   - ConsoleLogger: zap console encoder on stderr; Verbose maps to debug level
//   - NullLogger: Discards all messages (useful for testing)
//
// All logger implementations are safe for concurrent use by multiple goroutines.
package logging
