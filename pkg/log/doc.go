// Package log provides structured protocol logging for presentation
// sessions.
//
// It defines the Logger interface and Event types for capturing
// protocol-level events: session state transitions, transport frames, and
// errors. It is separate from operational logging (slog) - protocol capture
// yields a machine-readable trace of a transaction for debugging and
// conformance analysis.
//
// Applications configure logging by providing a Logger implementation:
//
//	// Development: events in the console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: CBOR event file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/mdoc/holder.mlog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(...)
//
// Events never contain key material or decrypted attribute values; they
// carry state names, sizes, and error strings only.
package log
