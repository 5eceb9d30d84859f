// Package logging provides structured logging for the alarm node.
//
// Built on log/slog, it adds:
//   - Level filtering from configuration (debug, info, warn, error)
//   - JSON output for production, text for development
//   - Default service/version attributes on every record
//
// Components that should not depend on this package directly accept a
// small local Logger interface instead; *logging.Logger satisfies those
// interfaces through its embedded slog.Logger.
package logging
