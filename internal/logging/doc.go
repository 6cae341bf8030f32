// Package logging builds the slog loggers used by pubcover.
//
// Two formats are supported: "console" writes one human-readable line per
// record, with coloured level labels when the output is a terminal, and
// "json" writes one JSON object per record.
package logging
