// Package logx configures adminpanel's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - Console output stays readable (short timestamp + short caller)
//   - File output is JSON, one event per line
//   - An optional Telegram sink forwards warnings to the administrator chat
//     (min-level + rate limited, never blocks the caller)
package logx
