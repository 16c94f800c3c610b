// Package logx configures chainjobs' structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional Telegram sink for operators (min-level + rate limiting)
//
// Scheduled job failures are only ever visible through these sinks.
package logx
