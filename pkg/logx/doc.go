// Package logx configures fxcalbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured and rotated
//   - Optional Telegram sink to the admin chat (min-level + rate limiting)
package logx
