// Package tgui provides small Telegram text helpers:
//   - MarkdownV2 escaping and inline formatting (MD)
//   - A message builder that pairs MarkdownV2 text with a plain fallback
//   - Splitting of long texts into Telegram-sized chunks
//
// Values of type MD are always safe for ParseMode="MarkdownV2": every piece of
// caller text goes through Esc before it is wrapped.
package tgui
