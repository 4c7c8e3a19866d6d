package tgui

// TextLimit is the chunk size used when splitting outgoing texts.
// Telegram rejects messages above 4096 characters; the margin leaves room for
// escapes that land at a chunk boundary.
const TextLimit = 4000
