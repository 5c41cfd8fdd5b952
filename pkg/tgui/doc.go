// Package tgui holds small helpers for Telegram HTML messages:
//   - escaping and the bold/italic/link builders accepted by ParseMode "HTML"
//   - URL keyboards
//   - splitting long texts at Telegram's message limit
package tgui
