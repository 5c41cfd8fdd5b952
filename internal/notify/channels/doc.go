// Package channels implements the Discord, Slack, Telegram and Email
// formatters and transports.
//
// Formatters are pure: they turn a notify.ContentBundle into a typed payload
// and never touch the network. Transports own the I/O and report provider
// failures as *notify.TransportError.
package channels
