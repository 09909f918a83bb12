// Package transport delivers finished artifacts to the operator's Telegram
// chat.
//
// Two Bot API identities are supported: the primary one talks to the public
// api.telegram.org endpoint, which caps documents at 50 MB, while the
// secondary one talks to a self-hosted Bot API server with a much higher
// ceiling. Router picks between them by file size.
package transport
