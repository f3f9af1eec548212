package sshconn

import (
	"errors"
	"fmt"
)

// Kind classifies a failure of the remote streaming engine. Every error
// returned by this package (and by sshlogs/sshmanager) wraps exactly one of
// the sentinel errors below, so callers branch with errors.Is and report the
// Kind string to clients.
type Kind string

const (
	KindNone               Kind = ""
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnreachable        Kind = "unreachable"
	KindHandshakeFailed    Kind = "handshake_failed"
	KindAuthRejected       Kind = "auth_rejected"
	KindCommandRejected    Kind = "command_rejected"
	KindDecode             Kind = "decode_error"
	KindCancelled          Kind = "cancelled"
	KindEOF                Kind = "eof"
	KindStream             Kind = "stream_error"
	KindRateLimited        Kind = "rate_limited"
	KindHostRestricted     Kind = "host_restricted"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnreachable        = errors.New("host unreachable")
	ErrHandshakeFailed    = errors.New("ssh handshake failed")
	ErrAuthRejected       = errors.New("ssh authentication rejected")
	ErrCommandRejected    = errors.New("remote command rejected")
	ErrDecode             = errors.New("content is not valid UTF-8")
	ErrCancelled          = errors.New("session cancelled")
	ErrEOF                = errors.New("remote stream ended")
	ErrStream             = errors.New("remote stream failed")
	ErrRateLimited        = errors.New("connection rate limited")
	ErrHostRestricted     = errors.New("host not allowed")
)

// ErrKeyUnusable means the local private key could not be read or parsed. It
// reports as KindAuthRejected but says nothing about the remote host.
var ErrKeyUnusable = fmt.Errorf("%w: private key unusable", ErrAuthRejected)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrUnreachable, KindUnreachable},
	{ErrHandshakeFailed, KindHandshakeFailed},
	{ErrAuthRejected, KindAuthRejected},
	{ErrCommandRejected, KindCommandRejected},
	{ErrDecode, KindDecode},
	{ErrCancelled, KindCancelled},
	{ErrEOF, KindEOF},
	{ErrStream, KindStream},
	{ErrRateLimited, KindRateLimited},
	{ErrHostRestricted, KindHostRestricted},
}

// KindOf returns the Kind of err, or KindNone if err is nil or unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindNone
}
