// Package platform holds OS-specific helpers.
package platform

import (
	"errors"
	"strings"
)

// ErrLinkBusy is returned when another process already holds the lock for a radio link.
var ErrLinkBusy = errors.New("radio link is in use by another process")

// ErrLinkLockUnsupported indicates the current platform has no lock backend.
var ErrLinkLockUnsupported = errors.New("link lock unsupported")

// LinkLock is an exclusive, process-wide claim on one radio link. The OS
// drops it when the holder exits, even on a crash.
type LinkLock interface {
	Release() error
}

// AcquireLinkLock claims the link identified by target, e.g.
// "/dev/ttyUSB0@9600" or "bridge.local:9750". Only the port part before
// '@' is significant so two processes cannot open one serial device at
// different baud rates.
func AcquireLinkLock(target string) (LinkLock, error) {
	return acquireLinkLock(lockName(target))
}

// SameLink reports whether two targets map to the same lock.
func SameLink(a, b string) bool {
	return lockName(a) == lockName(b)
}

func lockName(target string) string {
	target = strings.TrimSpace(target)
	if i := strings.LastIndexByte(target, '@'); i > 0 {
		target = target[:i]
	}

	return sanitize(target, "link")
}

func sanitize(raw, fallback string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	if name := strings.Trim(b.String(), "_-."); name != "" {
		return name
	}

	return fallback
}
