//go:build unix

package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const lockDirName = "xbee-go-links"

type flockLinkLock struct {
	file *os.File
}

func acquireLinkLock(name string) (LinkLock, error) {
	path, err := linkLockPath(name)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- path is built from the runtime/temp dir and a sanitized name.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open link lock file: %w", err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, ErrLinkBusy
		}

		return nil, fmt.Errorf("flock link lock: %w", err)
	}

	return &flockLinkLock{file: file}, nil
}

func (l *flockLinkLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil && !errors.Is(unlockErr, syscall.EBADF) {
		return fmt.Errorf("unlock link lock: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close link lock file: %w", closeErr)
	}

	return nil
}

func linkLockPath(name string) (string, error) {
	dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if dir != "" {
		dir = filepath.Join(dir, lockDirName)
	} else {
		dir = filepath.Join(os.TempDir(), lockDirName+"-"+strconv.Itoa(os.Getuid()))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create link lock dir: %w", err)
	}

	return filepath.Join(dir, name+".lock"), nil
}
