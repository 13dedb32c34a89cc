//go:build windows

package platform

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

type mutexLinkLock struct {
	handle windows.Handle
}

func acquireLinkLock(name string) (LinkLock, error) {
	namePtr, err := windows.UTF16PtrFromString(`Local\xbee-go-link-` + name)
	if err != nil {
		return nil, fmt.Errorf("encode link mutex name: %w", err)
	}

	handle, err := windows.CreateMutex(nil, false, namePtr)
	if err != nil {
		if handle != 0 {
			_ = windows.CloseHandle(handle)
		}
		if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
			return nil, ErrLinkBusy
		}

		return nil, fmt.Errorf("create link mutex: %w", err)
	}

	return &mutexLinkLock{handle: handle}, nil
}

func (l *mutexLinkLock) Release() error {
	if l == nil || l.handle == 0 {
		return nil
	}

	err := windows.CloseHandle(l.handle)
	l.handle = 0
	if err != nil {
		return fmt.Errorf("close link mutex: %w", err)
	}

	return nil
}
