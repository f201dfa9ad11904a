//go:build !windows

package main

import "syscall"

// detachAttr starts the daemon in its own session.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
