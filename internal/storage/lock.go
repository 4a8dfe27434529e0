package storage

import (
	"os"
	"sync"
	"syscall"
)

// FileLock is an exclusive flock on "<path>.lock". The lock file is never
// removed: a waiter blocked on the old inode would otherwise acquire its
// lock while a newcomer locks a freshly created file.
type FileLock struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewFileLock creates a new file lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (l *FileLock) open() error {
	f, err := os.OpenFile(l.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// Lock acquires the lock, blocking until it is free. It excludes other
// FileLocks on the same path in this process and in other processes.
func (l *FileLock) Lock() error {
	l.mu.Lock()

	if err := l.open(); err != nil {
		l.mu.Unlock()
		return err
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX); err != nil {
		l.file.Close()
		l.file = nil
		l.mu.Unlock()
		return err
	}
	return nil
}

// TryLock attempts to acquire the lock without blocking.
func (l *FileLock) TryLock() bool {
	if !l.mu.TryLock() {
		return false
	}

	if err := l.open(); err != nil {
		l.mu.Unlock()
		return false
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		l.file.Close()
		l.file = nil
		l.mu.Unlock()
		return false
	}
	return true
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	l.mu.Unlock()

	return err
}
