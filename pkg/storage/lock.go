package storage

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/tegdb/tegdb/pkg/errors"
)

// fileLock implementa a exclusão single-writer entre processos com
// flock(2) advisory sobre um arquivo ao lado do .teg.
//
// flock tranca o inode, não o pathname; por isso usamos um lock file
// dedicado e estável (<db>.lock) que nunca é substituído nem removido
// enquanto o banco existe.
type fileLock struct {
	file *os.File
	path string
}

func acquireLock(dbPath string) (*fileLock, error) {
	path := dbPath + ".lock"

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lockfile: %w", err)
	}

	if err := flockRetryEINTR(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
			return nil, &errors.FileLockTakenError{Path: dbPath}
		}
		return nil, fmt.Errorf("flock: %w", err)
	}

	return &fileLock{file: f, path: path}, nil
}

func (l *fileLock) release() error {
	if l.file == nil {
		return nil
	}
	unlockErr := flockRetryEINTR(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("unlocking lock: %w", unlockErr)
	}
	return closeErr
}

// flockRetryEINTR repete o flock em caso de EINTR (sinal interrompeu a
// syscall antes de completar). Limite de retries para não girar para sempre
// sob tempestade de sinais.
func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err != unix.EINTR {
			return err
		}
	}
	return err
}
