//go:build unix

package fsx

import (
	"errors"
	"syscall"
)

func isStorageErrno(err error) bool {
	return errors.Is(err, syscall.EROFS) ||
		errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EDQUOT) ||
		errors.Is(err, syscall.EACCES)
}
