//go:build !windows

package log

import (
	"errors"
	"syscall"
)

// isInvalidSync 对终端或管道调用 fsync 返回 EINVAL/ENOTTY
func isInvalidSync(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
