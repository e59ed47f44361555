//go:build windows

package log

func isInvalidSync(error) bool { return false }
