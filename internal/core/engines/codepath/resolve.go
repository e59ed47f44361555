// Package codepath 解析执行后端读取的代码路径
package codepath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/weisyn/chainruntime/pkg/constants"
)

var (
	// ErrInvalidCodePath 路径为空、过长或不是普通文件
	ErrInvalidCodePath = errors.New("invalid code path")

	// ErrSymlinkChainTooLong 符号链接层数超过上限
	ErrSymlinkChainTooLong = errors.New("symlink chain too long")

	// ErrOutsideCodeRoot 解析结果位于代码根目录之外
	ErrOutsideCodeRoot = errors.New("code path outside code root")
)

// Resolve 逐层解析符号链接，返回最终的普通文件路径
//
// 路径长度不超过 constants.MaxPathLength，链接层数不超过 constants.MaxSymlinkChainLength。
func Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidCodePath)
	}
	if len(path) > constants.MaxPathLength {
		return "", fmt.Errorf("%w: path length %d exceeds %d", ErrInvalidCodePath, len(path), constants.MaxPathLength)
	}

	current := filepath.Clean(path)
	for hops := 0; ; hops++ {
		info, err := os.Lstat(current)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidCodePath, err)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			if !info.Mode().IsRegular() {
				return "", fmt.Errorf("%w: %s is not a regular file", ErrInvalidCodePath, current)
			}
			return current, nil
		}
		if hops >= constants.MaxSymlinkChainLength {
			return "", fmt.Errorf("%w: %s", ErrSymlinkChainTooLong, path)
		}

		target, err := os.Readlink(current)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidCodePath, err)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		if len(target) > constants.MaxPathLength {
			return "", fmt.Errorf("%w: link target length %d exceeds %d", ErrInvalidCodePath, len(target), constants.MaxPathLength)
		}
		current = filepath.Clean(target)
	}
}

// ResolveWithin 在代码根目录内解析路径
//
// root 为空时等同于 Resolve。相对路径以 root 为基准；
// 解析后的真实路径（含目录层级的链接）必须仍在 root 之下。
func ResolveWithin(root, path string) (string, error) {
	if root == "" {
		return Resolve(path)
	}
	base, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: code root %s: %w", ErrInvalidCodePath, root, err)
	}
	if base, err = filepath.EvalSymlinks(base); err != nil {
		return "", fmt.Errorf("%w: code root %s: %w", ErrInvalidCodePath, root, err)
	}

	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	resolved, err := Resolve(path)
	if err != nil {
		return "", err
	}
	actual, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCodePath, err)
	}
	if actual, err = filepath.Abs(actual); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCodePath, err)
	}

	rel, err := filepath.Rel(base, actual)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideCodeRoot, path)
	}
	return actual, nil
}

// ReadFile 解析路径并读取文件内容
func ReadFile(path string) ([]byte, string, error) {
	resolved, err := Resolve(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, resolved, fmt.Errorf("read %s: %w", resolved, err)
	}
	return data, resolved, nil
}
