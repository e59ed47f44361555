package metrics

import "github.com/pbnjay/memory"

// HostMemory 主机物理内存（字节）；无法获取时为0
func HostMemory() uint64 {
	return memory.TotalMemory()
}

// ExceedsHostMemory 内存上限(MB)是否超过主机物理内存；主机内存未知时返回false
func ExceedsHostMemory(limitMB uint64, hostBytes uint64) bool {
	if hostBytes == 0 {
		return false
	}
	return limitMB > hostBytes/(1024*1024)
}
