package sam

import (
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"go.uber.org/zap"
)

const (
	// constrainedMemory 总内存低于该值视为受限环境 (4 GiB)
	constrainedMemory = 4 << 30
	// constrainedThreadCap 受限环境 (移动端/小内存) 的线程上限
	constrainedThreadCap = 4
	// threadCap 其余环境的 intra-op 线程上限
	threadCap = 8
)

type hostInfo struct {
	physicalCores int
	logicalCores  int
	constrained   bool
}

var (
	host     hostInfo
	hostOnce sync.Once
)

// probeHost 探测 CPU 核心数和内存, 只执行一次
func probeHost() hostInfo {
	hostOnce.Do(func() {
		host.logicalCores = runtime.NumCPU()
		host.physicalCores = host.logicalCores
		if n, err := cpu.Counts(false); err == nil && n > 0 {
			host.physicalCores = n
		}

		host.constrained = runtime.GOOS == "android" || runtime.GOOS == "ios"
		if vm, err := mem.VirtualMemory(); err == nil {
			if vm.Total < constrainedMemory {
				host.constrained = true
			}
			Logger().Debug("host probed",
				zap.Int("physical_cores", host.physicalCores),
				zap.Int("logical_cores", host.logicalCores),
				zap.Uint64("memory_total", vm.Total),
				zap.Bool("constrained", host.constrained))
		}
	})
	return host
}

// IntraOpThreads ONNX intra-op 线程数
//
// # Params:
//
//	requested: 期望的线程数, <= 0 时由物理核心数决定
func IntraOpThreads(requested int) int {
	h := probeHost()
	return boundThreads(requested, h.physicalCores, h.constrained)
}

// CompositeWorkers Mask 合成时的并行 worker 数
func CompositeWorkers() int {
	h := probeHost()
	n := max(1, 4*h.logicalCores/5)
	if h.constrained {
		n = min(n, constrainedThreadCap)
	}
	return n
}

func boundThreads(requested, cores int, constrained bool) int {
	limit := threadCap
	if constrained {
		limit = constrainedThreadCap
	}
	limit = min(limit, max(1, cores))

	if requested <= 0 {
		return limit
	}
	return min(requested, limit)
}
