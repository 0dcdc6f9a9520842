// Package cache implements spec.md §4.6's ResultCache: a bounded LRU map
// of CommandResults with hard count/byte limits plus adaptive eviction
// under system or process memory pressure.
package cache

import (
	"os"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// MemoryPressureProvider reports system-wide memory load against a
// configured threshold (spec §6 collaborator contract). Implementations
// must not panic; safeSystemPressureRatio below treats a returned error as
// no pressure but does not recover from a panic.
type MemoryPressureProvider interface {
	MemoryLoadBytes() (uint64, error)
	HighMemoryLoadThresholdBytes() (uint64, error)
}

// ProcessMemoryProvider reports this process's private-bytes usage
// (spec §6).
type ProcessMemoryProvider interface {
	PrivateBytes() (uint64, error)
}

// GopsutilMemoryProvider backs MemoryPressureProvider with
// github.com/shirou/gopsutil/v4, grounded on the memory-probing
// convention shared across the example pack's agent-runner manifests.
// ThresholdBytes is a fixed configured ceiling; when zero, total system
// memory is used as the threshold.
type GopsutilMemoryProvider struct {
	ThresholdBytes uint64
}

func (p GopsutilMemoryProvider) MemoryLoadBytes() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Used, nil
}

func (p GopsutilMemoryProvider) HighMemoryLoadThresholdBytes() (uint64, error) {
	if p.ThresholdBytes > 0 {
		return p.ThresholdBytes, nil
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}

// GopsutilProcessMemoryProvider backs ProcessMemoryProvider with the
// current process's RSS via gopsutil.
type GopsutilProcessMemoryProvider struct {
	ThresholdBytes uint64
}

func (p GopsutilProcessMemoryProvider) PrivateBytes() (uint64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

// safeSystemPressureRatio returns (load/threshold) for provider p,
// treating any error as "no pressure" (spec §6 "exceptions from either
// property must be caught ... and treated as no adaptive pressure").
func safeSystemPressureRatio(p MemoryPressureProvider) float64 {
	if p == nil {
		return 0
	}
	load, err := p.MemoryLoadBytes()
	if err != nil {
		return 0
	}
	threshold, err := p.HighMemoryLoadThresholdBytes()
	if err != nil || threshold == 0 {
		return 0
	}
	return float64(load) / float64(threshold)
}

// safeProcessPressureRatio returns (privateBytes/thresholdBytes) for
// provider p, same exception discipline as safeSystemPressureRatio.
func safeProcessPressureRatio(p ProcessMemoryProvider, thresholdBytes uint64) float64 {
	if p == nil || thresholdBytes == 0 {
		return 0
	}
	private, err := p.PrivateBytes()
	if err != nil {
		return 0
	}
	return float64(private) / float64(thresholdBytes)
}
