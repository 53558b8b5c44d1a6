package utils

import (
	"fmt"
	"runtime"
)

func bToMb(b uint64) uint64 { return b / 1024 / 1024 }

// GetMemUsage reports heap and system memory of the process
func GetMemUsage() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return fmt.Sprintf("Alloc = %v MiB Sys = %v MiB NumGC = %v",
		bToMb(m.HeapAlloc), bToMb(m.Sys), m.NumGC)
}
