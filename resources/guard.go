package resources

import (
	"fmt"
	"log"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Guard refuses new work when the host lacks headroom. A zero threshold
// disables that check.
type Guard struct {
	IdleCPU  float64 // percent of CPU that must be idle
	FreeMem  int64   // bytes
	FreeDisk int64   // bytes free under Dir
	Dir      string
	Logger   *log.Logger

	cpuPercent func(time.Duration, bool) ([]float64, error)
	memAvail   func() (uint64, error)
	diskFree   func(string) (uint64, error)
}

func NewGuard(idleCPU float64, freeMem, freeDisk int64, dir string, logger *log.Logger) *Guard {
	return &Guard{
		IdleCPU:    idleCPU,
		FreeMem:    freeMem,
		FreeDisk:   freeDisk,
		Dir:        dir,
		Logger:     logger,
		cpuPercent: cpu.Percent,
		memAvail: func() (uint64, error) {
			vm, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return vm.Available, nil
		},
		diskFree: func(path string) (uint64, error) {
			d, err := disk.Usage(path)
			if err != nil {
				return 0, err
			}
			return d.Free, nil
		},
	}
}

// Check verifies that the system has enough free resources to start a new job.
// Probe failures are logged and do not block work.
func (g *Guard) Check() error {
	if g.IdleCPU > 0 {
		p, err := g.cpuPercent(time.Second, false)
		if err != nil {
			g.Logger.Printf("Warning: could not get CPU usage: %v", err)
		} else if len(p) > 0 && p[0] > 100.0-g.IdleCPU {
			return fmt.Errorf("not enough idle CPU. Current usage: %.2f%%, Idle threshold: %.2f%%", p[0], g.IdleCPU)
		}
	}

	if g.FreeMem > 0 {
		avail, err := g.memAvail()
		if err != nil {
			g.Logger.Printf("Warning: could not get memory usage: %v", err)
		} else if avail < uint64(g.FreeMem) {
			return fmt.Errorf("not enough free memory. Available: %d, Required: %d", avail, g.FreeMem)
		}
	}

	if g.FreeDisk > 0 {
		free, err := g.diskFree(g.Dir)
		if err != nil {
			g.Logger.Printf("Warning: could not get disk usage for %s: %v", g.Dir, err)
		} else if free < uint64(g.FreeDisk) {
			return fmt.Errorf("not enough free disk space. Available: %d, Required: %d", free, g.FreeDisk)
		}
	}
	return nil
}
