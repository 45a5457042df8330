package core

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"
)

// SystemStatus is the aggregate served to operators on the admin status route.
type SystemStatus struct {
	Store struct {
		Driver      string `json:"driver"`
		Provisioned bool   `json:"provisioned"`
	} `json:"store"`
	Memory struct {
		UsedBytes  uint64 `json:"used_bytes"`
		TotalBytes uint64 `json:"total_bytes"`
	} `json:"memory"`
	InstanceID    string `json:"instance_id"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ProvisionReporter reports whether the credential schema is known to exist.
type ProvisionReporter interface {
	Provisioned() bool
}

// CollectSystemStatus gathers the current status. Every field is best-effort.
func CollectSystemStatus(cfg Config, store ProvisionReporter, startedAt time.Time) SystemStatus {
	var st SystemStatus

	st.Store.Driver = cfg.StoreDriver
	if store != nil {
		st.Store.Provisioned = store.Provisioned()
	}

	// Memory (best-effort from /proc/meminfo)
	used, total := readMemInfo()
	st.Memory.UsedBytes = used
	st.Memory.TotalBytes = total

	st.InstanceID = cfg.InstanceID
	if !startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}

	return st
}

// readMemInfo returns used and total bytes using /proc/meminfo.
// If unavailable, returns zeros.
func readMemInfo() (used, total uint64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	return parseMemInfo(bufio.NewScanner(f))
}

func parseMemInfo(scanner *bufio.Scanner) (used, total uint64) {
	var memTotal, memAvailable uint64
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			memTotal = parseKiBLine(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			memAvailable = parseKiBLine(line)
		}
	}
	if memTotal == 0 {
		return 0, 0
	}
	if memAvailable <= memTotal {
		used = memTotal - memAvailable
	}
	// KiB -> bytes
	return used * 1024, memTotal * 1024
}

func parseKiBLine(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
