package agent

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// processList renders the process table as "PID: n, Name: s" lines.
func processList() (string, error) {
	procs, err := process.Processes()
	if err != nil {
		return "", fmt.Errorf("list processes: %w", err)
	}
	lines := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			// Short-lived processes vanish between listing and lookup.
			continue
		}
		lines = append(lines, fmt.Sprintf("PID: %d, Name: %s", p.Pid, name))
	}
	return strings.Join(lines, "\n"), nil
}

// sysinfoReport joins OS, CPU and memory details. Sections that cannot
// be read are left out rather than failing the whole report.
func sysinfoReport() string {
	var sections []string
	if hi, err := host.Info(); err == nil {
		sections = append(sections,
			fmt.Sprintf("OS: %s %s", hi.Platform, hi.PlatformVersion),
			fmt.Sprintf("Kernel: %s", hi.KernelVersion))
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		c := infos[0]
		sections = append(sections,
			"Model Name: "+c.ModelName,
			fmt.Sprintf("Cores: %d", c.Cores),
			fmt.Sprintf("Mhz: %.0f", c.Mhz))
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		sections = append(sections,
			fmt.Sprintf("MemTotal: %d kB", vm.Total/1024),
			fmt.Sprintf("MemFree: %d kB", vm.Free/1024),
			fmt.Sprintf("MemAvailable: %d kB", vm.Available/1024))
	}
	return strings.Join(sections, "\n")
}

// diskReport renders root filesystem usage in GB.
func diskReport() (string, error) {
	u, err := disk.Usage("/")
	if err != nil {
		return "", fmt.Errorf("disk usage: %w", err)
	}
	const gb = 1 << 30
	return fmt.Sprintf("Total disk: %.2f GB\nUsed disk: %.2f GB\nFree disk: %.2f GB",
		float64(u.Total)/gb, float64(u.Used)/gb, float64(u.Free)/gb), nil
}
