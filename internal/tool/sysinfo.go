package tool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"ltl/internal/domain"
)

var startTime = time.Now()

// SysInfoTool reports host resources, with emphasis on memory and the
// accelerator since those decide whether a model fits.
type SysInfoTool struct {
	run func(ctx context.Context, name string, args ...string) string
}

func NewSysInfoTool() *SysInfoTool {
	return &SysInfoTool{run: runCmd}
}

func (t *SysInfoTool) Name() string { return "system_info" }
func (t *SysInfoTool) Description() string {
	return "Get system information: OS, CPU, RAM, GPU, disk and uptime."
}
func (t *SysInfoTool) Parameters() []domain.ParamSpec {
	return []domain.ParamSpec{
		{Name: "section", Type: domain.ParamString, Default: "all", Description: "all, os, cpu, memory, gpu or disk"},
	}
}

func (t *SysInfoTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	section := strings.ToLower(ArgString(args, "section"))
	if section == "" {
		section = "all"
	}

	sections := []struct {
		name  string
		title string
		fn    func(context.Context) string
	}{
		{"os", "System", t.osInfo},
		{"cpu", "CPU", t.cpuInfo},
		{"memory", "Memory (RAM)", t.memInfo},
		{"gpu", "GPU", t.gpuInfo},
		{"disk", "Disk", t.diskInfo},
	}

	var out []string
	for _, s := range sections {
		if section != "all" && section != s.name {
			continue
		}
		body := s.fn(ctx)
		if body == "" {
			body = "Not available"
		}
		out = append(out, fmt.Sprintf("=== %s ===\n%s", s.title, body))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unknown section %q", section)
	}
	return strings.Join(out, "\n\n"), nil
}

func (t *SysInfoTool) osInfo(ctx context.Context) string {
	hostname, _ := os.Hostname()
	lines := []string{
		"Hostname: " + hostname,
		fmt.Sprintf("OS: %s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if runtime.GOOS == "linux" {
		if v := readKeyValue("/etc/os-release", "PRETTY_NAME=", ""); v != "" {
			lines = append(lines, "Version: "+strings.Trim(v, `"`))
		}
	} else if runtime.GOOS == "darwin" {
		if v := t.run(ctx, "sw_vers", "-productVersion"); v != "" {
			lines = append(lines, "Version: macOS "+v)
		}
	}
	lines = append(lines, fmt.Sprintf("Process uptime: %s", time.Since(startTime).Round(time.Second)))
	if up := t.run(ctx, "uptime"); up != "" {
		lines = append(lines, "System uptime: "+up)
	}
	return strings.Join(lines, "\n")
}

func (t *SysInfoTool) cpuInfo(ctx context.Context) string {
	lines := []string{fmt.Sprintf("Logical cores: %d", runtime.NumCPU())}
	var model string
	switch runtime.GOOS {
	case "linux":
		model = readKeyValue("/proc/cpuinfo", "model name", ":")
	case "darwin":
		model = t.run(ctx, "sysctl", "-n", "machdep.cpu.brand_string")
	}
	if model != "" {
		lines = append([]string{"Model: " + model}, lines...)
	}
	return strings.Join(lines, "\n")
}

func (t *SysInfoTool) memInfo(ctx context.Context) string {
	switch runtime.GOOS {
	case "linux":
		data, err := os.ReadFile("/proc/meminfo")
		if err != nil {
			return ""
		}
		var total, available float64
		for _, line := range strings.Split(string(data), "\n") {
			switch {
			case strings.HasPrefix(line, "MemTotal:"):
				fmt.Sscanf(line, "MemTotal: %f kB", &total)
			case strings.HasPrefix(line, "MemAvailable:"):
				fmt.Sscanf(line, "MemAvailable: %f kB", &available)
			}
		}
		if total == 0 {
			return ""
		}
		return fmt.Sprintf("Total: %.1f GB\nUsed: %.1f GB\nAvailable: %.1f GB",
			total/1024/1024, (total-available)/1024/1024, available/1024/1024)
	case "darwin":
		var total float64
		if s := t.run(ctx, "sysctl", "-n", "hw.memsize"); s != "" {
			fmt.Sscanf(s, "%f", &total)
		}
		if total > 0 {
			return fmt.Sprintf("Total: %.0f GB", total/(1<<30))
		}
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return fmt.Sprintf("Process Sys: %.1f MB", float64(mem.Sys)/1024/1024)
}

func (t *SysInfoTool) gpuInfo(ctx context.Context) string {
	if nv := t.run(ctx, "nvidia-smi", "--query-gpu=name,memory.total,memory.used,driver_version", "--format=csv,noheader"); nv != "" {
		return "NVIDIA: " + nv
	}
	switch runtime.GOOS {
	case "linux":
		var gpus []string
		for _, line := range strings.Split(t.run(ctx, "lspci"), "\n") {
			lower := strings.ToLower(line)
			if strings.Contains(lower, "vga") || strings.Contains(lower, "3d") {
				gpus = append(gpus, strings.TrimSpace(line))
			}
		}
		return strings.Join(gpus, "\n")
	case "darwin":
		var parts []string
		for _, line := range strings.Split(t.run(ctx, "system_profiler", "SPDisplaysDataType"), "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "Chipset Model:") || strings.HasPrefix(line, "Total Number of Cores:") {
				parts = append(parts, line)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func (t *SysInfoTool) diskInfo(ctx context.Context) string {
	lines := strings.Split(t.run(ctx, "df", "-h", "/"), "\n")
	if len(lines) >= 2 {
		return lines[0] + "\n" + lines[1]
	}
	return strings.Join(lines, "\n")
}

// readKeyValue returns the value of the first line in path starting with
// key. When sep is set, the value is whatever follows it.
func readKeyValue(path, key, sep string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, key) {
			continue
		}
		v := strings.TrimPrefix(line, key)
		if sep != "" {
			if _, after, ok := strings.Cut(line, sep); ok {
				v = after
			}
		}
		return strings.TrimSpace(v)
	}
	return ""
}

func runCmd(ctx context.Context, name string, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return ""
	}
	return strings.TrimSpace(out.String())
}

var _ domain.Tool = (*SysInfoTool)(nil)
