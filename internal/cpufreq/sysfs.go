package cpufreq

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const cpuBase = "devices/system/cpu"

func cpufreqPath(sysfsRoot string, cpu int, file string) string {
	return filepath.Join(sysfsRoot, cpuBase, "cpu"+strconv.Itoa(cpu), "cpufreq", file)
}

func onlinePath(sysfsRoot string) string {
	return filepath.Join(sysfsRoot, cpuBase, "online")
}

func readString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}

func readInt(path string) (int, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(s)
}

// readInts parses a whitespace-separated list of decimal integers
func readInts(path string) ([]int, error) {
	s, err := readString(path)
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(s)
	values := make([]int, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.Atoi(field)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	return values, nil
}

// writeOneShot opens an existing sysfs file, writes the value and closes it
func writeOneShot(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}

	_, werr := f.WriteString(value)
	cerr := f.Close()
	if werr != nil {
		return werr
	}

	return cerr
}

// ParseCPUList parses kernel cpulist syntax, e.g. "0-3,5,7-8"
func ParseCPUList(list string) ([]int, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, nil
	}

	var cpus []int
	for _, chunk := range strings.Split(list, ",") {
		lo, hi, isRange := strings.Cut(chunk, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, err
		}

		last := first
		if isRange {
			last, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, err
			}
		}

		for cpu := first; cpu <= last; cpu++ {
			cpus = append(cpus, cpu)
		}
	}

	return cpus, nil
}
