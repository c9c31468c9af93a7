// Package cpufreq models the machine's voltage islands and drives their
// operating frequency through the Linux cpufreq sysfs interface.
package cpufreq

import (
	"sort"
	"time"

	"codeberg.org/mutker/powerctl/internal/errors"
)

// Island is one voltage island: the set of CPUs sharing a frequency domain.
// The member list is sorted ascending and identifies the island.
type Island struct {
	CPUs    []int
	Agility time.Duration
}

// Topology is the discovered CPU layout. Islands partition the online CPUs.
type Topology struct {
	OnlineCPUs []int
	Islands    []Island
}

// Discover scans sysfs for online CPUs and groups them into voltage
// islands. Island membership comes from freqdomain_cpus, with affected_cpus
// as fallback on kernels or drivers that do not expose frequency domains.
// Any unreadable sysfs file makes the whole scan fail.
func Discover(sysfsRoot string) (*Topology, error) {
	errFactory := errors.New()

	online, err := readString(onlinePath(sysfsRoot))
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrArchUnsupported, err)
	}

	cpus, err := ParseCPUList(online)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrArchUnsupported, err)
	}
	if len(cpus) == 0 {
		return nil, errFactory.WithMessage(errors.ErrArchUnsupported, "no online CPUs reported")
	}

	topo := &Topology{OnlineCPUs: cpus}
	for _, cpu := range cpus {
		members, err := domainMembers(sysfsRoot, cpu)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrArchUnsupported, err)
		}
		if len(members) == 0 {
			return nil, errFactory.WithMessage(errors.ErrArchUnsupported, "empty frequency domain")
		}

		if topo.findIsland(members) >= 0 {
			continue
		}

		latency, err := readInt(cpufreqPath(sysfsRoot, members[0], "cpuinfo_transition_latency"))
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrArchUnsupported, err)
		}

		topo.Islands = append(topo.Islands, Island{
			CPUs:    members,
			Agility: time.Duration(latency) * time.Nanosecond,
		})
	}

	return topo, nil
}

// domainMembers returns the sorted CPU ids sharing cpu's frequency domain
func domainMembers(sysfsRoot string, cpu int) ([]int, error) {
	members, err := readInts(cpufreqPath(sysfsRoot, cpu, "freqdomain_cpus"))
	if err != nil {
		members, err = readInts(cpufreqPath(sysfsRoot, cpu, "affected_cpus"))
		if err != nil {
			return nil, err
		}
	}

	sort.Ints(members)

	return members, nil
}

// findIsland locates an island with exactly the given members, or -1.
// Linear scan: island counts are small and this runs only at discovery.
func (t *Topology) findIsland(members []int) int {
	for i := range t.Islands {
		if equalCPUs(t.Islands[i].CPUs, members) {
			return i
		}
	}

	return -1
}

func equalCPUs(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// NumCPUs returns the number of online CPUs
func (t *Topology) NumCPUs() int {
	return len(t.OnlineCPUs)
}

// NumIslands returns the number of voltage islands
func (t *Topology) NumIslands() int {
	return len(t.Islands)
}

// IslandOfCPU returns the index of the island containing the given CPU. A
// CPU id at or beyond the CPU count is denied outright; an id that is in
// range but belongs to no island reports a general error.
func (t *Topology) IslandOfCPU(cpu int) (int, error) {
	errFactory := errors.New()

	if cpu >= len(t.OnlineCPUs) {
		return 0, errFactory.WithData(errors.ErrRequestDenied, cpu)
	}

	for i := range t.Islands {
		for _, member := range t.Islands[i].CPUs {
			if member == cpu {
				return i, nil
			}
		}
	}

	return 0, errFactory.WithData(errors.ErrGeneral, cpu)
}
