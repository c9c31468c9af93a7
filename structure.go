package powerctl

import (
	"slices"

	"codeberg.org/mutker/powerctl/internal/errors"
)

// NumCPUs returns the number of online CPUs
func (c *Context) NumCPUs() (int, error) {
	if err := c.require(ModuleStructure); err != nil {
		return 0, err
	}

	c.succeed()

	return c.topo.NumCPUs(), nil
}

// NumIslands returns the number of voltage islands
func (c *Context) NumIslands() (int, error) {
	if err := c.require(ModuleStructure); err != nil {
		return 0, err
	}

	c.succeed()

	return c.topo.NumIslands(), nil
}

// IslandOfCPU returns the index of the island containing the given CPU. A
// CPU id at or beyond the CPU count is denied; an id in range that belongs
// to no island is a general error.
func (c *Context) IslandOfCPU(cpu int) (int, error) {
	if err := c.require(ModuleStructure); err != nil {
		return 0, err
	}

	island, err := c.topo.IslandOfCPU(cpu)
	if err != nil {
		return 0, c.fail(err)
	}

	c.succeed()

	return island, nil
}

// IslandCPUs returns the CPU ids of one island, sorted ascending
func (c *Context) IslandCPUs(island int) ([]int, error) {
	errFactory := errors.New()

	if err := c.require(ModuleStructure); err != nil {
		return nil, err
	}

	if island < 0 || island >= c.topo.NumIslands() {
		return nil, c.fail(errFactory.WithData(errors.ErrInvalidIsland, island))
	}

	c.succeed()

	return slices.Clone(c.topo.Islands[island].CPUs), nil
}
