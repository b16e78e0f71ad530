package blk

import (
	"fmt"
	"sort"
	"strings"
)

// Partition locates a named range of sectors on a Device.
type Partition struct {
	Name string

	// Start is the first sector of the partition.
	Start uint64

	// Sectors is the length of the partition. 0 means unknown.
	Sectors uint64
}

// Table finds partitions by name.
type Table interface {
	Find(name string) (Partition, error)
}

// StaticTable is a Table listed by hand, e.g. from a config file.
type StaticTable []Partition

// Find returns the partition with the given name. Names are matched
// exactly; a missing name is ErrPartitionNotFound.
func (t StaticTable) Find(name string) (Partition, error) {
	for _, p := range t {
		if p.Name == name {
			return p, nil
		}
	}

	return Partition{}, fmt.Errorf("%w: %q", ErrPartitionNotFound, name)
}

// Contains reports whether n sectors starting at the partition's sector off
// lie inside the partition. It's always true when the length is unknown.
func (p Partition) Contains(off, n uint64) bool {
	if p.Sectors == 0 {
		return true
	}

	return off <= p.Sectors && n <= p.Sectors-off
}

func (p Partition) String() string {
	if p.Sectors == 0 {
		return fmt.Sprintf("%s@%d", p.Name, p.Start)
	}

	return fmt.Sprintf("%s@%d+%d", p.Name, p.Start, p.Sectors)
}

// Names returns the sorted partition names of t.
func (t StaticTable) Names() []string {
	names := make([]string, 0, len(t))
	for _, p := range t {
		names = append(names, p.Name)
	}

	sort.Strings(names)
	return names
}

func (t StaticTable) String() string {
	parts := make([]string, len(t))
	for i, p := range t {
		parts[i] = p.String()
	}

	return strings.Join(parts, ",")
}
