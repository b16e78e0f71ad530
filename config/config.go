// Package config holds the settings of a boot: where the storage is, which
// partitions hold what, the memory the image is loaded into, and the
// environment defaults the bootloader would otherwise carry.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"strconv"
	"strings"

	"github.com/c35s/aboot/abootimg"
	"github.com/c35s/aboot/blk"
	"github.com/c35s/aboot/bootctl"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config describes a boot.
type Config struct {

	// Device is the storage holding the partitions.
	Device Device `yaml:"device"`

	// Partitions is a static partition table. If it's empty, the table is
	// read from the GPT on the device.
	Partitions []Partition `yaml:"partitions,omitempty"`

	// Misc, Boot and Recovery name the partitions holding the boot control
	// record, the normal image and the recovery image.
	Misc     string `yaml:"misc"`
	Boot     string `yaml:"boot"`
	Recovery string `yaml:"recovery"`

	// Memory is the physical memory images are loaded into.
	Memory Memory `yaml:"memory"`

	// LoadAddr is where the image header is loaded.
	LoadAddr Addr `yaml:"loadAddr"`

	// MaxSize bounds the size of a loaded image.
	MaxSize Size `yaml:"maxSize"`

	// Env holds environment defaults such as bootargs and fdt_addr_r.
	Env Env `yaml:"env"`

	// ResourceDTB is the device tree file looked up in a resource image.
	ResourceDTB string `yaml:"resourceDTB"`
}

type Device struct {
	Path       string `yaml:"path"`
	SectorSize int    `yaml:"sectorSize,omitempty"`
	ReadOnly   bool   `yaml:"readOnly,omitempty"`
}

type Partition struct {
	Name    string `yaml:"name"`
	Start   Addr   `yaml:"start"`   // sectors
	Sectors Addr   `yaml:"sectors"` // 0 means unbounded
}

type Memory struct {
	Base Addr `yaml:"base"`
	Size Size `yaml:"size"`
}

const (
	DefaultMemorySize = 256 << 20
	DefaultLoadAddr   = 0x0207f800
	DefaultMaxSize    = 0x08000000
	DefaultFDTAddr    = 0x01f00000
)

var ErrInvalid = errors.New("config: invalid")

// Default returns the configuration used when there's no file.
func Default() Config {
	return Config{}.withDefaults()
}

// Load reads the YAML configuration at path. Unset fields take their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	return Parse(data)
}

// Parse decodes a YAML configuration. Unknown fields are an error.
func Parse(data []byte) (Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return cfg, nil
}

func (cfg Config) withDefaults() Config {
	if cfg.Misc == "" {
		cfg.Misc = bootctl.DefaultPartition
	}

	if cfg.Boot == "" {
		cfg.Boot = "boot"
	}

	if cfg.Recovery == "" {
		cfg.Recovery = "recovery"
	}

	if cfg.Memory.Size == 0 {
		cfg.Memory.Size = DefaultMemorySize
	}

	if cfg.LoadAddr == 0 {
		cfg.LoadAddr = DefaultLoadAddr
	}

	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSize
	}

	if cfg.ResourceDTB == "" {
		cfg.ResourceDTB = abootimg.DefaultResourceDTB
	}

	env := maps.Clone(cfg.Env)
	if env == nil {
		env = make(Env)
	}

	if _, ok := env[FDTAddrKey]; !ok {
		env[FDTAddrKey] = fmt.Sprintf("%#x", DefaultFDTAddr)
	}

	cfg.Env = env
	return cfg
}

func (cfg Config) validate() error {
	if ss := cfg.Device.SectorSize; ss < 0 || ss > blk.MaxSectorSize || ss&(ss-1) != 0 {
		return fmt.Errorf("sector size %d must be a power of two no larger than %d", ss, blk.MaxSectorSize)
	}

	if pgsz := uint64(os.Getpagesize()); uint64(cfg.Memory.Size)%pgsz != 0 {
		return fmt.Errorf("memory size must be a multiple of the host page size (%d)", pgsz)
	}

	base, end := uint64(cfg.Memory.Base), uint64(cfg.Memory.Base)+uint64(cfg.Memory.Size)
	if end < base {
		return fmt.Errorf("memory at %v+%v wraps around", cfg.Memory.Base, cfg.Memory.Size)
	}

	if la := uint64(cfg.LoadAddr); la < base || la+uint64(cfg.MaxSize) > end || la+uint64(cfg.MaxSize) < la {
		return fmt.Errorf("image at %v with max size %v doesn't fit in memory at %v+%v", cfg.LoadAddr, cfg.MaxSize, cfg.Memory.Base, cfg.Memory.Size)
	}

	seen := make(map[string]bool, len(cfg.Partitions))
	for _, p := range cfg.Partitions {
		if p.Name == "" {
			return errors.New("partition has no name")
		}

		if seen[p.Name] {
			return fmt.Errorf("partition %q is listed twice", p.Name)
		}

		seen[p.Name] = true
	}

	return nil
}

// Table returns the static partition table, or nil if there's none.
func (cfg Config) Table() blk.Table {
	if len(cfg.Partitions) == 0 {
		return nil
	}

	t := make(blk.StaticTable, len(cfg.Partitions))
	for i, p := range cfg.Partitions {
		t[i] = blk.Partition{Name: p.Name, Start: uint64(p.Start), Sectors: uint64(p.Sectors)}
	}

	return t
}

// Addr is an address or count written in YAML as any Go integer literal,
// usually hex.
type Addr uint64

func (a Addr) String() string {
	return fmt.Sprintf("%#x", uint64(a))
}

func (a Addr) MarshalYAML() (any, error) {
	return a.String(), nil
}

func (a *Addr) UnmarshalYAML(n *yaml.Node) error {
	v, err := strconv.ParseUint(strings.ReplaceAll(n.Value, "_", ""), 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: %q isn't an address", n.Line, n.Value)
	}

	*a = Addr(v)
	return nil
}

// Size is a byte count written in YAML as an integer literal or with a unit,
// like "256MiB".
type Size uint64

func (s Size) String() string {
	return humanize.IBytes(uint64(s))
}

func (s Size) MarshalYAML() (any, error) {
	return fmt.Sprintf("%#x", uint64(s)), nil
}

func (s *Size) UnmarshalYAML(n *yaml.Node) error {
	if v, err := strconv.ParseUint(n.Value, 0, 64); err == nil {
		*s = Size(v)
		return nil
	}

	v, err := humanize.ParseBytes(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %q isn't a size", n.Line, n.Value)
	}

	*s = Size(v)
	return nil
}
