package config

import (
	"strconv"
	"strings"
)

// Environment keys read by a boot.
const (
	BootargsKey = "bootargs"
	FDTAddrKey  = "fdt_addr_r"
)

// Env is a bootloader environment.
type Env map[string]string

// Bootargs returns the kernel arguments set in the environment.
func (e Env) Bootargs() string {
	return e[BootargsKey]
}

// Uint returns the value of key parsed as hex, with or without a 0x prefix.
// A missing or malformed value is 0.
func (e Env) Uint(key string) uint64 {
	s := strings.TrimPrefix(strings.TrimPrefix(e[key], "0x"), "0X")

	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0
	}

	return v
}
