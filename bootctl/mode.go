package bootctl

import "fmt"

// Mode is the boot mode selected by the control message.
type Mode int

const (
	Normal Mode = iota
	Recovery
	Factory
)

// Commands recognized in Message.Command.
const (
	CommandRecovery = "boot-recovery"
	CommandFactory  = "boot-factory"
)

// Kernel arguments set for the selected mode.
const (
	BootModeKey   = "ratta.bootmode"
	PermissiveArg = "androidboot.selinux=permissive"
)

// Classify maps a control command to a mode. Anything unrecognized,
// including an empty or garbled command, is Normal.
func Classify(command string) Mode {
	switch command {
	case CommandRecovery:
		return Recovery
	case CommandFactory:
		return Factory
	default:
		return Normal
	}
}

// ParseMode parses the name of a mode as returned by String.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{Normal, Recovery, Factory} {
		if m.String() == s {
			return m, nil
		}
	}

	return Normal, fmt.Errorf("bootctl: unknown boot mode %q", s)
}

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Recovery:
		return "recovery"
	case Factory:
		return "factory"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Command returns the control command that selects m. Normal has none.
func (m Mode) Command() string {
	switch m {
	case Recovery:
		return CommandRecovery
	case Factory:
		return CommandFactory
	default:
		return ""
	}
}

// BootArgs returns the kernel arguments announcing m to the kernel.
// Factory boots also run with a permissive security policy.
func (m Mode) BootArgs() string {
	args := BootModeKey + "=" + m.String()
	if m == Factory {
		args += " " + PermissiveArg
	}

	return args
}
