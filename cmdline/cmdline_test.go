package cmdline_test

import (
	"testing"

	"github.com/c35s/aboot/cmdline"
	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	args := cmdline.Parse("  console=ttyS2,1500000  root=PARTUUID=1234 \t dyndbg=\"file foo.c +p\" quiet\n")

	want := []string{
		"console=ttyS2,1500000",
		"root=PARTUUID=1234",
		"dyndbg=\"file foo.c +p\"",
		"quiet",
	}

	if diff := cmp.Diff(want, args.Fields()); diff != "" {
		t.Errorf("fields differ: %s", diff)
	}

	if v, ok := args.Get("root"); !ok || v != "PARTUUID=1234" {
		t.Errorf("root = %q, %v", v, ok)
	}

	if v, ok := args.Get("quiet"); !ok || v != "" {
		t.Errorf("quiet = %q, %v", v, ok)
	}
}

func TestUpdate(t *testing.T) {
	for _, tt := range []struct {
		name   string
		args   string
		update string
		want   string
	}{
		{
			name:   "append to empty",
			update: "ratta.bootmode=normal",
			want:   "ratta.bootmode=normal",
		},
		{
			name:   "append",
			args:   "console=ttyS2 earlycon",
			update: "ratta.bootmode=recovery",
			want:   "console=ttyS2 earlycon ratta.bootmode=recovery",
		},
		{
			name:   "replace in place",
			args:   "console=ttyS2 ratta.bootmode=normal quiet",
			update: "ratta.bootmode=factory androidboot.selinux=permissive",
			want:   "console=ttyS2 ratta.bootmode=factory quiet androidboot.selinux=permissive",
		},
		{
			name:   "drop duplicates",
			args:   "a=1 b=2 a=3",
			update: "a=4",
			want:   "a=4 b=2",
		},
		{
			name:   "bare key",
			args:   "ro quiet",
			update: "ro=1",
			want:   "ro=1 quiet",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			args := cmdline.Parse(tt.args)
			args.Update(tt.update)

			if got := args.String(); got != tt.want {
				t.Errorf("%q != %q", got, tt.want)
			}
		})
	}
}
