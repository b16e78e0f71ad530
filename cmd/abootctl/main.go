// Command abootctl inspects, arms and dry-runs Android boots on disk images,
// block devices and disk images served over HTTP.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/c35s/aboot/blk"
	"github.com/c35s/aboot/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var rootFlags struct {
	config     string
	disk       string
	sectorSize int
	logFormat  string
	verbose    bool
}

var rootCmd = &cobra.Command{
	Use:          "abootctl",
	Short:        "Inspect, arm and dry-run Android boots",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd.ErrOrStderr())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootFlags.config, "config", "c", "", "read the configuration from `file`")
	pf.StringVarP(&rootFlags.disk, "disk", "d", "", "use the disk image, block device or URL at `path` (overrides the config)")
	pf.IntVar(&rootFlags.sectorSize, "sector-size", 0, "set the sector size in bytes (default: config, then the device's)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "auto", "log as text, json or auto (text on a terminal)")
	pf.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "log debug messages")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(w io.Writer) error {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if rootFlags.verbose {
		opts.Level = slog.LevelDebug
	}

	format := rootFlags.logFormat
	if format == "auto" {
		format = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		}
	}

	switch format {
	case "text":
		slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
	default:
		return fmt.Errorf("unknown log format %q", rootFlags.logFormat)
	}

	return nil
}

// session is an open boot device and its configuration.
type session struct {
	cfg   config.Config
	dev   *blk.Device
	table blk.Table
	close func() error
}

// openSession loads the configuration and opens the disk it names. The disk
// is opened read-write if write is set and it's possible.
func openSession(write bool) (*session, error) {
	cfg := config.Default()
	if rootFlags.config != "" {
		var err error
		if cfg, err = config.Load(rootFlags.config); err != nil {
			return nil, err
		}
	}

	path := cfg.Device.Path
	if rootFlags.disk != "" {
		path = rootFlags.disk
	}

	if path == "" {
		return nil, errors.New("no disk: set --disk or device.path in the config")
	}

	s := &session{
		cfg:   cfg,
		dev:   &blk.Device{SectorSize: cfg.Device.SectorSize, ReadOnly: cfg.Device.ReadOnly || !write},
		close: func() error { return nil },
	}

	if rootFlags.sectorSize != 0 {
		s.dev.SectorSize = rootFlags.sectorSize
	}

	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		s.dev.Storage = &blk.HTTPStorage{URL: path}
		s.dev.ReadOnly = true
	} else {
		f, err := openFile(path, write && !cfg.Device.ReadOnly)
		if err != nil {
			return nil, err
		}

		fs := &blk.FileStorage{File: f}
		s.dev.Storage = fs
		s.close = f.Close

		if s.dev.SectorSize == 0 {
			if s.dev.SectorSize, err = fs.SectorSize(); err != nil {
				f.Close()
				return nil, fmt.Errorf("%s: sector size: %w", path, err)
			}
		}
	}

	if s.table = cfg.Table(); s.table == nil {
		gpt, err := blk.ReadGPT(s.dev)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		slog.Debug("read partition table", "disk", path, "partitions", gpt.Partitions())
		s.table = gpt
	}

	return s, nil
}

func openFile(path string, write bool) (*os.File, error) {
	if write {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err == nil || !errors.Is(err, os.ErrPermission) {
			return f, err
		}

		slog.Warn("opening read-only", "disk", path, "err", err)
	}

	return os.Open(path)
}

// readURL reads the whole file or http(s) URL s.
func readURL(s string) (body []byte, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("abootctl: read %s: %w", s, err)
		}
	}()

	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "", "file":
		return os.ReadFile(u.Path)

	case "http", "https":
		res, err := http.Get(u.String())
		if err != nil {
			return nil, err
		}

		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("response status %d != %d", res.StatusCode, http.StatusOK)
		}

		return io.ReadAll(res.Body)

	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}
