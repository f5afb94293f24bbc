package media

import (
	_ "embed"
	"fmt"
	"os/exec"
	"runtime"
	"slices"

	"github.com/pelletier/go-toml/v2"

	"github.com/pders01/moji/internal/config"
)

//go:embed viewers.toml
var viewersTOML []byte

type viewerDef struct {
	Platforms []string `toml:"platforms"`
	Args      []string `toml:"args"`
}

type viewersFile struct {
	Viewers  map[string]viewerDef `toml:"viewers"`
	Defaults map[string]string    `toml:"defaults"`
}

// Launcher opens image URLs in an external viewer.
type Launcher struct {
	viewer string
	defs   viewersFile
	goos   string

	lookPath func(string) (string, error)
	start    func(*exec.Cmd) error
}

// NewLauncher picks the first installed viewer configured for this OS,
// falling back to the platform opener.
func NewLauncher(cfg config.MediaConfig) (*Launcher, error) {
	l := &Launcher{
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		start:    startDetached,
	}
	if err := toml.Unmarshal(viewersTOML, &l.defs); err != nil {
		return nil, fmt.Errorf("parsing viewers.toml: %w", err)
	}
	l.viewer = l.pick(cfg)
	return l, nil
}

func (l *Launcher) pick(cfg config.MediaConfig) string {
	var candidates []string
	switch l.goos {
	case "darwin":
		candidates = cfg.Darwin
	case "windows":
		candidates = cfg.Windows
	default:
		candidates = cfg.Linux
	}
	for _, c := range candidates {
		if _, err := l.lookPath(c); err == nil {
			return c
		}
	}
	if cfg.DefaultOpener != "" {
		return cfg.DefaultOpener
	}
	if d, ok := l.defs.Defaults[l.goos]; ok {
		return d
	}
	return l.defs.Defaults["fallback"]
}

// Viewer is the resolved command name.
func (l *Launcher) Viewer() string { return l.viewer }

// Command builds the invocation for url without running it.
func (l *Launcher) Command(url string) (*exec.Cmd, error) {
	if l.viewer == "" {
		return nil, fmt.Errorf("no image viewer found")
	}
	def, ok := l.defs.Viewers[l.viewer]
	if ok && len(def.Platforms) > 0 && !slices.Contains(def.Platforms, l.goos) {
		return nil, fmt.Errorf("%s not supported on %s", l.viewer, l.goos)
	}
	args := append(slices.Clone(def.Args), url)
	return exec.Command(l.viewer, args...), nil
}

// Open launches the viewer for url without waiting for it to exit.
func (l *Launcher) Open(url string) error {
	cmd, err := l.Command(url)
	if err != nil {
		return err
	}
	if err := l.start(cmd); err != nil {
		return fmt.Errorf("failed to start %s: %w", l.viewer, err)
	}
	return nil
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
