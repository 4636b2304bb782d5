package fingerprint

import (
	"errors"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/term"
)

// HostEnvironment reads fingerprint signals from the machine running the
// admin CLI. The terminal stands in for the screen.
type HostEnvironment struct {
	// Agent is the client user agent, e.g. "storefront-admin/1.2.0"
	Agent string
	// FD is the terminal file descriptor probed for geometry
	FD int
	// Now is used to compute the current zone offset
	Now func() time.Time

	tty *os.File // holds FD open when it came from /dev/tty
}

// NewHostEnvironment probes the controlling terminal for geometry, so
// redirecting stdout or stdin leaves the fingerprint alone. Without a
// controlling terminal stdin is probed.
func NewHostEnvironment(agent string) *HostEnvironment {
	h := &HostEnvironment{
		Agent: agent,
		FD:    int(os.Stdin.Fd()),
		Now:   time.Now,
	}
	if tty, err := os.Open("/dev/tty"); err == nil {
		h.tty = tty
		h.FD = int(tty.Fd())
	}
	return h
}

func (h *HostEnvironment) Screen() (Screen, error) {
	if !term.IsTerminal(h.FD) {
		return Screen{}, errors.New("not a terminal")
	}
	w, ht, err := term.GetSize(h.FD)
	if err != nil {
		return Screen{}, err
	}
	return Screen{Width: w, Height: ht, ColorDepth: colorDepth()}, nil
}

func (h *HostEnvironment) Timezone() (string, int, error) {
	now := h.Now()
	name := time.Local.String()
	_, offset := now.Zone()
	return name, offset / 60, nil
}

func (h *HostEnvironment) Languages() ([]string, error) {
	if v := os.Getenv("LANGUAGE"); v != "" {
		return strings.Split(v, ":"), nil
	}
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return []string{v}, nil
		}
	}
	return []string{}, nil
}

func (h *HostEnvironment) UserAgent() string {
	return h.Agent + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")"
}

func (h *HostEnvironment) Platform() (string, error) {
	return runtime.GOOS + "/" + runtime.GOARCH, nil
}

func (h *HostEnvironment) GPURenderer() (string, bool) {
	return "", false
}

func colorDepth() int {
	switch {
	case os.Getenv("COLORTERM") == "truecolor" || os.Getenv("COLORTERM") == "24bit":
		return 24
	case strings.Contains(os.Getenv("TERM"), "256color"):
		return 8
	default:
		return 4
	}
}
