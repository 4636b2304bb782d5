// Package fingerprint derives a short, stable, non-cryptographic identifier
// for the device running the admin client. It is a soft binding for sessions,
// not proof of identity: collisions are tolerated.
package fingerprint

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

const (
	// Prefix marks a fingerprint built from the full signal set
	Prefix = "fp_"
	// FallbackPrefix marks a fingerprint built from user agent and timezone offset only
	FallbackPrefix = "fb_"
)

// Screen is the display geometry signal
type Screen struct {
	Width      int
	Height     int
	ColorDepth int
}

// Environment supplies the client signals that make up a fingerprint
type Environment interface {
	Screen() (Screen, error)
	// Timezone returns the zone name and its current UTC offset in minutes
	Timezone() (name string, offsetMinutes int, err error)
	Languages() ([]string, error)
	UserAgent() string
	Platform() (string, error)
	// GPURenderer is best-effort; ok is false when unavailable
	GPURenderer() (renderer string, ok bool)
}

// Generate returns the fingerprint for env. Any failing signal switches to
// the fallback form, which still only depends on stable inputs.
func Generate(env Environment) string {
	composite, err := composite(env)
	if err != nil {
		_, offset, _ := env.Timezone()
		return FallbackPrefix + render(Hash(env.UserAgent()+"|"+strconv.Itoa(offset)))
	}
	return Prefix + render(Hash(composite))
}

// Device hashes every signal except the screen. Those signals stay put while
// a session is open, so clients use Device to tell whether a fingerprint
// pinned at login still belongs to the machine they run on.
func Device(env Environment) string {
	return Generate(withoutScreen{env})
}

type withoutScreen struct{ Environment }

func (withoutScreen) Screen() (Screen, error) { return Screen{}, nil }

func composite(env Environment) (string, error) {
	screen, err := env.Screen()
	if err != nil {
		return "", fmt.Errorf("screen: %w", err)
	}
	tz, _, err := env.Timezone()
	if err != nil {
		return "", fmt.Errorf("timezone: %w", err)
	}
	langs, err := env.Languages()
	if err != nil {
		return "", fmt.Errorf("languages: %w", err)
	}
	platform, err := env.Platform()
	if err != nil {
		return "", fmt.Errorf("platform: %w", err)
	}
	gpu, _ := env.GPURenderer()

	parts := []string{
		fmt.Sprintf("%dx%dx%d", screen.Width, screen.Height, screen.ColorDepth),
		tz,
		strings.Join(langs, ","),
		env.UserAgent(),
		platform,
		gpu,
	}
	return strings.Join(parts, "|"), nil
}

// Hash folds s through a 32-bit rolling hash (h = h*31 + c) over its UTF-16
// code units, wrapping as a signed 32-bit integer.
func Hash(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	return h
}

func render(h int32) string {
	return fmt.Sprintf("%08x", uint32(h))
}

// Valid reports whether s has the shape of a generated fingerprint
func Valid(s string) bool {
	var rest string
	switch {
	case strings.HasPrefix(s, Prefix):
		rest = s[len(Prefix):]
	case strings.HasPrefix(s, FallbackPrefix):
		rest = s[len(FallbackPrefix):]
	default:
		return false
	}
	if len(rest) != 8 {
		return false
	}
	_, err := strconv.ParseUint(rest, 16, 32)
	return err == nil
}
