// Package platform models the platform identity blocks carried by draft
// manifests and generates fresh identities for a target OS family.
package platform

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Family is a target OS family as written in a descriptor's "os" field.
type Family string

const (
	Windows Family = "windows"
	Mac     Family = "mac"
	Linux   Family = "linux"
)

// Default application fields written into regenerated blocks.
const (
	DefaultAppID      = 3704
	DefaultAppSource  = "lv"
	DefaultAppVersion = "5.9.0"
)

var osVersions = map[Family]string{
	Windows: "10.0.19045",
	Mac:     "13.5.0",
	Linux:   "6.1.0",
}

// Families lists the supported targets in display order.
func Families() []Family {
	return []Family{Windows, Mac, Linux}
}

// ParseFamily accepts a family name or one of its aliases (win, darwin, macos).
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "windows", "win":
		return Windows, nil
	case "mac", "darwin", "macos":
		return Mac, nil
	case "linux":
		return Linux, nil
	default:
		return "", fmt.Errorf("unknown platform %q (expected windows, mac or linux)", s)
	}
}

// OSVersion returns the os_version written for the family.
func (f Family) OSVersion() string {
	return osVersions[f]
}

// Identity is the set of opaque identifiers shared by every block regenerated in one run.
type Identity struct {
	DeviceID   string
	HardDiskID string
	MacAddress string
}

// Generator produces identities. Rand defaults to crypto/rand via uuid.
type Generator struct {
	Rand io.Reader
}

// NewIdentity returns an identity whose identifiers are 32 lowercase hex chars
// and collide with none of the identifiers in avoid.
func (g Generator) NewIdentity(avoid ...string) (Identity, error) {
	used := make(map[string]bool, len(avoid)+3)
	for _, a := range avoid {
		if a != "" {
			used[strings.ToLower(a)] = true
		}
	}

	next := func() (string, error) {
		for attempt := 0; attempt < 16; attempt++ {
			var u uuid.UUID
			var err error
			if g.Rand != nil {
				u, err = uuid.NewRandomFromReader(g.Rand)
			} else {
				u, err = uuid.NewRandom()
			}
			if err != nil {
				return "", fmt.Errorf("generate identifier: %w", err)
			}
			hex := strings.ReplaceAll(u.String(), "-", "")
			if !used[hex] {
				used[hex] = true
				return hex, nil
			}
		}
		return "", fmt.Errorf("generate identifier: could not avoid %d existing identifiers", len(avoid))
	}

	var id Identity
	var err error
	if id.DeviceID, err = next(); err != nil {
		return Identity{}, err
	}
	if id.HardDiskID, err = next(); err != nil {
		return Identity{}, err
	}
	if id.MacAddress, err = next(); err != nil {
		return Identity{}, err
	}
	return id, nil
}
