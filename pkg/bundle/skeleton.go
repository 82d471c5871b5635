package bundle

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fulmenhq/draftfix/pkg/platform"
)

// Skeleton defaults.
const (
	DefaultCanvasWidth  = 1920
	DefaultCanvasHeight = 1080
	DefaultCanvasRatio  = "original"
	DefaultFPS          = 30.0
)

// metaMaterialTypes are the draft_materials type slots the editor expects.
var metaMaterialTypes = []int{0, 1, 2, 3, 6, 7, 8}

// SkeletonOptions parameterizes synthesized manifests.
type SkeletonOptions struct {
	BundleID string
	Target   platform.Family
	Identity platform.Identity
	Now      time.Time
	// NewID returns a fresh document id; defaults to an upper-case UUID.
	NewID func() string
}

func (o SkeletonOptions) newID() string {
	if o.NewID != nil {
		return o.NewID()
	}
	return strings.ToUpper(uuid.NewString())
}

func (o SkeletonOptions) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// NewPlatformDescriptor builds a complete descriptor for the target family.
func NewPlatformDescriptor(target platform.Family, id platform.Identity) *PlatformDescriptor {
	return &PlatformDescriptor{
		OS:         string(target),
		OSVersion:  target.OSVersion(),
		AppID:      platform.DefaultAppID,
		AppSource:  platform.DefaultAppSource,
		AppVersion: platform.DefaultAppVersion,
		DeviceID:   id.DeviceID,
		HardDiskID: id.HardDiskID,
		MacAddress: id.MacAddress,
	}
}

// NewDraftSkeleton returns a minimal valid content/info manifest. It never
// contains timeline content.
func NewDraftSkeleton(o SkeletonOptions) (*Draft, error) {
	d := &Draft{
		ID:                   o.newID(),
		Platform:             NewPlatformDescriptor(o.Target, o.Identity),
		LastModifiedPlatform: NewPlatformDescriptor(o.Target, o.Identity),
		Materials: &Materials{
			Audios: []*Material{},
			Videos: []*Material{},
			Images: []*Material{},
		},
		Tracks: []Track{},
	}
	ts := o.now().Unix()
	for key, v := range map[string]interface{}{
		"canvas_config": CanvasConfig{Width: DefaultCanvasWidth, Height: DefaultCanvasHeight, Ratio: DefaultCanvasRatio},
		"duration":      0,
		"fps":           DefaultFPS,
		"create_time":   ts,
		"update_time":   ts,
		"version":       platform.DefaultAppVersion,
	} {
		if err := d.SetField(key, v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// NewMetaSkeleton returns a minimal valid meta manifest.
func NewMetaSkeleton(o SkeletonOptions) (*Meta, error) {
	m := &Meta{
		DraftID:   o.newID(),
		DraftName: o.BundleID,
		has:       map[string]bool{"draft_fold_path": true, "draft_root_path": true},
	}
	type slot struct {
		Type  int           `json:"type"`
		Value []interface{} `json:"value"`
	}
	slots := make([]slot, 0, len(metaMaterialTypes))
	for _, t := range metaMaterialTypes {
		slots = append(slots, slot{Type: t, Value: []interface{}{}})
	}
	us := o.now().UnixMicro()
	for key, v := range map[string]interface{}{
		"draft_materials":   slots,
		"tm_draft_create":   us,
		"tm_draft_modified": us,
		"tm_duration":       0,
	} {
		if err := m.SetField(key, v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RegeneratePlatform replaces every platform block present in the draft with a
// fresh descriptor. Blocks are replaced wholesale, never patched.
func (d *Draft) RegeneratePlatform(target platform.Family, id platform.Identity) bool {
	changed := false
	if d.Platform != nil {
		d.Platform = NewPlatformDescriptor(target, id)
		changed = true
	}
	if d.LastModifiedPlatform != nil {
		d.LastModifiedPlatform = NewPlatformDescriptor(target, id)
		changed = true
	}
	return changed
}

// RegeneratePlatform replaces the meta platform block, or rewrites the short
// string form to the target family.
func (m *Meta) RegeneratePlatform(target platform.Family, id platform.Identity) bool {
	switch {
	case m.Platform != nil:
		m.Platform = NewPlatformDescriptor(target, id)
		return true
	case m.PlatformName != "":
		m.PlatformName = string(target)
		return true
	}
	return false
}

// PlatformOS returns the OS family names declared by the meta manifest.
func (m *Meta) PlatformOS() []string {
	switch {
	case m.Platform != nil:
		return []string{m.Platform.OS}
	case m.PlatformName != "":
		return []string{m.PlatformName}
	}
	return nil
}

// PlatformOS returns the OS family names declared by the draft's blocks.
func (d *Draft) PlatformOS() []string {
	var out []string
	for _, p := range d.Platforms() {
		out = append(out, p.OS)
	}
	return out
}
