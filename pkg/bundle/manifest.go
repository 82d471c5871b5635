package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// fields is a JSON object kept as raw values so unknown keys survive a rewrite.
type fields map[string]json.RawMessage

func (f fields) take(key string, dst interface{}) (bool, error) {
	raw, ok := f[key]
	if !ok {
		return false, nil
	}
	if isNull(raw) {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("field %q: %w", key, err)
	}
	delete(f, key)
	return true, nil
}

// peek decodes a value without removing it. Decode failures are ignored.
func (f fields) peek(key string, dst interface{}) bool {
	raw, ok := f[key]
	if !ok || isNull(raw) {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// isNull reports a literal JSON null. Nulls stay raw so they survive a rewrite.
func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (f fields) put(key string, v interface{}) error {
	raw, err := marshal(v)
	if err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	f[key] = raw
	return nil
}

// marshal is json.Marshal without HTML escaping, so URLs keep a literal "&".
func marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (f fields) clone() fields {
	out := make(fields, len(f)+8)
	for k, v := range f {
		out[k] = v
	}
	return out
}

// PlatformDescriptor is a platform or last_modified_platform block.
type PlatformDescriptor struct {
	OS         string
	OSVersion  string
	AppID      int
	AppSource  string
	AppVersion string
	DeviceID   string
	HardDiskID string
	MacAddress string

	Extra map[string]json.RawMessage
}

// Identifiers returns the opaque per-install identifiers of the block.
func (p *PlatformDescriptor) Identifiers() []string {
	if p == nil {
		return nil
	}
	return []string{p.DeviceID, p.HardDiskID, p.MacAddress}
}

func (p *PlatformDescriptor) UnmarshalJSON(data []byte) error {
	f := fields{}
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var err error
	str := func(key string, dst *string) {
		if err == nil {
			_, err = f.take(key, dst)
		}
	}
	str("os", &p.OS)
	str("os_version", &p.OSVersion)
	str("app_source", &p.AppSource)
	str("app_version", &p.AppVersion)
	str("device_id", &p.DeviceID)
	str("hard_disk_id", &p.HardDiskID)
	str("mac_address", &p.MacAddress)
	if err != nil {
		return err
	}
	// app_id is left raw when it is not an integer.
	if f.peek("app_id", &p.AppID) {
		delete(f, "app_id")
	}
	p.Extra = f
	return nil
}

func (p PlatformDescriptor) MarshalJSON() ([]byte, error) {
	f := fields(p.Extra).clone()
	for key, val := range map[string]string{
		"os":           p.OS,
		"os_version":   p.OSVersion,
		"app_source":   p.AppSource,
		"app_version":  p.AppVersion,
		"device_id":    p.DeviceID,
		"hard_disk_id": p.HardDiskID,
		"mac_address":  p.MacAddress,
	} {
		if raw, ok := f[key]; ok && val == "" && isNull(raw) {
			continue
		}
		if err := f.put(key, val); err != nil {
			return nil, err
		}
	}
	if p.AppID != 0 {
		if err := f.put("app_id", p.AppID); err != nil {
			return nil, err
		}
	}
	return marshal(map[string]json.RawMessage(f))
}

// Material is one entry of materials.audios, materials.videos or materials.images.
// Only the string fields the engine reads or rewrites are typed; every other key,
// including cached numeric metadata, stays raw.
type Material struct {
	ID           string
	MaterialName string
	Name         string
	Path         string
	RemoteURL    string

	hasID           bool
	hasMaterialName bool
	hasName         bool
	hasPath         bool
	hasRemoteURL    bool

	Extra map[string]json.RawMessage
}

// DeclaredName is the local file name the material expects under assets/<kind>/:
// material_name, then name, then the base name of path or of the remote locator.
func (m *Material) DeclaredName() string {
	switch {
	case m.MaterialName != "":
		return m.MaterialName
	case m.Name != "":
		return m.Name
	}
	if m.Path != "" {
		p := strings.ReplaceAll(m.Path, `\`, "/")
		if b := path.Base(p); b != "." && b != "/" {
			return b
		}
	}
	if m.RemoteURL != "" {
		u := m.RemoteURL
		if i := strings.IndexAny(u, "?#"); i >= 0 {
			u = u[:i]
		}
		if b := path.Base(u); b != "." && b != "/" && !strings.HasSuffix(u, "/") {
			return b
		}
	}
	return ""
}

// SetPath rewrites the material path.
func (m *Material) SetPath(p string) {
	m.Path = p
	m.hasPath = true
}

func (m *Material) UnmarshalJSON(data []byte) error {
	f := fields{}
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var err error
	str := func(key string, dst *string, has *bool) {
		if err != nil {
			return
		}
		var ok bool
		ok, err = f.take(key, dst)
		if has != nil {
			*has = ok
		}
	}
	str("id", &m.ID, &m.hasID)
	str("material_name", &m.MaterialName, &m.hasMaterialName)
	str("name", &m.Name, &m.hasName)
	str("path", &m.Path, &m.hasPath)
	str("remote_url", &m.RemoteURL, &m.hasRemoteURL)
	if err != nil {
		return err
	}
	m.Extra = f
	return nil
}

func (m Material) MarshalJSON() ([]byte, error) {
	f := fields(m.Extra).clone()
	opt := func(key, val string, has bool) error {
		if !has && val == "" {
			return nil
		}
		return f.put(key, val)
	}
	if err := opt("id", m.ID, m.hasID); err != nil {
		return nil, err
	}
	if err := opt("material_name", m.MaterialName, m.hasMaterialName); err != nil {
		return nil, err
	}
	if err := opt("name", m.Name, m.hasName); err != nil {
		return nil, err
	}
	if err := opt("path", m.Path, m.hasPath); err != nil {
		return nil, err
	}
	if err := opt("remote_url", m.RemoteURL, m.hasRemoteURL); err != nil {
		return nil, err
	}
	return marshal(map[string]json.RawMessage(f))
}

// Materials is the materials object. Collections other than audio, video and
// image (texts, effects, speeds, ...) are kept raw.
type Materials struct {
	Audios []*Material
	Videos []*Material
	Images []*Material

	Extra map[string]json.RawMessage
}

// Of returns the collection for a kind.
func (ms *Materials) Of(k Kind) []*Material {
	if ms == nil {
		return nil
	}
	switch k {
	case KindAudio:
		return ms.Audios
	case KindVideo:
		return ms.Videos
	case KindImage:
		return ms.Images
	}
	return nil
}

// IDs returns the set of material ids across every collection, raw ones included.
func (ms *Materials) IDs() map[string]bool {
	ids := map[string]bool{}
	if ms == nil {
		return ids
	}
	for _, k := range Kinds() {
		for _, m := range ms.Of(k) {
			if m.ID != "" {
				ids[m.ID] = true
			}
		}
	}
	for _, raw := range ms.Extra {
		var entries []struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(raw, &entries) != nil {
			continue
		}
		for _, e := range entries {
			if e.ID != "" {
				ids[e.ID] = true
			}
		}
	}
	return ids
}

func (ms *Materials) UnmarshalJSON(data []byte) error {
	f := fields{}
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if _, err := f.take("audios", &ms.Audios); err != nil {
		return err
	}
	if _, err := f.take("videos", &ms.Videos); err != nil {
		return err
	}
	if _, err := f.take("images", &ms.Images); err != nil {
		return err
	}
	ms.Extra = f
	return nil
}

func (ms Materials) MarshalJSON() ([]byte, error) {
	f := fields(ms.Extra).clone()
	for key, list := range map[string][]*Material{"audios": ms.Audios, "videos": ms.Videos, "images": ms.Images} {
		if list == nil {
			continue
		}
		if err := f.put(key, list); err != nil {
			return nil, err
		}
	}
	return marshal(map[string]json.RawMessage(f))
}

// Segment is a track segment; only material_id is typed.
type Segment struct {
	MaterialID string
	Extra      map[string]json.RawMessage
}

func (s *Segment) UnmarshalJSON(data []byte) error {
	f := fields{}
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if _, err := f.take("material_id", &s.MaterialID); err != nil {
		return err
	}
	s.Extra = f
	return nil
}

func (s Segment) MarshalJSON() ([]byte, error) {
	f := fields(s.Extra).clone()
	if err := f.put("material_id", s.MaterialID); err != nil {
		return nil, err
	}
	return marshal(map[string]json.RawMessage(f))
}

// Track is one timeline track.
type Track struct {
	Type     string
	Segments []Segment
	Extra    map[string]json.RawMessage
}

func (t *Track) UnmarshalJSON(data []byte) error {
	f := fields{}
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if _, err := f.take("type", &t.Type); err != nil {
		return err
	}
	if _, err := f.take("segments", &t.Segments); err != nil {
		return err
	}
	t.Extra = f
	return nil
}

func (t Track) MarshalJSON() ([]byte, error) {
	f := fields(t.Extra).clone()
	if err := f.put("type", t.Type); err != nil {
		return nil, err
	}
	segs := t.Segments
	if segs == nil {
		segs = []Segment{}
	}
	if err := f.put("segments", segs); err != nil {
		return nil, err
	}
	return marshal(map[string]json.RawMessage(f))
}

// CanvasConfig is the canvas_config block.
type CanvasConfig struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Ratio  string `json:"ratio"`
}

// Draft is the content or info manifest. Both share the same shape.
type Draft struct {
	ID                   string
	Platform             *PlatformDescriptor
	LastModifiedPlatform *PlatformDescriptor
	Materials            *Materials
	Tracks               []Track

	hasID     bool
	hasTracks bool

	Extra map[string]json.RawMessage
}

// Platforms returns the descriptor blocks present in the draft.
func (d *Draft) Platforms() []*PlatformDescriptor {
	var out []*PlatformDescriptor
	if d.Platform != nil {
		out = append(out, d.Platform)
	}
	if d.LastModifiedPlatform != nil {
		out = append(out, d.LastModifiedPlatform)
	}
	return out
}

// SetField stores an arbitrary top-level value.
func (d *Draft) SetField(key string, v interface{}) error {
	if d.Extra == nil {
		d.Extra = map[string]json.RawMessage{}
	}
	return fields(d.Extra).put(key, v)
}

// MaterialsOf returns the materials of a kind; nil when the collection is absent.
func (d *Draft) MaterialsOf(k Kind) []*Material {
	return d.Materials.Of(k)
}

func (d *Draft) UnmarshalJSON(data []byte) error {
	f := fields{}
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	var err error
	if d.hasID, err = f.take("id", &d.ID); err != nil {
		return err
	}
	if _, err = f.take("platform", &d.Platform); err != nil {
		return err
	}
	if _, err = f.take("last_modified_platform", &d.LastModifiedPlatform); err != nil {
		return err
	}
	if _, err = f.take("materials", &d.Materials); err != nil {
		return err
	}
	if d.hasTracks, err = f.take("tracks", &d.Tracks); err != nil {
		return err
	}
	d.Extra = f
	return nil
}

func (d Draft) MarshalJSON() ([]byte, error) {
	f := fields(d.Extra).clone()
	if d.hasID || d.ID != "" {
		if err := f.put("id", d.ID); err != nil {
			return nil, err
		}
	}
	if d.Platform != nil {
		if err := f.put("platform", d.Platform); err != nil {
			return nil, err
		}
	}
	if d.LastModifiedPlatform != nil {
		if err := f.put("last_modified_platform", d.LastModifiedPlatform); err != nil {
			return nil, err
		}
	}
	if d.Materials != nil {
		if err := f.put("materials", d.Materials); err != nil {
			return nil, err
		}
	}
	if d.hasTracks || d.Tracks != nil {
		tracks := d.Tracks
		if tracks == nil {
			tracks = []Track{}
		}
		if err := f.put("tracks", tracks); err != nil {
			return nil, err
		}
	}
	return marshal(map[string]json.RawMessage(f))
}

// Meta is the draft_meta_info manifest.
type Meta struct {
	DraftID       string
	DraftName     string
	DraftFoldPath string
	DraftRootPath string
	Platform      *PlatformDescriptor
	// PlatformName holds the short form some generators write: "platform": "windows".
	PlatformName string

	has map[string]bool

	Extra map[string]json.RawMessage
}

// Platforms returns the descriptor block of the meta manifest, if it has one.
func (m *Meta) Platforms() []*PlatformDescriptor {
	if m.Platform == nil {
		return nil
	}
	return []*PlatformDescriptor{m.Platform}
}

// SetField stores an arbitrary top-level value.
func (m *Meta) SetField(key string, v interface{}) error {
	if m.Extra == nil {
		m.Extra = map[string]json.RawMessage{}
	}
	return fields(m.Extra).put(key, v)
}

func (m *Meta) UnmarshalJSON(data []byte) error {
	f := fields{}
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	m.has = map[string]bool{}
	for key, dst := range map[string]*string{
		"draft_id":        &m.DraftID,
		"draft_name":      &m.DraftName,
		"draft_fold_path": &m.DraftFoldPath,
		"draft_root_path": &m.DraftRootPath,
	} {
		ok, err := f.take(key, dst)
		if err != nil {
			return err
		}
		m.has[key] = ok
	}
	if raw, ok := f["platform"]; ok {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '"' {
			if _, err := f.take("platform", &m.PlatformName); err != nil {
				return err
			}
		} else if _, err := f.take("platform", &m.Platform); err != nil {
			return err
		}
	}
	m.Extra = f
	return nil
}

func (m Meta) MarshalJSON() ([]byte, error) {
	f := fields(m.Extra).clone()
	for key, val := range map[string]string{
		"draft_id":        m.DraftID,
		"draft_name":      m.DraftName,
		"draft_fold_path": m.DraftFoldPath,
		"draft_root_path": m.DraftRootPath,
	} {
		if !m.has[key] && val == "" {
			continue
		}
		if err := f.put(key, val); err != nil {
			return nil, err
		}
	}
	switch {
	case m.Platform != nil:
		if err := f.put("platform", m.Platform); err != nil {
			return nil, err
		}
	case m.PlatformName != "":
		if err := f.put("platform", m.PlatformName); err != nil {
			return nil, err
		}
	}
	return marshal(map[string]json.RawMessage(f))
}

// Encode renders a manifest the way the editor writes it: four-space indent,
// non-ASCII kept literal, trailing newline.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
