package bundle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/draftfix/pkg/platform"
)

const sampleContent = `{
    "id": "ABC",
    "canvas_config": {"width": 1080, "height": 1920, "ratio": "original"},
    "fps": 30.0,
    "color_space": -1,
    "platform": {"app_id": 3704, "app_source": "lv", "app_version": "5.9.0", "os": "linux", "os_version": "6.1.0",
                 "device_id": "d1", "hard_disk_id": "h1", "mac_address": "m1", "custom": true},
    "materials": {
        "audios": [{"id": "a1", "material_name": "song & dance.mp3", "path": "/tmp/song.mp3",
                    "remote_url": "https://cdn.example.com/a.mp3?x=1&y=2", "duration": 5000000}],
        "videos": [],
        "texts": [{"id": "t1", "content": "hi"}]
    },
    "tracks": [{"type": "audio", "id": "tr1", "segments": [{"material_id": "a1", "speed": 1.0}]}]
}`

func TestDraftRoundTripPreservesUnknownKeys(t *testing.T) {
	var d Draft
	require.NoError(t, json.Unmarshal([]byte(sampleContent), &d))

	assert.Equal(t, "ABC", d.ID)
	require.NotNil(t, d.Platform)
	assert.Equal(t, "linux", d.Platform.OS)
	assert.Equal(t, 3704, d.Platform.AppID)
	require.Len(t, d.MaterialsOf(KindAudio), 1)
	assert.Nil(t, d.MaterialsOf(KindImage))
	assert.True(t, d.Materials.IDs()["t1"], "raw collections contribute ids")

	out, err := json.Marshal(d)
	require.NoError(t, err)

	var before, after map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(sampleContent), &before))
	require.NoError(t, json.Unmarshal(out, &after))
	assert.Equal(t, before, after)
}

func TestRoundTripKeepsNulls(t *testing.T) {
	const content = `{
    "id": null,
    "cover": null,
    "platform": {"os": null, "os_version": "10", "app_id": null, "app_source": "cc", "app_version": "1.0",
                 "device_id": "d1", "hard_disk_id": "h1", "mac_address": "m1"},
    "materials": {"audios": null, "videos": [{"id": "v1", "path": null, "name": "clip.mp4"}]},
    "tracks": null
}`
	var d Draft
	require.NoError(t, json.Unmarshal([]byte(content), &d))
	assert.Empty(t, d.ID)
	assert.Nil(t, d.MaterialsOf(KindAudio))
	assert.Zero(t, d.Platform.AppID)

	out, err := json.Marshal(d)
	require.NoError(t, err)
	var before, after map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content), &before))
	require.NoError(t, json.Unmarshal(out, &after))
	assert.Equal(t, before, after)

	d.Materials.Audios = []*Material{{ID: "a1"}}
	out, err = json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"audios":[{"id":"a1"}]`, "a set collection replaces the null")

	const meta = `{"draft_id": "m1", "draft_name": null, "platform": null}`
	var m Meta
	require.NoError(t, json.Unmarshal([]byte(meta), &m))
	assert.Nil(t, m.Platform)
	out, err = json.Marshal(m)
	require.NoError(t, err)
	before, after = nil, nil
	require.NoError(t, json.Unmarshal([]byte(meta), &before))
	require.NoError(t, json.Unmarshal(out, &after))
	assert.Equal(t, before, after)
}

func TestEncodeKeepsURLsLiteral(t *testing.T) {
	var d Draft
	require.NoError(t, json.Unmarshal([]byte(sampleContent), &d))
	out, err := Encode(d)
	require.NoError(t, err)
	assert.Contains(t, string(out), "a.mp3?x=1&y=2")
	assert.Contains(t, string(out), "song & dance.mp3")
	assert.Contains(t, string(out), "\n    \"canvas_config\"")
}

func TestMaterialDeclaredName(t *testing.T) {
	tests := []struct {
		name string
		m    Material
		want string
	}{
		{"material_name wins", Material{MaterialName: "a.mp3", Name: "b.mp3"}, "a.mp3"},
		{"name fallback", Material{Name: "b.mp3"}, "b.mp3"},
		{"windows path base", Material{Path: `C:\Users\me\clip.mp4`}, "clip.mp4"},
		{"remote base without query", Material{RemoteURL: "https://x.test/v/clip.mp4?sig=1"}, "clip.mp4"},
		{"nothing", Material{RemoteURL: "https://x.test/"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.m.DeclaredName())
		})
	}
}

func TestIsAbsoluteRef(t *testing.T) {
	tests := map[string]bool{
		"/Users/me/a.mp3":          true,
		`C:\Users\me\a.mp3`:        true,
		"d:/media/a.mp3":           true,
		`\\nas\share\a.mp3`:        true,
		"assets/audio/a.mp3":       false,
		"##_draftpath_placeholder": false,
		"":                         false,
		"C:relative":               false,
	}
	for in, want := range tests {
		assert.Equal(t, want, IsAbsoluteRef(in), in)
	}
}

func TestIsRemoteLocator(t *testing.T) {
	tests := map[string]bool{
		"https://cdn.example.com/a.mp3?sig=1": true,
		"HTTP://cdn.example.com/a.mp3":        true,
		"s3://bucket/key/a.mp3":               true,
		"/etc/passwd":                         false,
		"file:///etc/passwd":                  false,
		"file://host/share/a.mp3":             false,
		`C:\Users\me\a.mp3`:                   false,
		"c:/Users/me/a.mp3":                   false,
		"assets/audio/a.mp3":                  false,
		"https:///a.mp3":                      false,
		"ftp://host/a.mp3":                    false,
		"":                                    false,
	}
	for in, want := range tests {
		assert.Equal(t, want, IsRemoteLocator(in), in)
	}
}

func TestAssetRelPathIsNFC(t *testing.T) {
	decomposed := "cafe\u0301.png"
	assert.Equal(t, "assets/image/caf\u00e9.png", AssetRelPath(KindImage, decomposed))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("videos")
	require.NoError(t, err)
	assert.Equal(t, KindVideo, k)
	_, err = ParseKind("texts")
	assert.Error(t, err)
}

func TestMetaShortPlatformForm(t *testing.T) {
	var m Meta
	require.NoError(t, json.Unmarshal([]byte(`{"draft_id":"x","platform":"linux","version":"5.9.0"}`), &m))
	assert.Nil(t, m.Platform)
	assert.Equal(t, []string{"linux"}, m.PlatformOS())

	assert.True(t, m.RegeneratePlatform(platform.Windows, platform.Identity{}))
	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"draft_id":"x","platform":"windows","version":"5.9.0"}`, string(out))
}

type rejectAll struct{}

func (rejectAll) ValidateManifest(Role, interface{}) ([]string, error) {
	return []string{"materials: expected object"}, nil
}

func writeManifest(t *testing.T, dir string, role Role, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, role.FileName()), []byte(body), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, RoleContent, sampleContent)
	writeManifest(t, dir, RoleInfo, `{"id": "ABC", "materials": `)

	b := New("dfd_1", dir, "")
	require.NoError(t, b.Load(nil))

	assert.True(t, b.Present(RoleContent))
	assert.False(t, b.Present(RoleInfo))
	assert.False(t, b.Present(RoleMeta))
	require.Contains(t, b.ParseErrors, RoleInfo)
	assert.True(t, IsManifestParseError(b.ParseErrors[RoleInfo]))
	assert.NotContains(t, b.ParseErrors, RoleMeta, "absent is not unparseable")
}

func TestLoadWithShapeValidator(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, RoleContent, `{"materials": []}`)

	b := New("dfd_1", dir, "")
	require.NoError(t, b.Load(rejectAll{}))
	require.Contains(t, b.ParseErrors, RoleContent)
	assert.Equal(t, []string{"materials: expected object"}, b.ParseErrors[RoleContent].Problems)
	assert.Equal(t, KindManifestParse, ErrorKind(b.ParseErrors[RoleContent]))
}

func TestSaveWritesOnlyDirtyManifests(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, RoleContent, sampleContent)
	writeManifest(t, dir, RoleMeta, `{"draft_id": "m"}`)

	b := New("dfd_1", dir, "")
	require.NoError(t, b.Load(nil))

	b.Content.MaterialsOf(KindAudio)[0].SetPath("assets/audio/song & dance.mp3")
	b.MarkDirty(RoleContent)
	require.NoError(t, b.Save())
	assert.False(t, b.Dirty(RoleContent))

	raw, err := os.ReadFile(filepath.Join(dir, ContentFileName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"path": "assets/audio/song & dance.mp3"`)

	meta, err := os.ReadFile(filepath.Join(dir, MetaFileName))
	require.NoError(t, err)
	assert.Equal(t, `{"draft_id": "m"}`, string(meta), "untouched manifest keeps its bytes")
}

func TestSaveFailureIsWriteError(t *testing.T) {
	dir := t.TempDir()
	b := New("dfd_1", filepath.Join(dir, "gone"), "")
	b.Content = &Draft{ID: "x"}
	b.MarkDirty(RoleContent)

	err := b.Save()
	require.Error(t, err)
	assert.True(t, IsWriteError(err))
}

func TestPreserveCorrupt(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, RoleMeta, `not json`)
	b := New("dfd_1", dir, "")
	require.NoError(t, b.Load(nil))

	require.NoError(t, b.PreserveCorrupt(RoleMeta))
	_, err := os.Stat(filepath.Join(dir, MetaFileName+CorruptSuffix))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, MetaFileName))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, b.PreserveCorrupt(RoleContent), "no-op for parsed or absent manifests")
}

func TestHasAssetComparesNFC(t *testing.T) {
	dir := t.TempDir()
	b := New("dfd_1", dir, "")
	require.NoError(t, os.MkdirAll(b.AssetDirPath(KindImage), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(b.AssetDirPath(KindImage), "caf\u00e9.png"), []byte("x"), 0o644))

	assert.True(t, b.HasAssetDir(KindImage))
	assert.False(t, b.HasAssetDir(KindAudio))
	assert.True(t, b.HasAsset(KindImage, "cafe\u0301.png"))
	assert.False(t, b.HasAsset(KindImage, "other.png"))
	assert.False(t, b.HasAsset(KindImage, ""))
}

func TestSkeletons(t *testing.T) {
	id := platform.Identity{DeviceID: "d", HardDiskID: "h", MacAddress: "m"}
	opts := SkeletonOptions{
		BundleID: "dfd_1",
		Target:   platform.Windows,
		Identity: id,
		Now:      time.Unix(1700000000, 0),
		NewID:    func() string { return "FIXED" },
	}

	d, err := NewDraftSkeleton(opts)
	require.NoError(t, err)
	assert.Equal(t, "FIXED", d.ID)
	assert.Equal(t, "windows", d.Platform.OS)
	assert.Equal(t, "10.0.19045", d.LastModifiedPlatform.OSVersion)
	assert.Empty(t, d.Tracks)

	out, err := json.Marshal(d)
	require.NoError(t, err)
	var defaults struct {
		Canvas CanvasConfig `json:"canvas_config"`
		FPS    float64      `json:"fps"`
	}
	require.NoError(t, json.Unmarshal(out, &defaults))
	assert.Equal(t, CanvasConfig{Width: 1920, Height: 1080, Ratio: "original"}, defaults.Canvas)
	assert.Equal(t, 30.0, defaults.FPS)
	assert.Contains(t, string(out), `"audios":[]`)
	assert.Contains(t, string(out), `"tracks":[]`)

	m, err := NewMetaSkeleton(opts)
	require.NoError(t, err)
	assert.Equal(t, "dfd_1", m.DraftName)
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	var decoded struct {
		DraftMaterials []struct {
			Type  int           `json:"type"`
			Value []interface{} `json:"value"`
		} `json:"draft_materials"`
		FoldPath *string `json:"draft_fold_path"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.DraftMaterials, 7)
	assert.Equal(t, 8, decoded.DraftMaterials[6].Type)
	assert.NotNil(t, decoded.FoldPath)
}

func TestDraftRegeneratePlatform(t *testing.T) {
	var d Draft
	require.NoError(t, json.Unmarshal([]byte(sampleContent), &d))
	id := platform.Identity{DeviceID: "d2", HardDiskID: "h2", MacAddress: "m2"}

	assert.True(t, d.RegeneratePlatform(platform.Windows, id))
	assert.Equal(t, "windows", d.Platform.OS)
	assert.Equal(t, []string{"d2", "h2", "m2"}, d.Platform.Identifiers())
	assert.Empty(t, d.Platform.Extra, "blocks are replaced wholesale")
	assert.Nil(t, d.LastModifiedPlatform, "absent blocks are not invented")
}
