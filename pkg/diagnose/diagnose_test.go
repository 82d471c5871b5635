package diagnose

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/draftfix/internal/testutil"
	"github.com/fulmenhq/draftfix/pkg/bundle"
	"github.com/fulmenhq/draftfix/pkg/platform"
)

type mats = []map[string]interface{}

func load(t *testing.T, entries ...testutil.Entry) *bundle.Bundle {
	t.Helper()
	dir := testutil.WriteDir(t, filepath.Join(t.TempDir(), "dfd_t"), entries...)
	b := bundle.New("dfd_t", dir, filepath.Dir(dir))
	require.NoError(t, b.Load(nil))
	return b
}

func assetDirs() []testutil.Entry {
	return []testutil.Entry{testutil.Dir("assets/audio/"), testutil.Dir("assets/video/"), testutil.Dir("assets/image/")}
}

func healthy(t *testing.T, audios mats, extra ...testutil.Entry) []testutil.Entry {
	entries := []testutil.Entry{
		testutil.JSON(t, bundle.ContentFileName, testutil.Draft("windows", audios, nil, nil)),
		testutil.JSON(t, bundle.InfoFileName, testutil.Draft("windows", audios, nil, nil)),
		testutil.JSON(t, bundle.MetaFileName, testutil.Meta("dfd_t")),
	}
	entries = append(entries, assetDirs()...)
	return append(entries, extra...)
}

func kinds(findings []Finding) []Kind {
	out := make([]Kind, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Kind)
	}
	return out
}

func run(b *bundle.Bundle) []Finding {
	return Diagnose(context.Background(), b, Options{Target: platform.Windows})
}

func TestDiagnoseHealthyBundle(t *testing.T) {
	audio := mats{testutil.Material("a1", "song.mp3", "assets/audio/song.mp3", "https://cdn.example.com/song.mp3")}
	b := load(t, healthy(t, audio, testutil.File("assets/audio/song.mp3", "ID3"))...)
	assert.Empty(t, run(b))
}

func TestDiagnoseMissingManifest(t *testing.T) {
	for _, role := range bundle.Roles() {
		t.Run(string(role), func(t *testing.T) {
			var entries []testutil.Entry
			for _, e := range healthy(t, nil) {
				if e.Name != role.FileName() {
					entries = append(entries, e)
				}
			}
			findings := run(load(t, entries...))
			require.Len(t, findings, 1)
			assert.Equal(t, MissingManifest, findings[0].Kind)
			assert.Equal(t, role, findings[0].Manifest)
			assert.False(t, findings[0].Unparseable)
		})
	}
}

func TestDiagnoseUnparseableManifest(t *testing.T) {
	entries := healthy(t, nil)
	entries[0] = testutil.File(bundle.ContentFileName, "{not json")
	findings := run(load(t, entries...))

	require.Len(t, findings, 1)
	assert.Equal(t, MissingManifest, findings[0].Kind)
	assert.Equal(t, bundle.RoleContent, findings[0].Manifest)
	assert.True(t, findings[0].Unparseable)
	assert.Contains(t, findings[0].Detail, "unparseable")
}

func TestDiagnose_MissingAssetDirFoldedIntoFetch(t *testing.T) {
	audio := mats{testutil.Material("a1", "voice.mp3", "", "https://cdn.example.com/voice.mp3")}

	t.Run("pending fetch covers the directory", func(t *testing.T) {
		b := load(t,
			testutil.JSON(t, bundle.ContentFileName, testutil.Draft("windows", audio, nil, nil)),
			testutil.JSON(t, bundle.MetaFileName, testutil.Meta("dfd_t")),
			testutil.Dir("assets/video/"),
			testutil.Dir("assets/image/"),
		)
		findings := run(b)
		assert.Equal(t, []Kind{MissingManifest, MissingAsset}, kinds(findings))
		assert.Equal(t, bundle.RoleInfo, findings[0].Manifest)
		require.NotNil(t, findings[1].Material)
		assert.Equal(t, "assets/audio/voice.mp3", findings[1].Material.AssetPath())
	})

	t.Run("no pending fetch reports the directory", func(t *testing.T) {
		b := load(t,
			testutil.JSON(t, bundle.ContentFileName, testutil.Draft("windows", nil, nil, nil)),
			testutil.JSON(t, bundle.InfoFileName, testutil.Draft("windows", nil, nil, nil)),
			testutil.JSON(t, bundle.MetaFileName, testutil.Meta("dfd_t")),
			testutil.Dir("assets/video/"),
			testutil.Dir("assets/image/"),
		)
		findings := run(b)
		require.Equal(t, []Kind{MissingAssetDir}, kinds(findings))
		assert.Equal(t, bundle.KindAudio, findings[0].AssetKind)
	})
}

func TestDiagnosePlatformMismatch(t *testing.T) {
	tests := []struct {
		name    string
		content string
		meta    map[string]interface{}
		want    []bundle.Role
	}{
		{name: "linux content", content: "linux", want: []bundle.Role{bundle.RoleContent}},
		{name: "alias matches", content: "win"},
		{name: "meta short form", content: "windows", meta: map[string]interface{}{"platform": "mac"}, want: []bundle.Role{bundle.RoleMeta}},
		{name: "meta block", content: "windows", meta: map[string]interface{}{"platform": testutil.Platform("darwin", "9")}, want: []bundle.Role{bundle.RoleMeta}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := testutil.Meta("dfd_t")
			for k, v := range tt.meta {
				meta[k] = v
			}
			entries := []testutil.Entry{
				testutil.JSON(t, bundle.ContentFileName, testutil.Draft(tt.content, nil, nil, nil)),
				testutil.JSON(t, bundle.InfoFileName, testutil.Draft("windows", nil, nil, nil)),
				testutil.JSON(t, bundle.MetaFileName, meta),
			}
			findings := run(load(t, append(entries, assetDirs()...)...))

			var got []bundle.Role
			for _, f := range findings {
				require.Equal(t, PlatformMismatch, f.Kind)
				got = append(got, f.Manifest)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiagnoseMissingAssetOncePerPath(t *testing.T) {
	audio := mats{
		testutil.Material("a1", "song.mp3", "", "https://cdn.example.com/song.mp3?x=1"),
		testutil.Material("a2", "song.mp3", "", "https://mirror.example.com/song.mp3"),
	}
	findings := run(load(t, healthy(t, audio)...))

	require.Equal(t, []Kind{MissingAsset}, kinds(findings))
	ref := findings[0].Material
	assert.Equal(t, bundle.RoleContent, ref.Manifest)
	assert.Equal(t, 0, ref.Index)
	assert.Equal(t, "https://cdn.example.com/song.mp3?x=1", ref.RemoteURL)
}

func TestDiagnoseNFCNames(t *testing.T) {
	audio := mats{testutil.Material("a1", "caf\u00e9.mp3", "", "https://cdn.example.com/cafe.mp3")}
	b := load(t, healthy(t, audio, testutil.File("assets/audio/cafe\u0301.mp3", "ID3"))...)
	assert.Empty(t, run(b))
}

func TestDiagnoseStaleAbsolutePath(t *testing.T) {
	videos := mats{
		testutil.Material("v1", "a.mp4", "/tmp/draft/assets/video/a.mp4", ""),
		testutil.Material("v2", "b.mp4", `C:\Users\me\Videos\b.mp4`, ""),
		testutil.Material("v3", "c.mp4", `\\nas\share\c.mp4`, ""),
		testutil.Material("v4", "d.mp4", "assets/video/d.mp4", ""),
	}
	b := load(t,
		testutil.JSON(t, bundle.ContentFileName, testutil.Draft("windows", nil, videos, nil)),
		testutil.JSON(t, bundle.InfoFileName, testutil.Draft("windows", nil, nil, nil)),
		testutil.JSON(t, bundle.MetaFileName, testutil.Meta("dfd_t")),
		testutil.Dir("assets/audio/"), testutil.Dir("assets/image/"),
		testutil.File("assets/video/a.mp4", "x"), testutil.File("assets/video/b.mp4", "x"),
		testutil.File("assets/video/c.mp4", "x"), testutil.File("assets/video/d.mp4", "x"),
	)
	findings := run(b)

	require.Equal(t, []Kind{StaleAbsolutePath, StaleAbsolutePath, StaleAbsolutePath}, kinds(findings))
	for i, f := range findings {
		assert.Equal(t, i, f.Material.Index)
		assert.Equal(t, bundle.KindVideo, f.Material.Kind)
	}
}

func TestDiagnoseDanglingSegment(t *testing.T) {
	content := testutil.Draft("windows", nil, nil, nil)
	content["tracks"] = []map[string]interface{}{{
		"type":     "audio",
		"segments": []map[string]interface{}{{"material_id": "ghost"}, {"material_id": "ghost"}},
	}}
	entries := healthy(t, nil)
	entries[0] = testutil.JSON(t, bundle.ContentFileName, content)
	findings := run(load(t, entries...))

	require.Equal(t, []Kind{DanglingSegment}, kinds(findings))
	assert.Equal(t, "ghost", findings[0].MaterialID)
	assert.Equal(t, bundle.RoleContent, findings[0].Manifest)
}

func TestDiagnoseRawCollectionsSatisfySegments(t *testing.T) {
	content := testutil.Draft("windows", nil, nil, nil)
	content["materials"].(map[string]interface{})["texts"] = []map[string]interface{}{{"id": "t1"}}
	content["tracks"] = []map[string]interface{}{{"type": "text", "segments": []map[string]interface{}{{"material_id": "t1"}}}}
	entries := healthy(t, nil)
	entries[0] = testutil.JSON(t, bundle.ContentFileName, content)
	assert.Empty(t, run(load(t, entries...)))
}

func TestDiagnoseMissingLocalAssetIsOptIn(t *testing.T) {
	images := mats{testutil.Material("i1", "cover.png", "assets/image/cover.png", "")}
	entries := []testutil.Entry{
		testutil.JSON(t, bundle.ContentFileName, testutil.Draft("windows", nil, nil, images)),
		testutil.JSON(t, bundle.InfoFileName, testutil.Draft("windows", nil, nil, images)),
		testutil.JSON(t, bundle.MetaFileName, testutil.Meta("dfd_t")),
		testutil.Dir("assets/audio/"), testutil.Dir("assets/video/"),
	}

	b := load(t, entries...)
	assert.Equal(t, []Kind{MissingAssetDir}, kinds(run(b)))

	findings := Diagnose(context.Background(), b, Options{Target: platform.Windows, Placeholders: true})
	require.Equal(t, []Kind{MissingLocalAsset}, kinds(findings))
	assert.Equal(t, "assets/image/cover.png", findings[0].Material.AssetPath())
}

func TestDiagnoseNonRemoteURLIsLocalOnly(t *testing.T) {
	for _, locator := range []string{"/etc/passwd", "file:///etc/passwd", `C:\secret.png`, "ftp://host/x.png", "https:///no-host.png"} {
		t.Run(locator, func(t *testing.T) {
			images := mats{testutil.Material("i1", "cover.png", "", locator)}
			b := load(t,
				testutil.JSON(t, bundle.ContentFileName, testutil.Draft("windows", nil, nil, images)),
				testutil.JSON(t, bundle.InfoFileName, testutil.Draft("windows", nil, nil, nil)),
				testutil.JSON(t, bundle.MetaFileName, testutil.Meta("dfd_t")),
				testutil.Dir("assets/audio/"), testutil.Dir("assets/video/"), testutil.Dir("assets/image/"),
			)
			assert.Empty(t, run(b), "no remote copy to fetch")

			findings := Diagnose(context.Background(), b, Options{Target: platform.Windows, Placeholders: true})
			assert.Equal(t, []Kind{MissingLocalAsset}, kinds(findings))
		})
	}
}

func TestDiagnoseOrdering(t *testing.T) {
	audio := mats{testutil.Material("a1", "x.mp3", "/var/tmp/x.mp3", "https://cdn.example.com/x.mp3")}
	content := testutil.Draft("linux", audio, nil, nil)
	content["tracks"] = append(content["tracks"].([]map[string]interface{}),
		map[string]interface{}{"type": "video", "segments": []map[string]interface{}{{"material_id": "nope"}}})
	b := load(t,
		testutil.JSON(t, bundle.ContentFileName, content),
		testutil.JSON(t, bundle.MetaFileName, testutil.Meta("dfd_t")),
		testutil.Dir("assets/audio/"),
	)

	assert.Equal(t, []Kind{
		MissingManifest,
		MissingAssetDir, MissingAssetDir,
		PlatformMismatch,
		MissingAsset,
		StaleAbsolutePath,
		DanglingSegment,
	}, kinds(run(b)))
}

func TestDiagnoseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := load(t)
	assert.Empty(t, Diagnose(ctx, b, Options{Target: platform.Windows}))
}

func TestCount(t *testing.T) {
	c := Count([]Finding{{Kind: MissingAsset}, {Kind: MissingAsset}, {Kind: PlatformMismatch}})
	assert.Equal(t, 2, c[MissingAsset])
	assert.Equal(t, 1, c[PlatformMismatch])
	assert.Equal(t, 0, c[DanglingSegment])
}
