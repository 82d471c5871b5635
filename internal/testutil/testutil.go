/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/

// Package testutil builds draft archives and manifests for tests.
package testutil

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
)

// Entry is one archive member. A name ending in "/" is a directory.
type Entry struct {
	Name    string
	Body    []byte
	Symlink bool
}

// File returns a regular file entry.
func File(name string, body string) Entry { return Entry{Name: name, Body: []byte(body)} }

// Dir returns a directory entry.
func Dir(name string) Entry { return Entry{Name: name} }

// JSON returns a file entry whose body is v encoded as JSON.
func JSON(t testing.TB, name string, v interface{}) Entry {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	return Entry{Name: name, Body: data}
}

// WriteZip writes entries, in the given order, to a new archive under t.TempDir().
func WriteZip(t testing.TB, entries ...Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "draft.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
		switch {
		case e.Symlink:
			hdr.SetMode(os.ModeSymlink | 0o777)
		case len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/':
			hdr.Method = zip.Store
			hdr.SetMode(os.ModeDir | 0o755)
		default:
			hdr.SetMode(0o644)
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatal(err)
		}
		if len(e.Body) > 0 {
			if _, err := w.Write(e.Body); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// ReadZip returns the archive's members keyed by name.
func ReadZip(t testing.TB, path string) map[string][]byte {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer func() { _ = zr.Close() }()
	out := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		buf, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		out[f.Name] = buf
	}
	return out
}

// ZipNames returns the archive member names in archive order.
func ZipNames(t testing.TB, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer func() { _ = zr.Close() }()
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

// SortedKeys returns the keys of m in order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Platform returns a platform block for family with fixed hex identifiers derived from tag.
func Platform(family, tag string) map[string]interface{} {
	pad := func(s string) string {
		for len(s) < 32 {
			s += "0"
		}
		return s[:32]
	}
	return map[string]interface{}{
		"app_id":       3704,
		"app_source":   "lv",
		"app_version":  "5.9.0",
		"device_id":    pad("d" + tag),
		"hard_disk_id": pad("e" + tag),
		"mac_address":  pad("f" + tag),
		"os":           family,
		"os_version":   "6.1.0",
	}
}

// Material returns a materials entry.
func Material(id, name, path, remoteURL string) map[string]interface{} {
	m := map[string]interface{}{"id": id, "material_name": name, "path": path, "duration": 5000000}
	if remoteURL != "" {
		m["remote_url"] = remoteURL
	}
	return m
}

// Draft returns a content/info manifest with the given platform OS and materials.
func Draft(family string, audios, videos, images []map[string]interface{}) map[string]interface{} {
	orEmpty := func(v []map[string]interface{}) []map[string]interface{} {
		if v == nil {
			return []map[string]interface{}{}
		}
		return v
	}
	var tracks []map[string]interface{}
	for _, group := range [][]map[string]interface{}{audios, videos, images} {
		for _, m := range group {
			tracks = append(tracks, map[string]interface{}{
				"type":     "video",
				"segments": []map[string]interface{}{{"material_id": m["id"]}},
			})
		}
	}
	if tracks == nil {
		tracks = []map[string]interface{}{}
	}
	return map[string]interface{}{
		"id":                     "DRAFT-ID",
		"canvas_config":          map[string]interface{}{"width": 1920, "height": 1080, "ratio": "original"},
		"fps":                    30.0,
		"duration":               5000000,
		"platform":               Platform(family, "1"),
		"last_modified_platform": Platform(family, "2"),
		"materials": map[string]interface{}{
			"audios": orEmpty(audios),
			"videos": orEmpty(videos),
			"images": orEmpty(images),
			"texts":  []interface{}{},
		},
		"tracks": tracks,
	}
}

// Meta returns a meta manifest.
func Meta(id string) map[string]interface{} {
	return map[string]interface{}{
		"draft_id":        "META-ID",
		"draft_name":      id,
		"draft_fold_path": "",
		"draft_root_path": "",
		"draft_materials": []interface{}{},
	}
}

// WriteDir materializes entries under root, as an unpacked bundle would be.
func WriteDir(t testing.TB, root string, entries ...Entry) string {
	t.Helper()
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		p := filepath.Join(root, filepath.FromSlash(e.Name))
		if len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/' {
			if err := os.MkdirAll(p, 0o755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, e.Body, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}
