package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/fulmenhq/draftfix/pkg/bundle"
)

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var doc interface{}
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestValidateDraftManifest(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		valid bool
		path  string
	}{
		{name: "empty object", doc: `{}`, valid: true},
		{name: "typical", doc: `{"id":"A","materials":{"audios":[{"id":"a","path":"assets/audio/a.mp3","remote_url":null}],"texts":[1]},"tracks":[{"type":"audio","segments":[{"material_id":"a"}]}]}`, valid: true},
		{name: "materials is an array", doc: `{"materials":[]}`, path: "materials"},
		{name: "platform is a string", doc: `{"platform":"windows"}`, path: "platform"},
		{name: "path is a number", doc: `{"materials":{"videos":[{"path":3}]}}`, path: "materials.videos.0.path"},
		{name: "top level array", doc: `[]`, path: "root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Validate(decode(t, tt.doc), "draft-manifest-v1")
			if err != nil {
				t.Fatal(err)
			}
			if res.Valid != tt.valid {
				t.Fatalf("Valid = %v, errors: %v", res.Valid, res.Errors)
			}
			if tt.path == "" {
				return
			}
			found := false
			for _, e := range res.Errors {
				if e.Path == tt.path {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an error at %q, got %v", tt.path, res.Errors)
			}
		})
	}
}

func TestValidateMetaManifestPlatformForms(t *testing.T) {
	for _, doc := range []string{`{"platform":"windows"}`, `{"platform":{"os":"mac"}}`, `{"platform":null}`} {
		res, err := Validate(decode(t, doc), "meta-manifest-v1")
		if err != nil {
			t.Fatal(err)
		}
		if !res.Valid {
			t.Errorf("%s should be valid: %v", doc, res.Errors)
		}
	}
	res, _ := Validate(decode(t, `{"platform":7}`), "meta-manifest-v1")
	if res.Valid {
		t.Error("numeric platform should be rejected")
	}
}

func TestValidateUnknownSchema(t *testing.T) {
	if _, err := Validate(map[string]interface{}{}, "nope"); err == nil {
		t.Error("expected error for unknown schema")
	}
}

func TestManifestValidator(t *testing.T) {
	v, err := NewManifestValidator()
	if err != nil {
		t.Fatal(err)
	}
	problems, err := v.ValidateManifest(bundle.RoleContent, decode(t, `{"materials":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) == 0 || !strings.HasPrefix(problems[0], "materials: ") {
		t.Errorf("unexpected problems %v", problems)
	}

	problems, err = v.ValidateManifest(bundle.RoleMeta, decode(t, `{"draft_id":"x"}`))
	if err != nil || len(problems) != 0 {
		t.Errorf("meta should validate: %v %v", problems, err)
	}
	var _ bundle.ShapeValidator = v
}
