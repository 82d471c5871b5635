package assets

// Registry lists embedded schemas available at runtime.
// Update this when adding/removing curated assets.

type SchemaInfo struct {
	Name  string // registry key used by internal/schema
	Path  string // path relative to embedded_schemas
	Draft string // JSON Schema draft
}

var Registry = []SchemaInfo{
	{Name: "draft-manifest-v1", Path: "manifest/v1/draft.yaml", Draft: "draft-07"},
	{Name: "meta-manifest-v1", Path: "manifest/v1/meta.yaml", Draft: "draft-07"},
}
