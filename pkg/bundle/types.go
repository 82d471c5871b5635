package bundle

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Role identifies one of the three manifests of a draft.
type Role string

const (
	RoleContent Role = "content"
	RoleInfo    Role = "info"
	RoleMeta    Role = "meta"
)

// Manifest file names. These are part of the archive layout contract.
const (
	ContentFileName = "draft_content.json"
	InfoFileName    = "draft_info.json"
	MetaFileName    = "draft_meta_info.json"
)

// CorruptSuffix is appended to a manifest that failed to parse before it is
// replaced with a skeleton.
const CorruptSuffix = ".corrupt"

// Roles returns the manifest roles in diagnosis order.
func Roles() []Role {
	return []Role{RoleContent, RoleInfo, RoleMeta}
}

// DraftRoles returns the roles that carry materials and tracks.
func DraftRoles() []Role {
	return []Role{RoleContent, RoleInfo}
}

// FileName returns the on-disk name of the manifest.
func (r Role) FileName() string {
	switch r {
	case RoleContent:
		return ContentFileName
	case RoleInfo:
		return InfoFileName
	case RoleMeta:
		return MetaFileName
	default:
		return ""
	}
}

// Kind is a media kind. Its value doubles as the assets/<kind> directory name.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
	KindImage Kind = "image"
)

// Kinds returns media kinds in diagnosis order.
func Kinds() []Kind {
	return []Kind{KindAudio, KindVideo, KindImage}
}

// Collection returns the materials.<collection> key for the kind.
func (k Kind) Collection() string {
	return string(k) + "s"
}

// ParseKind accepts a kind or its collection name.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// AssetsDir is the bundle-relative root of the media tree.
const AssetsDir = "assets"

// AssetDir returns the bundle-relative directory of a kind, e.g. "assets/audio".
func AssetDir(k Kind) string {
	return path.Join(AssetsDir, string(k))
}

// AssetRelPath returns the bundle-relative POSIX path for a named asset.
func AssetRelPath(k Kind, name string) string {
	return path.Join(AssetsDir, string(k), NormalizeName(name))
}

// NormalizeName applies Unicode NFC so names from different filesystems compare equal.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

// IsAbsoluteRef reports whether a material path points outside the bundle:
// POSIX absolute, a Windows drive path (C:\ or C:/), or a UNC share.
func IsAbsoluteRef(p string) bool {
	if p == "" {
		return false
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\\`) {
		return true
	}
	if len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/') {
		c := p[0]
		return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
	}
	return false
}

// RemoteSchemes are the URL schemes a material remote_url may be fetched from.
var RemoteSchemes = []string{"http", "https", "s3"}

// IsRemoteLocator reports whether a remote_url names a fetchable remote
// object: one of RemoteSchemes with a host. Paths and file URLs are not.
func IsRemoteLocator(s string) bool {
	if IsAbsoluteRef(s) {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	for _, scheme := range RemoteSchemes {
		if strings.EqualFold(u.Scheme, scheme) {
			return true
		}
	}
	return false
}
