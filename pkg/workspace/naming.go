package workspace

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// unsafeForFilenameRegex matches characters that are not safe to embed
// directly in a temp filename. Adapted from the slug-sanitization pattern
// the teacher used for human-entered workspace names: here it guards the
// request id, which is caller-supplied and opaque.
var unsafeForFilenameRegex = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// commonJSExts are extensions the spec calls out as explicitly CommonJS.
// Anything else (including plain .js, whose module system is ambiguous
// without reading package.json) gets the ESM extension.
var commonJSExts = map[string]bool{
	".cjs": true,
	".cts": true,
}

const esmExt = "mjs"
const cjsExt = "cjs"

// sanitizeID makes an opaque request id safe to embed in a filename.
func sanitizeID(id string) string {
	s := unsafeForFilenameRegex.ReplaceAllString(id, "-")
	if s == "" {
		return "noid"
	}
	return s
}

// stem returns the basename of path with its extension removed and any
// trailing .test or .spec segment stripped, so the prepared file is not
// itself re-discovered as a test by filename pattern.
func stem(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	s := strings.TrimSuffix(base, ext)
	s = strings.TrimSuffix(s, ".test")
	s = strings.TrimSuffix(s, ".spec")
	if s == "" {
		s = "file"
	}
	return s
}

// preparedExt picks cjs or esm per spec.md §3's rule.
func preparedExt(path string) string {
	if commonJSExts[strings.ToLower(filepath.Ext(path))] {
		return cjsExt
	}
	return esmExt
}

// preparedName builds the "<prefix>-<pid>-<id>-<stem>" filename (without
// directory or extension) for one file of one request. index disambiguates
// two files in the same request that land on the same (dir, stem,
// prepared extension) bucket;
// it is appended only when nonzero so the common case matches spec.md §3
// exactly.
func preparedName(prefix string, pid int, id string, originalPath string, index int) string {
	name := strings.Join([]string{prefix, strconv.Itoa(pid), sanitizeID(id), stem(originalPath)}, "-")
	if index > 0 {
		name = name + "-" + strconv.Itoa(index)
	}
	return name
}
