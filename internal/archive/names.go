package archive

import (
	"fmt"
	"path"
	"strings"
)

const imagesDir = "images"

// isSafeName accepts a member name only if, once its top component is
// stripped, it is a bare filename or images/<basename>. Directory
// entries are judged without their trailing slash.
func isSafeName(name string) bool {
	if name == "" || strings.ContainsRune(name, '\\') || strings.HasPrefix(name, "/") {
		return false
	}
	name = strings.TrimSuffix(name, "/")
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." || strings.ContainsRune(part, ':') {
			return false
		}
	}
	if len(parts) > 1 {
		parts = parts[1:]
	}
	switch len(parts) {
	case 1:
		return true
	case 2:
		return parts[0] == imagesDir
	default:
		return false
	}
}

func isHTMLLike(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm")
}

// isDirectoryEntry treats extension-less members as directories.
func isDirectoryEntry(name string) bool {
	return strings.HasSuffix(name, "/") || path.Ext(name) == ""
}

// canonicalName renames one member for the destination directory.
func canonicalName(bookID int, memberName string, multiHTML bool) string {
	base := path.Base(memberName)
	if !isHTMLLike(base) {
		return fmt.Sprintf("%d_%s", bookID, base)
	}
	if !multiHTML || strings.HasPrefix(base, fmt.Sprintf("%d-h.", bookID)) {
		return fmt.Sprintf("%d.html", bookID)
	}
	return fmt.Sprintf("%d_%s", bookID, base)
}
