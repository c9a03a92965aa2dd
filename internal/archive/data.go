package archive

// ExtractedFileSet lists the canonical files one extraction produced,
// in archive order.
type ExtractedFileSet struct {
	files []string
}

func (s ExtractedFileSet) Files() []string {
	out := make([]string, len(s.files))
	copy(out, s.files)
	return out
}

func (s ExtractedFileSet) Len() int {
	return len(s.files)
}
