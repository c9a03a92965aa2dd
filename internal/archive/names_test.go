package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSafeName(t *testing.T) {
	safe := []string{"1234-h.htm", "1234-h/1234-h.htm", "1234-h/images/a.png", "images/a.png", "1234-h/", "1234-h/images/"}
	unsafe := []string{"", "../../etc/passwd", "/abs.htm", "a\\b.htm", "a/b/c.htm", "a//b.htm", "a/./b.htm", "C:/x.htm", "a/css/b.css"}

	for _, name := range safe {
		assert.True(t, isSafeName(name), name)
	}
	for _, name := range unsafe {
		assert.False(t, isSafeName(name), name)
	}
}

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		member    string
		multiHTML bool
		want      string
	}{
		{"1234-h/1234-h.htm", false, "1234.html"},
		{"1234-h/other.html", false, "1234.html"},
		{"1234-h/1234-h.htm", true, "1234.html"},
		{"1234-h/1234-0.htm", true, "1234_1234-0.htm"},
		{"1234-h/images/p1.jpg", true, "1234_p1.jpg"},
		{"style.css", false, "1234_style.css"},
	}
	for _, tt := range tests {
		t.Run(tt.member, func(t *testing.T) {
			assert.Equal(t, tt.want, canonicalName(1234, tt.member, tt.multiHTML))
		})
	}
}
