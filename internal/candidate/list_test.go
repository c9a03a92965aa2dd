package candidate_test

import (
	"testing"

	"github.com/rohmanhakim/gutenberg-fetch/internal/candidate"
	"github.com/stretchr/testify/assert"
)

func TestList_PopsFromTail(t *testing.T) {
	l := candidate.NewList([]string{"http://m/best.zip", "http://m/good.htm", "http://m/worst.html"})

	var order []string
	var probed []bool
	for {
		u, ok := l.Pop()
		if !ok {
			break
		}
		order = append(order, u)
		probed = append(probed, l.NeedsProbe())
	}

	assert.Equal(t, []string{"http://m/worst.html", "http://m/good.htm", "http://m/best.zip"}, order)
	assert.Equal(t, []bool{true, true, false}, probed, "the final remaining candidate is never probed")
	assert.Equal(t, 0, l.Remaining())
	assert.Equal(t, 3, l.Total())
}

func TestList_SingleCandidateIsNeverProbed(t *testing.T) {
	l := candidate.NewList([]string{"http://m/1342-h.zip"})

	u, ok := l.Pop()
	assert.True(t, ok)
	assert.Equal(t, "http://m/1342-h.zip", u)
	assert.False(t, l.NeedsProbe())
}

func TestList_Empty(t *testing.T) {
	l := candidate.NewList(nil)

	_, ok := l.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, l.Total())
	assert.Empty(t, l.All())
}

func TestList_DropsCanonicalDuplicates(t *testing.T) {
	l := candidate.NewList([]string{
		"http://aleph.gutenberg.org/1/84/84-h.zip",
		"HTTP://ALEPH.gutenberg.org:80/1/84/84-h.zip",
		"http://aleph.gutenberg.org/1/84/84-h/84-h.htm",
	})

	assert.Equal(t, []string{
		"http://aleph.gutenberg.org/1/84/84-h.zip",
		"http://aleph.gutenberg.org/1/84/84-h/84-h.htm",
	}, l.All())
}

func TestList_DoesNotAliasInput(t *testing.T) {
	urls := []string{"http://m/a", "http://m/b"}
	l := candidate.NewList(urls)
	urls[0] = "http://m/changed"

	all := l.All()
	all[1] = "http://m/also-changed"

	assert.Equal(t, []string{"http://m/a", "http://m/b"}, l.All())
}
