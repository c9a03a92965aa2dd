package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// HTMLPattern is one entry of the primary-document allow-list.
// Pattern may contain the {id} placeholder. A Confidence of 0 disables the entry.
type HTMLPattern struct {
	Pattern    string  `yaml:"pattern"`
	Confidence float64 `yaml:"confidence"`
}

type HTMLPatterns []HTMLPattern

// DefaultHTMLPatterns lists the filenames known to hold a book's primary html
// document on the archive mirrors. The generic {id}-h forms rank highest, the
// legacy per-title names next, the generated and image-less variants last.
func DefaultHTMLPatterns() HTMLPatterns {
	return HTMLPatterns{
		{Pattern: "{id}-h.zip", Confidence: 1.0},
		{Pattern: "{id}-h.html", Confidence: 1.0},
		{Pattern: "{id}-h.htm", Confidence: 1.0},
		{Pattern: "mnsrb10h.htm", Confidence: 0.9},
		{Pattern: "8ledo10h.htm", Confidence: 0.9},
		{Pattern: "tycho10f.htm", Confidence: 0.9},
		{Pattern: "8ledo10h.zip", Confidence: 0.9},
		{Pattern: "salme10h.htm", Confidence: 0.9},
		{Pattern: "8nszr10h.htm", Confidence: 0.9},
		{Pattern: "8regr10h.zip", Confidence: 0.9},
		{Pattern: "8lgme10h.htm", Confidence: 0.9},
		{Pattern: "tycho10h.htm", Confidence: 0.9},
		{Pattern: "tycho10h.zip", Confidence: 0.9},
		{Pattern: "8lgme10h.zip", Confidence: 0.9},
		{Pattern: "8indn10h.zip", Confidence: 0.9},
		{Pattern: "8resp10h.zip", Confidence: 0.9},
		{Pattern: "20004-h.htm", Confidence: 0.9},
		{Pattern: "8indn10h.htm", Confidence: 0.9},
		{Pattern: "8memo10h.zip", Confidence: 0.9},
		{Pattern: "fondu10h.zip", Confidence: 0.9},
		{Pattern: "8mort10h.zip", Confidence: 0.9},
		{Pattern: "{id}.html.gen", Confidence: 0.6},
		{Pattern: "{id}.html.noimages", Confidence: 0.4},
	}
}

// Confidence returns the confidence of the first enabled entry matching a
// catalog pattern, either as the raw template or expanded for bookID.
func (ps HTMLPatterns) Confidence(bookID int, pattern string) (float64, bool) {
	id := strconv.Itoa(bookID)
	for _, p := range ps {
		if p.Confidence <= 0 {
			continue
		}
		if p.Pattern == pattern || strings.ReplaceAll(p.Pattern, "{id}", id) == pattern {
			return p.Confidence, true
		}
	}
	return 0, false
}

func (ps HTMLPatterns) validate() error {
	for i, p := range ps {
		if strings.TrimSpace(p.Pattern) == "" {
			return fmt.Errorf("%w: html pattern #%d is empty", ErrInvalidConfig, i)
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			return fmt.Errorf("%w: html pattern %q confidence %v outside [0, 1]", ErrInvalidConfig, p.Pattern, p.Confidence)
		}
	}
	return nil
}

type patternFile struct {
	Patterns HTMLPatterns `yaml:"patterns"`
}

// LoadHTMLPatterns reads a YAML pattern table of the form
//
//	patterns:
//	  - pattern: "{id}-h.zip"
//	    confidence: 1.0
func LoadHTMLPatterns(path string) (HTMLPatterns, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
		}
		return nil, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}
	if len(file.Patterns) == 0 {
		return nil, fmt.Errorf("%w: %s has no patterns", ErrInvalidConfig, path)
	}
	if err := file.Patterns.validate(); err != nil {
		return nil, err
	}
	return file.Patterns, nil
}
