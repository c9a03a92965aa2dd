package build_test

import (
	"testing"

	"github.com/rohmanhakim/gutenberg-fetch/internal/build"
	"github.com/stretchr/testify/assert"
)

func TestFullVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{name: "default values", version: "dev", commit: "none", want: "dev+none"},
		{name: "version with commit", version: "1.0.0", commit: "abc123", want: "1.0.0+abc123"},
		{name: "version with empty commit", version: "1.0.0", commit: "", want: "1.0.0+"},
		{
			name:    "semver with long commit hash",
			version: "2.1.0-beta",
			commit:  "89dece58db957dbc4a9d03962b0411d05f9e37a5",
			want:    "2.1.0-beta+89dece58db957dbc4a9d03962b0411d05f9e37a5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, commit := build.Version, build.Commit
			t.Cleanup(func() { build.Version, build.Commit = version, commit })

			build.Version = tt.version
			build.Commit = tt.commit
			assert.Equal(t, tt.want, build.FullVersion())
		})
	}
}

func TestUserAgent(t *testing.T) {
	version := build.Version
	t.Cleanup(func() { build.Version = version })

	build.Version = "1.4.0"
	assert.Equal(t, "gutenberg-fetch/1.4.0", build.UserAgent())
}
