package config

import (
	"strings"
	"testing"

	"github.com/reglet-dev/netgate/internal/domain/manifest"
)

// FuzzLoadManifestBytes checks that arbitrary documents either load or fail
// with an error, and that whatever loads also parses or fails cleanly.
func FuzzLoadManifestBytes(f *testing.F) {
	seeds := []string{
		`api: [socket.tcp]`,
		`{"api": ["*"], "destinations": ["*"]}`,
		`destinations: ["tcp://host:99999"]`,
		strings.Repeat("nested:\n  ", 200) + "value: 1",
		"api: &a [socket]\ndestinations: *a",
		"api: [\"\xff\xfe\"]",
		"",
		"   \n\t  \n",
		"api:\n  - socket\n    bad_indent",
	}
	for _, seed := range seeds {
		f.Add([]byte(seed))
	}

	l, err := NewManifestLoader()
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		raw, err := l.LoadManifestBytes(data)
		if err != nil {
			return
		}
		_, _ = manifest.Parse(raw, manifest.Options{MissingAPI: manifest.MissingAPIDeny})
	})
}
