package paths

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveRoots(t *testing.T) {
	// 1. resolves default InstallRoot/DataRoot correctly
	os.Unsetenv("CASHVISION_INSTALL_ROOT")
	os.Unsetenv("CASHVISION_DATA_ROOT")
	assert.Equal(t, DefaultInstallRoot, ResolveInstallRoot())
	assert.Equal(t, DefaultDataRoot, ResolveDataRoot())

	os.Setenv("CASHVISION_INSTALL_ROOT", "/custom/install")
	os.Setenv("CASHVISION_DATA_ROOT", "/custom/data")
	assert.Equal(t, "/custom/install", ResolveInstallRoot())
	assert.Equal(t, "/custom/data", ResolveDataRoot())
}

func TestSafeJoin(t *testing.T) {
	base := "/var/lib/cashvision/data"

	// 2. rejects path traversal attempts
	cases := []struct {
		name     string
		elements []string
		valid    bool
	}{
		{"normal", []string{"logs", "app.log"}, true},
		{"parent", []string{"..", "other"}, false},
		{"nested_parent", []string{"logs", "..", "..", "secrets"}, false},
		{"absolute", []string{"/etc/passwd"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := SafeJoin(base, tc.elements...)
			if tc.valid {
				assert.NoError(t, err)
				assert.Contains(t, res, base)
			} else {
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), "traversal")
				}
			}
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	tmpRoot := filepath.Join(os.TempDir(), "cashvision_test_data")
	tmpMedia := filepath.Join(os.TempDir(), "cashvision_test_media")
	os.Setenv("CASHVISION_DATA_ROOT", tmpRoot)
	os.Setenv("CASHVISION_MEDIA_ROOT", tmpMedia)
	defer os.RemoveAll(tmpRoot)
	defer os.RemoveAll(tmpMedia)
	defer os.Unsetenv("CASHVISION_MEDIA_ROOT")

	// 3. creates required DataRoot and media subdirectories
	err := EnsureDirs()
	assert.NoError(t, err)

	for _, sub := range []string{"config", "logs", "tmp"} {
		_, err := os.Stat(filepath.Join(tmpRoot, sub))
		assert.NoError(t, err, "subdirectory %s should exist", sub)
	}
	for _, sub := range []string{"clips", "thumbnails", "json"} {
		_, err := os.Stat(filepath.Join(tmpMedia, sub))
		assert.NoError(t, err, "media subdirectory %s should exist", sub)
	}
}

func TestArtifactPaths(t *testing.T) {
	capturedAt := time.Date(2026, 7, 31, 14, 5, 9, 0, time.UTC)
	clip, thumb, sidecar := ArtifactPaths("/media", "cash", "cam-1", capturedAt)
	assert.Equal(t, "/media/clips/cash_cam-1_20260731_140509.mp4", clip)
	assert.Equal(t, "/media/thumbnails/cash_cam-1_20260731_140509.jpg", thumb)
	assert.Equal(t, "/media/json/cash_cam-1_20260731_140509.json", sidecar)
}
