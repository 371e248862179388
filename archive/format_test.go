package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"app.zip", Zip},
		{"lib.JAR", Zip},
		{"site.war", Zip},
		{"dist/app.tar.gz", TarGz},
		{"APP.TAR.GZ", TarGz},
		{"bundle.tar", Tar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetect_Unsupported(t *testing.T) {
	for _, name := range []string{"app.tgz", "app.gz", "app.7z", "README", "zip"} {
		t.Run(name, func(t *testing.T) {
			_, err := Detect(name)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedFormat)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestFormat_String(t *testing.T) {
	assert.Equal(t, "zip", Zip.String())
	assert.Equal(t, "tar", Tar.String())
	assert.Equal(t, "tar.gz", TarGz.String())
	assert.Equal(t, "unknown", Format(0).String())
}

func TestDefaultTarget(t *testing.T) {
	tests := map[string]string{
		"/work/app.tar.gz":  "/work/app",
		"/work/APP.TAR.GZ":  "/work/APP",
		"/work/lib.jar":     "/work/lib",
		"/work/bundle.tar":  "/work/bundle",
		"/work/notes.txt":   "/work/notes",
		"/work/no-ext":      "/work/no-ext",
		"relative/site.war": "relative/site",
	}
	for in, want := range tests {
		assert.Equal(t, want, DefaultTarget(in), in)
	}
}
