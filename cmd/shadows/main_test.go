package main

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/twpayne/go-shadows"
)

func skipIfNoPROJ(t *testing.T) {
	t.Helper()
	if _, err := shadows.NewTransformer(); err != nil {
		t.Skip(err)
	}
}

func writeHeightmap(t *testing.T, dir, name string, value int) {
	t.Helper()
	rows := make([][]int, shadows.Resolution)
	for i := range rows {
		rows[i] = make([]int, shadows.Resolution)
		for j := range rows[i] {
			rows[i][j] = value
		}
	}
	data, err := json.Marshal(rows)
	assert.NoError(t, err)
	var buffer bytes.Buffer
	w := gzip.NewWriter(&buffer)
	_, err = w.Write(data)
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, os.WriteFile(filepath.Join(dir, name), buffer.Bytes(), 0o644))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := rootCmd.ExecuteContext(t.Context())
	return stdout.String(), err
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("SHADOWS_LOGGING_LEVEL", "verbose")
	_, err := execute(t, "locate", "22.2666", "60.4518")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestEnvFile(t *testing.T) {
	t.Setenv("SHADOWS_LOGGING_FORMAT", "")
	assert.NoError(t, os.Unsetenv("SHADOWS_LOGGING_FORMAT"))

	envFile := filepath.Join(t.TempDir(), ".env")
	assert.NoError(t, os.WriteFile(envFile, []byte("SHADOWS_LOGGING_FORMAT=xml\n"), 0o644))

	err := run(t.Context(), []string{"--env-file", envFile, "locate", "22.2666", "60.4518"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.format")
}

func TestMissingEnvFile(t *testing.T) {
	_, err := execute(t, "--env-file", filepath.Join(t.TempDir(), ".env"), "locate", "east", "60")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid syntax")
}

func TestArgs(t *testing.T) {
	for _, args := range [][]string{
		{"locate", "22.2666"},
		{"render", "240000"},
		{"render", "240000.5", "6710800"},
		{"slice"},
		{"slice-map-images"},
		{"prune", "extra"},
		{"serve", "extra"},
	} {
		t.Run(strings.Join(args, "_"), func(t *testing.T) {
			_, err := execute(t, args...)
			assert.Error(t, err)
		})
	}
}

func TestLocate(t *testing.T) {
	skipIfNoPROJ(t)
	stdout, err := execute(t, "locate", "22.2666", "60.4518")
	assert.NoError(t, err)
	var actual shadows.TileInformation
	assert.NoError(t, json.Unmarshal([]byte(stdout), &actual))
	assert.Equal(t, int64(240000), actual.Longitude)
	assert.Equal(t, int64(6710800), actual.Latitude)
	assert.Equal(t, 400, actual.TileWidth)
}

func TestRender(t *testing.T) {
	skipIfNoPROJ(t)
	heightmapsDir := t.TempDir()
	writeHeightmap(t, heightmapsDir, "240000x6710800", 100)

	t.Run("data_uri", func(t *testing.T) {
		stdout, err := execute(t, "--heightmaps-dir", heightmapsDir, "render", "240000", "6710800")
		assert.NoError(t, err)
		assert.HasPrefix(t, stdout, "data:image/png;base64,")
	})

	t.Run("output", func(t *testing.T) {
		output := filepath.Join(t.TempDir(), "shadows.png")
		_, err := execute(t, "--heightmaps-dir", heightmapsDir, "render", "240000", "6710800", "-o", output)
		assert.NoError(t, err)
		file, err := os.Open(output)
		assert.NoError(t, err)
		defer file.Close()
		img, err := png.Decode(file)
		assert.NoError(t, err)
		assert.Equal(t, shadows.Resolution, img.Bounds().Dx())
		_, _, _, a := img.At(0, 0).RGBA()
		assert.NotZero(t, a)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := execute(t, "--heightmaps-dir", heightmapsDir, "render", "0", "0")
		assert.IsError(t, err, shadows.ErrArtifactNotFound)
	})
}

func TestSliceMapImagesAndPrune(t *testing.T) {
	sourceDir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 400, 200))
	draw.Draw(img, image.Rect(200, 0, 400, 200), image.NewUniform(color.NRGBA{R: 255, A: 255}), image.Point{}, draw.Src)
	var buffer bytes.Buffer
	assert.NoError(t, png.Encode(&buffer, img))
	assert.NoError(t, os.WriteFile(filepath.Join(sourceDir, "map.png"), buffer.Bytes(), 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(sourceDir, "map.pgw"), []byte("2\n0\n0\n-2\n240001\n6710799\n"), 0o644))

	mapImagesDir := t.TempDir()
	heightmapsDir := t.TempDir()
	_, err := execute(t, "--map-images-dir", mapImagesDir, "slice-map-images", filepath.Join(sourceDir, "map.png"))
	assert.NoError(t, err)

	file, err := os.Open(filepath.Join(mapImagesDir, "240400x6710800.png"))
	assert.NoError(t, err)
	defer file.Close()
	tile, err := png.Decode(file)
	assert.NoError(t, err)
	assert.Equal(t, shadows.Resolution, tile.Bounds().Dx())
	r, _, _, _ := tile.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	writeHeightmap(t, heightmapsDir, "240000x6710800", 100)
	writeHeightmap(t, heightmapsDir, "0x0", 100)
	_, err = execute(t, "--map-images-dir", mapImagesDir, "--heightmaps-dir", heightmapsDir, "prune")
	assert.NoError(t, err)

	for _, tc := range []struct {
		filename string
		exists   bool
	}{
		{filename: filepath.Join(mapImagesDir, "240000x6710800.png"), exists: true},
		{filename: filepath.Join(mapImagesDir, "240400x6710800.png")},
		{filename: filepath.Join(heightmapsDir, "240000x6710800"), exists: true},
		{filename: filepath.Join(heightmapsDir, "0x0")},
	} {
		_, err := os.Stat(tc.filename)
		if tc.exists {
			assert.NoError(t, err)
		} else {
			assert.IsError(t, err, fs.ErrNotExist)
		}
	}
}
