package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/pocrop/internal/geometry"
	"github.com/MeKo-Tech/pocrop/internal/imageio"
	"github.com/MeKo-Tech/pocrop/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDocument(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	return dir, testutil.WriteDocument(t, dir, "doc.png", testutil.DefaultDocumentConfig())
}

func TestDetectCommand(t *testing.T) {
	_, doc := writeDocument(t)

	output, err := executeCommand(t, "detect", doc, "--format", "json")
	require.NoError(t, err)

	var out DetectOutput
	require.NoError(t, json.Unmarshal([]byte(output), &out))
	assert.Equal(t, 400, out.Width)
	assert.Equal(t, 300, out.Height)
	require.NotNil(t, out.Quad)
	want := testutil.DefaultDocumentConfig().Corners
	for i := range want {
		assert.InDelta(t, want[i].X, out.Quad[i].X, 8, "corner %d x", i)
		assert.InDelta(t, want[i].Y, out.Quad[i].Y, 8, "corner %d y", i)
	}

	output, err = executeCommand(t, "detect", doc)
	require.NoError(t, err)
	assert.Contains(t, output, "(400x300)")
	assert.Contains(t, output, "Corners: ")
}

func TestDetectCommandErrors(t *testing.T) {
	_, doc := writeDocument(t)
	tests := []struct {
		name string
		args []string
	}{
		{"missing file", []string{"detect", "/non/existent/file.jpg"}},
		{"bad format", []string{"detect", doc, "--format", "csv"}},
		{"no args", []string{"detect"}},
		{"invalid max corners", []string{"detect", doc, "--max-corners", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestCorrectCommand(t *testing.T) {
	dir, doc := writeDocument(t)

	tests := []struct {
		name   string
		args   []string
		output string
		aspect float64 // height / width
	}{
		{
			name:   "explicit corners square",
			args:   []string{"--corners", "60,50;340,50;340,250;60,250", "--ratio", "square", "--best-fit=false"},
			output: "square.png",
			aspect: 1,
		},
		{
			name:   "detected corners custom",
			args:   []string{"--ratio", "custom", "--custom-width", "4", "--custom-height", "3", "--best-fit=false"},
			output: "custom.bmp",
			aspect: 0.75,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, tt.output)
			args := append([]string{"correct", doc, "-o", out}, tt.args...)
			output, err := executeCommand(t, args...)
			require.NoError(t, err)
			assert.Contains(t, output, "Corrected")

			w, h, err := imageio.Dimensions(out)
			require.NoError(t, err)
			assert.InDelta(t, tt.aspect, float64(h)/float64(w), 0.02)
		})
	}
}

func TestCorrectCommandDefaultOutputAndPackage(t *testing.T) {
	dir, doc := writeDocument(t)
	pkg := filepath.Join(dir, "doc.mcm")

	output, err := executeCommand(t, "correct", doc, "--filter", "grayscale", "--package", pkg, "--notes", "scan")
	require.NoError(t, err)
	assert.Contains(t, output, "Saved package")
	assert.FileExists(t, filepath.Join(dir, "doc_corrected.jpg"))
	assert.FileExists(t, pkg)
}

func TestCorrectCommandErrors(t *testing.T) {
	_, doc := writeDocument(t)
	tests := []struct {
		name string
		args []string
	}{
		{"bad corners", []string{"correct", doc, "--corners", "1,2;3,4"}},
		{"bad ratio", []string{"correct", doc, "--ratio", "golden"}},
		{"custom without size", []string{"correct", doc, "--ratio", "custom"}},
		{"bad filter", []string{"correct", doc, "--filter", "sepia"}},
		{"bad output format", []string{"correct", doc, "--format", "xcf"}},
		{"missing file", []string{"correct", "/non/existent/file.jpg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestFilterCommand(t *testing.T) {
	dir, doc := writeDocument(t)

	output, err := executeCommand(t, "filter", "--list")
	require.NoError(t, err)
	assert.Contains(t, output, "auto_contrast")
	assert.Contains(t, output, "flip_vertical")

	out := filepath.Join(dir, "rotated.png")
	_, err = executeCommand(t, "filter", doc, "grayscale", "rotate_cw", "-o", out)
	require.NoError(t, err)
	w, h, err := imageio.Dimensions(out)
	require.NoError(t, err)
	assert.Equal(t, 300, w)
	assert.Equal(t, 400, h)

	out = filepath.Join(dir, "cropped.png")
	_, err = executeCommand(t, "filter", doc, "--crop", "60,50,340,250", "--resize", "140x100", "-o", out)
	require.NoError(t, err)
	w, h, err = imageio.Dimensions(out)
	require.NoError(t, err)
	assert.Equal(t, 140, w)
	assert.Equal(t, 100, h)

	_, err = executeCommand(t, "filter", doc, "sepia")
	assert.Error(t, err)
	_, err = executeCommand(t, "filter")
	assert.Error(t, err)
}

func TestMeasureCommands(t *testing.T) {
	dir, doc := writeDocument(t)
	record := filepath.Join(dir, "page.json")

	output, err := executeCommand(t, "measure", "distance", "0,0", "100,0", "--record", record)
	require.NoError(t, err)
	assert.Equal(t, "100.00 pixels", output)

	output, err = executeCommand(t, "measure", "calibrate", "10", "cm", "--record", record, "--index", "0")
	require.NoError(t, err)
	assert.Equal(t, "Scale: 0.1 cm/px", output)

	output, err = executeCommand(t, "measure", "angle", "10,0", "0,0", "0,10", "--record", record)
	require.NoError(t, err)
	assert.Equal(t, "90.0°", output)

	output, err = executeCommand(t, "measure", "distance", "0,0", "0,50", "--record", record)
	require.NoError(t, err)
	assert.Equal(t, "5.00 cm", output)

	output, err = executeCommand(t, "measure", "show", "--record", record)
	require.NoError(t, err)
	assert.Contains(t, output, "10.00 cm")
	assert.Contains(t, output, "5.00 cm")
	assert.Contains(t, output, "90.0°")

	output, err = executeCommand(t, "measure", "show", "--record", record, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, output, "DistanceMeasurements")

	overlay := filepath.Join(dir, "overlay.png")
	output, err = executeCommand(t, "measure", "render", doc, "--record", record, "-o", overlay)
	require.NoError(t, err)
	assert.Contains(t, output, "Rendered 3 measurements")
	w, h, err := imageio.Dimensions(overlay)
	require.NoError(t, err)
	assert.Equal(t, 400, w)
	assert.Equal(t, 300, h)
}

func TestMeasureCommandErrors(t *testing.T) {
	dir := t.TempDir()
	record := filepath.Join(dir, "r.yaml")
	_, err := executeCommand(t, "measure", "distance", "0,0", "30,40", "--record", record)
	require.NoError(t, err)

	tests := []struct {
		name string
		args []string
	}{
		{"bad point", []string{"measure", "distance", "0;0", "1,1"}},
		{"bad calibration", []string{"measure", "distance", "0,0", "1,1", "--calibration", "ten cm"}},
		{"calibrate without record", []string{"measure", "calibrate", "10 cm", "--index", "0"}},
		{"calibrate without target", []string{"measure", "calibrate", "10 cm", "--record", record}},
		{"calibrate index out of range", []string{"measure", "calibrate", "10 cm", "--record", record, "--index", "5"}},
		{"calibrate bad length", []string{"measure", "calibrate", "0", "--record", record, "--index", "0"}},
		{"show missing record", []string{"measure", "show", "--record", filepath.Join(dir, "missing.json")}},
		{"render without record", []string{"measure", "render", "x.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestPackageCommands(t *testing.T) {
	dir, doc := writeDocument(t)
	record := filepath.Join(dir, "page.json")
	_, err := executeCommand(t, "measure", "distance", "0,0", "100,0", "--record", record, "--calibration", "4 in")
	require.NoError(t, err)

	pkg := filepath.Join(dir, "page.mcm")
	output, err := executeCommand(t, "package", "create", doc, "--record", record, "--notes", "kitchen", "-o", pkg)
	require.NoError(t, err)
	assert.Contains(t, output, "(1 measurements)")

	output, err = executeCommand(t, "package", "info", pkg, "--format", "json")
	require.NoError(t, err)
	var info PackageInfo
	require.NoError(t, json.Unmarshal([]byte(output), &info))
	assert.Equal(t, "kitchen", info.Notes)
	assert.Equal(t, "doc.png", info.OriginalFilename)
	assert.Equal(t, 1, info.FormatVersion)
	assert.True(t, info.HasImage)
	assert.NotEmpty(t, info.ProjectID)
	assert.Equal(t, []string{"4.00 in"}, info.Labels)

	output, err = executeCommand(t, "package", "info", pkg)
	require.NoError(t, err)
	assert.Contains(t, output, "Notes: kitchen")

	outDir := filepath.Join(dir, "extracted")
	_, err = executeCommand(t, "package", "extract", pkg, "--dir", outDir)
	require.NoError(t, err)
	for _, name := range []string{"image.jpg", "measurements.json", "metadata.json"} {
		assert.FileExists(t, filepath.Join(outDir, name))
	}
	assert.Len(t, testutil.ListFiles(t, outDir), 3)

	_, err = executeCommand(t, "package", "info", doc)
	assert.Error(t, err)
}

func TestOpenPackageAsInput(t *testing.T) {
	dir, doc := writeDocument(t)
	pkg := filepath.Join(dir, "doc.mcm")
	_, err := executeCommand(t, "package", "create", doc, "-o", pkg)
	require.NoError(t, err)

	out := filepath.Join(dir, "from-package.png")
	_, err = executeCommand(t, "filter", pkg, "invert", "-o", out)
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestParseHelpers(t *testing.T) {
	p, err := parsePoint(" 1.5, -2 ")
	require.NoError(t, err)
	assert.Equal(t, geometry.Pt(1.5, -2), p)

	for _, bad := range []string{"", "1", "a,1", "1,b"} {
		_, err := parsePoint(bad)
		assert.Error(t, err, bad)
	}

	q, err := parseQuad("0,0; 10,0;10,10;0,10")
	require.NoError(t, err)
	assert.Equal(t, geometry.Pt(10, 10), q[geometry.BottomRight])
	_, err = parseQuad("0,0;1,1;2,2")
	assert.Error(t, err)

	box, err := parseBox("30,40,10,20")
	require.NoError(t, err)
	assert.Equal(t, geometry.NewBox(10, 20, 30, 40), box)
	_, err = parseBox("1,2,3")
	assert.Error(t, err)

	w, h, err := parseSize("640X480")
	require.NoError(t, err)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
	for _, bad := range []string{"640", "0x10", "ax1"} {
		_, _, err := parseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestCommandsLeaveInputUntouched(t *testing.T) {
	_, doc := writeDocument(t)
	before, err := os.ReadFile(doc)
	require.NoError(t, err)

	_, err = executeCommand(t, "correct", doc, "--ratio", "square", "-o", filepath.Join(t.TempDir(), "o.png"))
	require.NoError(t, err)

	after, err := os.ReadFile(doc)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
