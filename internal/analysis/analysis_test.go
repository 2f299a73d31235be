package analysis

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func elfHeader() []byte {
	b := make([]byte, 64)
	copy(b, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1})
	return b
}

func pngHeader() []byte {
	b := make([]byte, 64)
	copy(b, []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a})
	return b
}

func TestInspectReader(t *testing.T) {
	ti := NewTypeInspector()

	tests := []struct {
		name       string
		data       []byte
		masquerade bool
		risk       string
		realExt    string
	}{
		{"photo.png", pngHeader(), false, RiskSafe, "png"},
		{"photo.JPG", pngHeader(), true, RiskMedium, "png"},
		{"report.pdf", elfHeader(), true, RiskHigh, "elf"},
		{"notes.txt", []byte("just some text\n"), false, RiskSafe, "unknown"},
		{"empty.doc", nil, false, RiskSafe, ""},
		{"Makefile", elfHeader(), false, RiskSafe, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ti.InspectReader(tt.name, bytes.NewReader(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.masquerade, res.IsMasquerade)
			assert.Equal(t, tt.risk, res.RiskLevel)
			assert.Equal(t, tt.realExt, res.RealExt)
		})
	}
}

func TestInspectAlias(t *testing.T) {
	ti := NewTypeInspector()
	ti.Allow("png", "icon")

	res, err := ti.InspectReader("app.icon", bytes.NewReader(pngHeader()))
	require.NoError(t, err)
	assert.False(t, res.IsMasquerade)
	assert.Contains(t, res.Message, "Allowed alias")
}

func TestInspectPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoice.pdf")
	require.NoError(t, os.WriteFile(path, elfHeader(), 0o644))

	res, err := NewTypeInspector().Inspect(path)
	require.NoError(t, err)
	assert.True(t, res.IsMasquerade)
	assert.Equal(t, RiskHigh, res.RiskLevel)

	_, err = NewTypeInspector().Inspect(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestCheckBadUSB(t *testing.T) {
	mkdev := func(classes ...string) string {
		root := t.TempDir()
		for i, c := range classes {
			dir := filepath.Join(root, "1-1:1."+string(rune('0'+i)))
			require.NoError(t, os.MkdirAll(dir, 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "bInterfaceClass"), []byte(c+"\n"), 0o644))
		}
		return root
	}

	bad, kind := CheckBadUSB(mkdev("08", "03"))
	assert.True(t, bad)
	assert.Equal(t, DeviceBadUSB, kind)

	bad, kind = CheckBadUSB(mkdev("08"))
	assert.False(t, bad)
	assert.Equal(t, DeviceUDisk, kind)

	_, kind = CheckBadUSB(mkdev("03"))
	assert.Equal(t, DeviceOther, kind)

	_, kind = CheckBadUSB(filepath.Join(t.TempDir(), "gone"))
	assert.Equal(t, DeviceUnknown, kind)
}
