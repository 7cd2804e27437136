package assemble

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/ipmtool/internal/adapter/local"
	"github.com/Ning0612/ipmtool/internal/core/inventory"
	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/testutil"
)

func newAssembler(t *testing.T, root string) *Assembler {
	t.Helper()
	fs, err := local.New(root)
	require.NoError(t, err)
	a := New(fs, DefaultOptions())
	a.now = func() time.Time { return time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC) }
	return a
}

func samplePresets() []domain.Preset {
	return []domain.Preset{{
		Attrs: domain.Attrs{{Key: "Name", Value: "Default"}},
		Items: []domain.Item{{Attrs: domain.Attrs{{Key: "Name", Value: "Sword"}, {Key: "Count", Value: "1"}}}},
	}}
}

func readArchiveEntry(t *testing.T, archive, entry string) string {
	t.Helper()
	r, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.File, 1)
	require.Equal(t, entry, r.File[0].Name)
	rc, err := r.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestWrite_ArchiveAndManifest(t *testing.T) {
	root := t.TempDir()
	a := newAssembler(t, root)

	out, err := a.Write(context.Background(), samplePresets())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "zipmtool", "Data", "zipmtool.pak"), out.ArchivePath)
	doc := readArchiveEntry(t, out.ArchivePath, "Libs/Tables/item/InventoryPreset__ipmtool.xml")
	assert.Equal(t, string(out.Document), doc)
	assert.Contains(t, doc, `<PresetItem Name="Sword" Count="1"/>`)

	presets, err := inventory.Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, samplePresets(), presets)

	manifest, err := os.ReadFile(out.DescriptorPath)
	require.NoError(t, err)
	want := `<?xml version="1.0" encoding="us-ascii"?>
<kcd_mod>
	<info>
		<name>IPM Tool</name>
		<modid>zipmtool</modid>
		<description>App to merge xml inventorypreset</description>
		<author>ipmtool</author>
		<version>1.0</version>
		<created_on>2025-03-09</created_on>
		<modifies_level>false</modifies_level>
	</info>
</kcd_mod>
`
	assert.Equal(t, want, string(manifest))
}

func TestWrite_NeverCreatesOrderFile(t *testing.T) {
	root := t.TempDir()

	out, err := newAssembler(t, root).Write(context.Background(), samplePresets())
	require.NoError(t, err)

	assert.False(t, out.OrderUpdated)
	assert.Empty(t, out.OrderBackup)
	assert.NoFileExists(t, filepath.Join(root, "mod_order.txt"))
	assert.NoFileExists(t, filepath.Join(root, "mod_order.txt.bak"))
}

func TestWrite_AppendsToOrderFile(t *testing.T) {
	tests := []struct {
		name     string
		original string
	}{
		{"trailing newline", "mod_a\nmod_b\n"},
		{"no trailing newline", "mod_a\r\nmod_b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			orderPath := testutil.CreateTestFile(t, root, "mod_order.txt", []byte(tt.original))

			out, err := newAssembler(t, root).Write(context.Background(), samplePresets())
			require.NoError(t, err)
			assert.True(t, out.OrderUpdated)

			data, err := os.ReadFile(orderPath)
			require.NoError(t, err)
			content := string(data)
			assert.True(t, strings.HasPrefix(content, tt.original), "prior bytes must be kept")

			before := strings.Fields(tt.original)
			after := strings.Fields(content)
			assert.Equal(t, append(before, "zipmtool"), after)

			backup, err := os.ReadFile(out.OrderBackup)
			require.NoError(t, err)
			assert.Equal(t, tt.original, string(backup))
		})
	}
}

func TestWrite_OrderFileAlreadyListsOutput(t *testing.T) {
	root := t.TempDir()
	orderPath := testutil.CreateOrderFile(t, root, "zipmtool", "mod_a")

	out, err := newAssembler(t, root).Write(context.Background(), samplePresets())
	require.NoError(t, err)
	assert.False(t, out.OrderUpdated)

	data, err := os.ReadFile(orderPath)
	require.NoError(t, err)
	assert.Equal(t, "zipmtool\nmod_a\n", string(data))
	assert.FileExists(t, filepath.Join(root, "mod_order.txt.bak"))
}

func TestWrite_Idempotent(t *testing.T) {
	root := t.TempDir()
	a := newAssembler(t, root)

	first, err := a.Write(context.Background(), samplePresets())
	require.NoError(t, err)
	firstArchive, err := os.ReadFile(first.ArchivePath)
	require.NoError(t, err)

	// a later clock must not leak into the archive
	a.now = func() time.Time { return time.Date(2026, 7, 1, 8, 30, 0, 0, time.UTC) }
	second, err := a.Write(context.Background(), samplePresets())
	require.NoError(t, err)
	secondArchive, err := os.ReadFile(second.ArchivePath)
	require.NoError(t, err)

	assert.Equal(t, first.Document, second.Document)
	assert.Equal(t, firstArchive, secondArchive, "archive bytes differ between runs")
}

func TestWriteLog(t *testing.T) {
	root := t.TempDir()

	p, err := newAssembler(t, root).WriteLog(context.Background(), "IPM TOOL LOG\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "zipmtool", "ipmtool.log"), p)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "IPM TOOL LOG\n", string(data))
}
