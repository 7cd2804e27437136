package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

// PresetEntry is the internal path used for inventory documents in test archives
const PresetEntry = "Libs/Tables/item/InventoryPreset__test.xml"

// TempDir creates a temporary directory for testing
// It returns the directory path and a cleanup function
func TempDir(t *testing.T) (string, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "ipmtool-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	cleanup := func() {
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

// CreateTestFile creates a test file with the given content, creating parent directories
func CreateTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	return path
}

// CreatePak writes a zip archive at dir/name with the given entries (internal path -> content)
// Entries are written in sorted order so archives are reproducible
func CreatePak(t *testing.T, dir, name string, entries map[string]string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create pak: %v", err)
	}
	defer file.Close()

	zw := zip.NewWriter(file)
	for _, entry := range sortedKeys(entries) {
		w, err := zw.Create(entry)
		if err != nil {
			t.Fatalf("failed to add entry %s: %v", entry, err)
		}
		if _, err := w.Write([]byte(entries[entry])); err != nil {
			t.Fatalf("failed to write entry %s: %v", entry, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finalize pak: %v", err)
	}

	return path
}

// CreateMod lays out <root>/<folder>/Data/<folder>.pak holding one inventory document
func CreateMod(t *testing.T, root, folder, document string) string {
	t.Helper()
	return CreatePak(t, filepath.Join(root, folder, "Data"), folder+".pak", map[string]string{
		PresetEntry: document,
	})
}

// CreateManifest writes <root>/<folder>/mod.manifest with the given modid and name
func CreateManifest(t *testing.T, root, folder, modID, name string) string {
	t.Helper()

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="us-ascii"?>` + "\n<kcd_mod>\n\t<info>\n")
	if name != "" {
		fmt.Fprintf(&b, "\t\t<name>%s</name>\n", name)
	}
	if modID != "" {
		fmt.Fprintf(&b, "\t\t<modid>%s</modid>\n", modID)
	}
	b.WriteString("\t</info>\n</kcd_mod>\n")

	return CreateTestFile(t, filepath.Join(root, folder), "mod.manifest", []byte(b.String()))
}

// CreateOrderFile writes <root>/mod_order.txt with one id per line
func CreateOrderFile(t *testing.T, root string, ids ...string) string {
	t.Helper()
	return CreateTestFile(t, root, "mod_order.txt", []byte(strings.Join(ids, "\n")+"\n"))
}

// Item describes one PresetItem for InventoryXML
type Item struct {
	Preset string
	Name   string
	Attrs  string // raw extra attributes, e.g. `Count="1"`
}

// InventoryXML builds an inventory preset document. Items are grouped by preset in the given order.
func InventoryXML(items ...Item) string {
	var b strings.Builder
	b.WriteString(`<database name="barbora">` + "\n\t<InventoryPresets version=\"2\">\n")

	var order []string
	grouped := make(map[string][]Item)
	for _, it := range items {
		if _, ok := grouped[it.Preset]; !ok {
			order = append(order, it.Preset)
		}
		grouped[it.Preset] = append(grouped[it.Preset], it)
	}

	for _, preset := range order {
		fmt.Fprintf(&b, "\t\t<InventoryPreset Name=%q>\n", preset)
		for _, it := range grouped[preset] {
			if it.Name == "" {
				continue
			}
			if it.Attrs != "" {
				fmt.Fprintf(&b, "\t\t\t<PresetItem Name=%q %s/>\n", it.Name, it.Attrs)
			} else {
				fmt.Fprintf(&b, "\t\t\t<PresetItem Name=%q/>\n", it.Name)
			}
		}
		b.WriteString("\t\t</InventoryPreset>\n")
	}

	b.WriteString("\t</InventoryPresets>\n</database>\n")
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
