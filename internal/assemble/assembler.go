// Package assemble writes the merged table out as a loadable mod.
package assemble

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/klauspost/compress/zip"

	"github.com/Ning0612/ipmtool/internal/adapter"
	"github.com/Ning0612/ipmtool/internal/core/inventory"
	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/identity"
	"github.com/Ning0612/ipmtool/internal/logger"
)

// Manifest is the descriptor written next to the output archive
type Manifest struct {
	Name          string
	ModID         string
	Description   string
	Author        string
	Version       string
	ModifiesLevel bool
}

// Options holds the output layout, relative to the mods root
type Options struct {
	OutputFolder   string
	DataDir        string
	ArchiveName    string
	DocumentPath   string
	DescriptorFile string
	OrderFile      string
	LogFile        string

	Manifest Manifest
	Layout   inventory.Layout
}

// DefaultOptions returns the layout the game loads
func DefaultOptions() Options {
	return Options{
		OutputFolder:   "zipmtool",
		DataDir:        "Data",
		ArchiveName:    "zipmtool.pak",
		DocumentPath:   "Libs/Tables/item/InventoryPreset__ipmtool.xml",
		DescriptorFile: "mod.manifest",
		OrderFile:      "mod_order.txt",
		LogFile:        "ipmtool.log",
		Manifest: Manifest{
			Name:        "IPM Tool",
			ModID:       "zipmtool",
			Description: "App to merge xml inventorypreset",
			Author:      "ipmtool",
			Version:     "1.0",
		},
		Layout: inventory.DefaultLayout(),
	}
}

// ArchivePath returns the output archive path relative to the root
func (o Options) ArchivePath() string {
	return path.Join(o.OutputFolder, o.DataDir, o.ArchiveName)
}

// DescriptorPath returns the descriptor path relative to the root
func (o Options) DescriptorPath() string {
	return path.Join(o.OutputFolder, o.DescriptorFile)
}

// LogPath returns the run log path relative to the root
func (o Options) LogPath() string {
	return path.Join(o.OutputFolder, o.LogFile)
}

// Output describes what a Write produced
type Output struct {
	// ArchivePath and DescriptorPath are absolute
	ArchivePath    string
	DescriptorPath string

	// Document is the serialized table stored in the archive
	Document []byte

	// OrderUpdated is true when the output id was appended to the order file
	OrderUpdated bool
	// OrderBackup is the absolute backup path, empty when no order file existed
	OrderBackup string
}

// archiveEpoch stamps every archive entry so identical input yields identical bytes
var archiveEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Assembler writes the output mod under a mods root
type Assembler struct {
	fs   adapter.Adapter
	opts Options
	now  func() time.Time
}

// New creates an Assembler writing through fs
func New(fs adapter.Adapter, opts Options) *Assembler {
	return &Assembler{fs: fs, opts: opts, now: time.Now}
}

// Options returns the layout in use
func (a *Assembler) Options() Options {
	return a.opts
}

// Write serializes presets into the output archive, writes the descriptor
// and appends the output id to an existing order file.
func (a *Assembler) Write(ctx context.Context, presets []domain.Preset) (*Output, error) {
	log := logger.Get()

	document, err := inventory.Serialize(presets, a.opts.Layout)
	if err != nil {
		return nil, err
	}

	archive, err := a.buildArchive(document)
	if err != nil {
		return nil, fmt.Errorf("build archive: %w", err)
	}
	if err := a.fs.Write(ctx, a.opts.ArchivePath(), bytes.NewReader(archive)); err != nil {
		return nil, fmt.Errorf("write archive: %w", err)
	}
	log.Info("output archive written", "path", a.opts.ArchivePath(), "bytes", len(archive))

	manifest, err := a.buildManifest()
	if err != nil {
		return nil, fmt.Errorf("build manifest: %w", err)
	}
	if err := a.fs.Write(ctx, a.opts.DescriptorPath(), bytes.NewReader(manifest)); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	log.Info("mod manifest written", "path", a.opts.DescriptorPath())

	out := &Output{
		ArchivePath:    a.abs(a.opts.ArchivePath()),
		DescriptorPath: a.abs(a.opts.DescriptorPath()),
		Document:       document,
	}

	updated, backup, err := a.updateOrder(ctx)
	if err != nil {
		return out, fmt.Errorf("update %s: %w", a.opts.OrderFile, err)
	}
	out.OrderUpdated = updated
	if backup != "" {
		out.OrderBackup = a.abs(backup)
	}
	return out, nil
}

// WriteLog stores the run report under the output folder
func (a *Assembler) WriteLog(ctx context.Context, content string) (string, error) {
	if err := a.fs.Write(ctx, a.opts.LogPath(), strings.NewReader(content)); err != nil {
		return "", fmt.Errorf("write log: %w", err)
	}
	return a.abs(a.opts.LogPath()), nil
}

func (a *Assembler) buildArchive(document []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	hdr := &zip.FileHeader{
		Name:   a.opts.DocumentPath,
		Method: zip.Deflate,
	}
	hdr.Modified = archiveEpoch
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(document); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *Assembler) buildManifest() ([]byte, error) {
	m := a.opts.Manifest

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="us-ascii"`)
	info := doc.CreateElement("kcd_mod").CreateElement("info")
	for _, field := range []struct{ tag, value string }{
		{"name", m.Name},
		{"modid", m.ModID},
		{"description", m.Description},
		{"author", m.Author},
		{"version", m.Version},
		{"created_on", a.now().Format(time.DateOnly)},
		{"modifies_level", fmt.Sprintf("%t", m.ModifiesLevel)},
	} {
		info.CreateElement(field.tag).SetText(field.value)
	}
	doc.IndentTabs()

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// updateOrder appends the output id to the order file when it exists.
// The file is never created and its existing bytes are kept as they are.
func (a *Assembler) updateOrder(ctx context.Context) (bool, string, error) {
	log := logger.Get()
	name := a.opts.OrderFile

	exists, err := a.fs.Exists(ctx, name)
	if err != nil {
		return false, "", err
	}
	if !exists {
		log.Info("no order file found, skipping update", "file", name)
		return false, "", nil
	}

	rc, err := a.fs.Read(ctx, name)
	if err != nil {
		return false, "", err
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return false, "", err
	}

	backup := name + ".bak"
	if err := a.fs.Write(ctx, backup, bytes.NewReader(content)); err != nil {
		// 備份失敗不影響主流程
		log.Warn("failed to back up order file", "file", name, "error", err)
		backup = ""
	}

	id := a.opts.Manifest.ModID
	if identity.PriorityIn(identity.ParseOrder(string(content)), id) != domain.NoPriority {
		log.Info("order file already lists output mod", "file", name, "mod", id)
		return false, backup, nil
	}

	var updated bytes.Buffer
	updated.Write(content)
	if len(content) > 0 && content[len(content)-1] != '\n' {
		updated.WriteByte('\n')
	}
	updated.WriteString(id + "\n")

	if err := a.fs.Write(ctx, name, &updated); err != nil {
		return false, backup, err
	}
	log.Info("order file updated", "file", name, "mod", id)
	return true, backup, nil
}

func (a *Assembler) abs(rel string) string {
	return filepath.Join(a.fs.Root(), filepath.FromSlash(rel))
}
