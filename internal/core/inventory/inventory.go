// Package inventory reads and writes InventoryPreset table documents.
package inventory

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/Ning0612/ipmtool/internal/domain"
)

// Element names of the preset table
const (
	ElemDatabase  = "database"
	ElemContainer = "InventoryPresets"
	ElemPreset    = "InventoryPreset"
	ElemItem      = "PresetItem"
)

// Parse reads the presets of one document, in document order.
// A document whose root is not a database element is rejected; a database
// without a preset container simply has no presets.
func Parse(content string) ([]domain.Preset, error) {
	doc := NewDocument()
	if err := doc.ReadFromString(strings.TrimPrefix(content, "\uFEFF")); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDocument, err)
	}

	db := doc.SelectElement(ElemDatabase)
	if db == nil {
		return nil, fmt.Errorf("%w: missing %s element", domain.ErrInvalidDocument, ElemDatabase)
	}
	container := db.SelectElement(ElemContainer)
	if container == nil {
		return nil, nil
	}

	elems := container.SelectElements(ElemPreset)
	presets := make([]domain.Preset, 0, len(elems))
	for _, el := range elems {
		preset := domain.Preset{Attrs: attrsOf(el)}
		for _, itemEl := range el.SelectElements(ElemItem) {
			preset.Items = append(preset.Items, domain.Item{Attrs: attrsOf(itemEl)})
		}
		presets = append(presets, preset)
	}
	return presets, nil
}

func attrsOf(el *etree.Element) domain.Attrs {
	if len(el.Attr) == 0 {
		return nil
	}
	attrs := make(domain.Attrs, 0, len(el.Attr))
	for _, a := range el.Attr {
		attrs = append(attrs, domain.Attr{Key: a.FullKey(), Value: a.Value})
	}
	return attrs
}

// Layout holds the fixed attributes of the wrapper elements
type Layout struct {
	DatabaseAttrs  domain.Attrs
	ContainerAttrs domain.Attrs
}

// DefaultLayout returns the wrapper the game expects for merged tables
func DefaultLayout() Layout {
	return Layout{
		DatabaseAttrs: domain.Attrs{
			{Key: "xmlns:xsi", Value: "http://www.w3.org/2001/XMLSchema-instance"},
			{Key: "name", Value: "barbora"},
			{Key: "xsi:noNamespaceSchemaLocation", Value: "InventoryPreset.xsd"},
		},
		ContainerAttrs: domain.Attrs{
			{Key: "version", Value: "2"},
			{Key: "Mode", Value: "All"},
			{Key: "Health", Value: "1"},
		},
	}
}

// Serialize renders presets as a tab-indented table document.
// Elements without children are written self-closing.
func Serialize(presets []domain.Preset, layout Layout) ([]byte, error) {
	doc := etree.NewDocument()
	doc.WriteSettings.CanonicalEndTags = false

	db := doc.CreateElement(ElemDatabase)
	setAttrs(db, layout.DatabaseAttrs)
	container := db.CreateElement(ElemContainer)
	setAttrs(container, layout.ContainerAttrs)

	for _, p := range presets {
		pe := container.CreateElement(ElemPreset)
		setAttrs(pe, p.Attrs)
		for _, it := range p.Items {
			setAttrs(pe.CreateElement(ElemItem), it.Attrs)
		}
	}

	doc.IndentTabs()

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize presets: %w", err)
	}
	return buf.Bytes(), nil
}

func setAttrs(el *etree.Element, attrs domain.Attrs) {
	for _, a := range attrs {
		el.CreateAttr(a.Key, a.Value)
	}
}

// ParseError is a document that could not be decoded
type ParseError struct {
	ModID string
	Entry string
	Err   error
}

func (e *ParseError) Error() string {
	return e.ModID + " - " + e.Entry + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseDocuments decodes every document, keeping input order.
// Undecodable documents are reported and left out of the result.
func ParseDocuments(docs []domain.ExtractedDocument) ([]domain.ParsedDocument, []*ParseError) {
	parsed := make([]domain.ParsedDocument, 0, len(docs))
	var errs []*ParseError
	for _, d := range docs {
		presets, err := Parse(d.Content)
		if err != nil {
			errs = append(errs, &ParseError{ModID: d.ModID, Entry: d.Entry, Err: err})
			continue
		}
		parsed = append(parsed, domain.ParsedDocument{
			ModID:    d.ModID,
			Priority: d.Priority,
			Entry:    d.Entry,
			Presets:  presets,
		})
	}
	return parsed, errs
}
