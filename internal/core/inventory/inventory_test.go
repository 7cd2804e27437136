package inventory

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/ipmtool/internal/domain"
)

const sample = "\uFEFF" + `<?xml version="1.0" encoding="utf-8"?>
<database name="barbora">
	<InventoryPresets version="2">
		<InventoryPreset Name="Knight" Flags="3">
			<PresetItem Name="Sword" Count="1" Value="10"/>
			<PresetItem Name="Shield &amp; Buckler" Amount="2"/>
		</InventoryPreset>
		<InventoryPreset Name="Empty"/>
	</InventoryPresets>
</database>`

func TestParse(t *testing.T) {
	presets, err := Parse(sample)
	require.NoError(t, err)
	require.Len(t, presets, 2)

	knight := presets[0]
	assert.Equal(t, "Knight", knight.Name())
	assert.Equal(t, domain.Attrs{{Key: "Name", Value: "Knight"}, {Key: "Flags", Value: "3"}}, knight.Attrs)
	require.Len(t, knight.Items, 2)
	assert.Equal(t, "Sword", knight.Items[0].Name())
	assert.Equal(t, domain.ItemValues{Count: "1", Value: "10"}, knight.Items[0].Values())
	assert.Equal(t, "Shield & Buckler", knight.Items[1].Name())

	assert.Equal(t, "Empty", presets[1].Name())
	assert.Empty(t, presets[1].Items)
}

func TestParse_Latin1(t *testing.T) {
	content := "<?xml version=\"1.0\" encoding=\"iso-8859-1\"?>" +
		"<database><InventoryPresets><InventoryPreset Name=\"Caf\xe9\"/></InventoryPresets></database>"

	presets, err := Parse(content)
	require.NoError(t, err)
	require.Len(t, presets, 1)
	assert.Equal(t, "Café", presets[0].Name())
}

func TestParse_NoContainer(t *testing.T) {
	presets, err := Parse(`<database name="barbora"/>`)
	require.NoError(t, err)
	assert.Empty(t, presets)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed", "<database><InventoryPresets>"},
		{"wrong root", "<table/>"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.content)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidDocument))
		})
	}
}

func TestSerialize(t *testing.T) {
	presets := []domain.Preset{
		{
			Attrs: domain.Attrs{{Key: "Name", Value: "Knight"}},
			Items: []domain.Item{
				{Attrs: domain.Attrs{{Key: "Name", Value: "Sword"}, {Key: "Count", Value: "1"}}},
				{Attrs: domain.Attrs{{Key: "Name", Value: "A<B"}}},
			},
		},
		{Attrs: domain.Attrs{{Key: "Name", Value: "Empty"}}},
	}

	out, err := Serialize(presets, DefaultLayout())
	require.NoError(t, err)

	want := `<database xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" name="barbora" xsi:noNamespaceSchemaLocation="InventoryPreset.xsd">
	<InventoryPresets version="2" Mode="All" Health="1">
		<InventoryPreset Name="Knight">
			<PresetItem Name="Sword" Count="1"/>
			<PresetItem Name="A&lt;B"/>
		</InventoryPreset>
		<InventoryPreset Name="Empty"/>
	</InventoryPresets>
</database>
`
	assert.Equal(t, want, string(out))
	assert.False(t, strings.HasPrefix(string(out), "<?xml"))
}

func TestSerialize_RoundTrip(t *testing.T) {
	presets, err := Parse(sample)
	require.NoError(t, err)

	out, err := Serialize(presets, DefaultLayout())
	require.NoError(t, err)

	again, err := Parse(string(out))
	require.NoError(t, err)
	assert.Equal(t, presets, again)
}

func TestSerialize_Deterministic(t *testing.T) {
	presets, err := Parse(sample)
	require.NoError(t, err)

	a, err := Serialize(presets, DefaultLayout())
	require.NoError(t, err)
	b, err := Serialize(presets, DefaultLayout())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseDocuments(t *testing.T) {
	docs := []domain.ExtractedDocument{
		{ModID: "mod_a", Priority: 2, Entry: "a.xml", Content: sample},
		{ModID: "mod_b", Priority: 1, Entry: "b.xml", Content: "<broken"},
		{ModID: "mod_c", Priority: -1, Entry: "c.xml", Content: `<database/>`},
	}

	parsed, errs := ParseDocuments(docs)
	require.Len(t, parsed, 2)
	assert.Equal(t, "mod_a", parsed[0].ModID)
	assert.Equal(t, 2, parsed[0].Priority)
	assert.Len(t, parsed[0].Presets, 2)
	assert.Equal(t, "mod_c", parsed[1].ModID)

	require.Len(t, errs, 1)
	assert.Equal(t, "mod_b", errs[0].ModID)
	assert.ErrorIs(t, errs[0], domain.ErrInvalidDocument)
}
