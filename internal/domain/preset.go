package domain

// Attribute names used by inventory preset documents
const (
	AttrName   = "Name"
	AttrCount  = "Count"
	AttrAmount = "Amount"
	AttrValue  = "Value"
)

// ScalarAttrs lists the value-bearing item attributes compared during merge
var ScalarAttrs = []string{AttrCount, AttrAmount, AttrValue}

// Attr is a single XML attribute. Attribute order is preserved from the source document.
type Attr struct {
	Key   string
	Value string
}

// Attrs is an ordered attribute list
type Attrs []Attr

// Get returns the value for key and whether it is present
func (a Attrs) Get(key string) (string, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// Set replaces the value for key, appending it when absent
func (a *Attrs) Set(key, value string) {
	for i := range *a {
		if (*a)[i].Key == key {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, Attr{Key: key, Value: value})
}

// Clone returns an independent copy
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	copy(out, a)
	return out
}

// Item is a PresetItem element
type Item struct {
	Attrs Attrs
}

// Name returns the item's Name attribute
func (i Item) Name() string {
	name, _ := i.Attrs.Get(AttrName)
	return name
}

// Values extracts the scalar attributes
func (i Item) Values() ItemValues {
	var v ItemValues
	v.Count, _ = i.Attrs.Get(AttrCount)
	v.Amount, _ = i.Attrs.Get(AttrAmount)
	v.Value, _ = i.Attrs.Get(AttrValue)
	return v
}

// Clone returns an independent copy
func (i Item) Clone() Item {
	return Item{Attrs: i.Attrs.Clone()}
}

// Preset is an InventoryPreset element: a named group of items
type Preset struct {
	Attrs Attrs
	Items []Item
}

// Name returns the preset's Name attribute
func (p Preset) Name() string {
	name, _ := p.Attrs.Get(AttrName)
	return name
}

// ItemValues holds the scalar attributes of one item. Absent attributes are empty.
type ItemValues struct {
	Count  string `json:"count,omitempty" yaml:"count,omitempty"`
	Amount string `json:"amount,omitempty" yaml:"amount,omitempty"`
	Value  string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Key returns the canonical comparison key "count_amount_value"
func (v ItemValues) Key() string {
	return v.Count + "_" + v.Amount + "_" + v.Value
}
