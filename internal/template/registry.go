// Package template is the static catalog of field templates: per-type UI
// metadata and the default properties applied when the builder constructs a
// new field of that type.
package template

import "github.com/formweave/formweave/model"

// Category groups templates in the builder palette.
type Category string

const (
	CategoryInput   Category = "input"
	CategorySelect  Category = "select"
	CategoryDate    Category = "date"
	CategoryFile    Category = "file"
	CategoryControl Category = "control"
)

// Defaults are the properties stamped onto a newly created field when the
// caller did not provide them.
type Defaults struct {
	Placeholder string
	Options     []model.FieldOption
	Validation  *model.ValidationRules
	Attributes  *model.FieldAttributes
}

// Template describes one field type in the catalog.
type Template struct {
	Type       model.FieldType `json:"type"`
	Label      string          `json:"label"`
	Icon       string          `json:"icon"`
	Category   Category        `json:"category"`
	HasOptions bool            `json:"hasOptions,omitempty"`
	Defaults   Defaults        `json:"-"`
}

func floatPtr(v float64) *float64 { return &v }

// catalog is ordered the way the palette presents it: inputs, selections,
// dates, files, controls.
var catalog = []Template{
	{
		Type: model.FieldText, Label: "Text", Icon: "i-heroicons-pencil-square",
		Category: CategoryInput,
		Defaults: Defaults{Placeholder: "Enter your text..."},
	},
	{
		Type: model.FieldEmail, Label: "Email", Icon: "i-heroicons-at-symbol",
		Category: CategoryInput,
		Defaults: Defaults{
			Placeholder: "example@domain.com",
			Validation:  &model.ValidationRules{Email: true},
		},
	},
	{
		Type: model.FieldPassword, Label: "Password", Icon: "i-heroicons-lock-closed",
		Category: CategoryInput,
		Defaults: Defaults{Placeholder: "••••••••"},
	},
	{
		Type: model.FieldNumber, Label: "Number", Icon: "i-heroicons-hashtag",
		Category: CategoryInput,
		Defaults: Defaults{Placeholder: "0"},
	},
	{
		Type: model.FieldTel, Label: "Phone", Icon: "i-heroicons-phone",
		Category: CategoryInput,
		Defaults: Defaults{Placeholder: "+33 1 23 45 67 89"},
	},
	{
		Type: model.FieldURL, Label: "URL", Icon: "i-heroicons-link",
		Category: CategoryInput,
		Defaults: Defaults{Placeholder: "https://"},
	},
	{
		Type: model.FieldTextarea, Label: "Text area", Icon: "i-heroicons-document-text",
		Category: CategoryInput,
		Defaults: Defaults{Placeholder: "Your message..."},
	},
	{
		Type: model.FieldSelect, Label: "Dropdown", Icon: "i-heroicons-chevron-down",
		Category: CategorySelect, HasOptions: true,
		Defaults: Defaults{
			Placeholder: "Pick an option",
			Options: []model.FieldOption{
				{Label: "Option 1", Value: "option1"},
				{Label: "Option 2", Value: "option2"},
			},
		},
	},
	{
		Type: model.FieldMultiselect, Label: "Multi select", Icon: "i-heroicons-list-bullet",
		Category: CategorySelect, HasOptions: true,
		Defaults: Defaults{
			Options: []model.FieldOption{
				{Label: "Option 1", Value: "option1"},
				{Label: "Option 2", Value: "option2"},
			},
		},
	},
	{
		Type: model.FieldRadio, Label: "Radio buttons", Icon: "i-heroicons-radio",
		Category: CategorySelect, HasOptions: true,
		Defaults: Defaults{
			Options: []model.FieldOption{
				{Label: "Choice 1", Value: "choice1"},
				{Label: "Choice 2", Value: "choice2"},
			},
		},
	},
	{
		Type: model.FieldCheckbox, Label: "Checkboxes", Icon: "i-heroicons-check-circle",
		Category: CategorySelect, HasOptions: true,
		Defaults: Defaults{
			Options: []model.FieldOption{
				{Label: "Option 1", Value: "opt1"},
				{Label: "Option 2", Value: "opt2"},
			},
		},
	},
	{
		Type: model.FieldDate, Label: "Date", Icon: "i-heroicons-calendar-days",
		Category: CategoryDate,
	},
	{
		Type: model.FieldDatetime, Label: "Date and time", Icon: "i-heroicons-clock",
		Category: CategoryDate,
	},
	{
		Type: model.FieldFile, Label: "File", Icon: "i-heroicons-document-arrow-up",
		Category: CategoryFile,
		Defaults: Defaults{Attributes: &model.FieldAttributes{Accept: "*"}},
	},
	{
		Type: model.FieldSwitch, Label: "Switch", Icon: "i-heroicons-power",
		Category: CategoryControl,
	},
	{
		Type: model.FieldRange, Label: "Slider", Icon: "i-heroicons-adjustments-horizontal",
		Category: CategoryControl,
		Defaults: Defaults{Attributes: &model.FieldAttributes{
			Min: floatPtr(0), Max: floatPtr(100),
		}},
	},
}

// All returns the full catalog in palette order.
func All() []Template {
	out := make([]Template, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the template for a field type.
func Lookup(t model.FieldType) (Template, bool) {
	for _, tpl := range catalog {
		if tpl.Type == t {
			return tpl, true
		}
	}
	return Template{}, false
}

// ByCategory returns every template in the given category, in catalog order.
func ByCategory(c Category) []Template {
	var out []Template
	for _, tpl := range catalog {
		if tpl.Category == c {
			out = append(out, tpl)
		}
	}
	return out
}

// CategoryInfo labels one palette group.
type CategoryInfo struct {
	ID    Category `json:"id"`
	Label string   `json:"label"`
	Icon  string   `json:"icon"`
}

// Categories returns the palette groups in display order.
func Categories() []CategoryInfo {
	return []CategoryInfo{
		{ID: CategoryInput, Label: "Input", Icon: "i-heroicons-pencil-square"},
		{ID: CategorySelect, Label: "Selection", Icon: "i-heroicons-check-circle"},
		{ID: CategoryDate, Label: "Date", Icon: "i-heroicons-calendar-days"},
		{ID: CategoryFile, Label: "File", Icon: "i-heroicons-document-arrow-up"},
		{ID: CategoryControl, Label: "Controls", Icon: "i-heroicons-adjustments-horizontal"},
	}
}

// Apply copies the template defaults onto a field for any property the
// caller left unset.
func Apply(f *model.FormField) {
	tpl, ok := Lookup(f.Type)
	if !ok {
		return
	}
	d := tpl.Defaults
	if f.Placeholder == "" {
		f.Placeholder = d.Placeholder
	}
	if f.Validation == nil && d.Validation != nil {
		v := *d.Validation
		f.Validation = &v
	}
	if len(f.Options) == 0 && len(d.Options) > 0 {
		f.Options = append([]model.FieldOption(nil), d.Options...)
	}
	if f.Attributes == nil && d.Attributes != nil {
		a := *d.Attributes
		f.Attributes = &a
	}
}
