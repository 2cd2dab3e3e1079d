package builder

import (
	"testing"

	"github.com/formweave/formweave/model"
)

func widths(ws ...model.FieldWidth) []model.FormField {
	fields := make([]model.FormField, len(ws))
	for i, w := range ws {
		fields[i] = model.FormField{ID: string(rune('a' + i)), Width: w}
	}
	return fields
}

func TestOrganizeFieldsByWidth(t *testing.T) {
	tests := []struct {
		name    string
		fields  []model.FormField
		rowLens []int
	}{
		{"empty", nil, nil},
		{"single full", widths(model.WidthFull), []int{1}},
		{"two halves share", widths(model.WidthHalf, model.WidthHalf), []int{2}},
		{"half then full breaks", widths(model.WidthHalf, model.WidthFull), []int{1, 1}},
		{"three thirds share", widths(model.WidthThird, model.WidthThird, model.WidthThird), []int{3}},
		{"four quarters share", widths(model.WidthQuarter, model.WidthQuarter, model.WidthQuarter, model.WidthQuarter), []int{4}},
		{"overflow wraps", widths(model.WidthHalf, model.WidthHalf, model.WidthQuarter), []int{2, 1}},
		{"third half third wraps", widths(model.WidthThird, model.WidthHalf, model.WidthThird), []int{2, 1}},
		{"unknown width counts full", []model.FormField{{Width: "weird"}, {Width: model.WidthHalf}}, []int{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := OrganizeFieldsByWidth(tt.fields)
			if len(rows) != len(tt.rowLens) {
				t.Fatalf("rows = %d, want %d", len(rows), len(tt.rowLens))
			}
			for i, n := range tt.rowLens {
				if len(rows[i]) != n {
					t.Errorf("row %d has %d fields, want %d", i, len(rows[i]), n)
				}
			}
		})
	}
}

func TestOrganizeFieldsByWidth_PreservesOrder(t *testing.T) {
	fields := widths(model.WidthHalf, model.WidthHalf, model.WidthFull, model.WidthQuarter)
	rows := OrganizeFieldsByWidth(fields)
	var flat []model.FormField
	for _, r := range rows {
		flat = append(flat, r...)
	}
	if len(flat) != len(fields) {
		t.Fatalf("flattened %d fields, want %d", len(flat), len(fields))
	}
	for i := range fields {
		if flat[i].ID != fields[i].ID {
			t.Errorf("position %d = %s, want %s", i, flat[i].ID, fields[i].ID)
		}
	}
}
