package builder

import "github.com/formweave/formweave/model"

// widthEpsilon absorbs the rounding in the one-third fraction so three
// thirds (0.99) still share a row.
const widthEpsilon = 0.01

// OrganizeFieldsByWidth packs fields into rendering rows in order. A field
// joins the current row unless its width would push the row's total past a
// full row; then it starts a new one. Full-width fields always get a row of
// their own.
func OrganizeFieldsByWidth(fields []model.FormField) [][]model.FormField {
	var rows [][]model.FormField
	var row []model.FormField
	used := 0.0

	for _, f := range fields {
		w := f.Width.Fraction()
		if len(row) > 0 && used+w > 1.0+widthEpsilon {
			rows = append(rows, row)
			row = nil
			used = 0
		}
		row = append(row, f)
		used += w
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}
