package transport

import (
	"net/http"

	"github.com/formweave/formweave/internal/template"
)

// handleFieldTemplates serves the static field-type catalog the builder
// palette is rendered from.
func handleFieldTemplates() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"categories": template.Categories(),
			"templates":  template.All(),
		})
	}
}
