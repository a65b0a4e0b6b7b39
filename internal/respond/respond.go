// Package respond writes the JSON bodies of the catalog API.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/vyrodovalexey/inventory-catalog/internal/model"
)

// MsgInternalError is the error text of every 500 response.
const MsgInternalError = "Something went wrong"

// JSON writes data as a JSON body with the given status code.
// The status is already sent when encoding fails.
func JSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// Error writes a model.ErrorResponse. Details are omitted when empty.
func Error(w http.ResponseWriter, status int, message string, details []string) error {
	return JSON(w, status, model.ErrorResponse{
		Error:   message,
		Details: details,
	})
}
