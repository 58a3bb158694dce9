// Package httpjson writes and reads the JSON bodies of the HTTP API.
package httpjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// maxBody bounds request bodies; generation requests carry reference images
const maxBody = 64 << 20

// Write encodes v with the given status
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes err as a models.ErrorResponse with the status of its kind
func Error(w http.ResponseWriter, err error) {
	Write(w, apperrors.HTTPStatus(err), models.ErrorResponse{
		Success: false,
		Code:    apperrors.Code(err),
		Message: apperrors.Message(err),
	})
}

// Decode reads a JSON body into v. Malformed bodies are validation errors.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.Validation("decode", "request body is empty")
		}
		return apperrors.New(apperrors.KindValidation, "decode", fmt.Sprintf("malformed request body: %v", err))
	}
	return nil
}
