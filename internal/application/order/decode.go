package order

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/storefront/backend/internal/domain/shared"
)

// DecodeUpdateOrderCommand strictly decodes an admin update. Unknown fields are
// rejected so callers cannot touch status, totals or items through this path.
func DecodeUpdateOrderCommand(r io.Reader) (UpdateOrderCommand, error) {
	var cmd UpdateOrderCommand
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		if errors.Is(err, io.EOF) {
			return cmd, shared.NewValidationError("request body is empty")
		}
		return cmd, shared.NewValidationError("invalid update: %v", err)
	}
	if dec.More() {
		return cmd, shared.NewValidationError("invalid update: trailing data")
	}
	return cmd, nil
}

