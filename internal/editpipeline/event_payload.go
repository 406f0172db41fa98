package editpipeline

import (
	"encoding/json"

	"github.com/laces/genesis/internal/domain"
)

// operationEventPayload re-encodes an applied operation as a JSONValue so
// it can ride on a connection.Event without the Connection Manager needing
// to know anything about domain.EditOperation.
func operationEventPayload(op domain.EditOperation) (domain.JSONValue, error) {
	raw, err := json.Marshal(op)
	if err != nil {
		return domain.JSONValue{}, err
	}
	var value domain.JSONValue
	if err := json.Unmarshal(raw, &value); err != nil {
		return domain.JSONValue{}, err
	}
	return value, nil
}
