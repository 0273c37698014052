package projection

import (
	"encoding/json"
	"reflect"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

// Diff compares two reconciliations field by field on their JSON form. Nested values are
// compared whole, and fields equal in both are omitted.
func Diff(from, to models.Reconciliation) (map[string]models.FieldChange, error) {
	a, err := fields(from)
	if err != nil {
		return nil, err
	}
	b, err := fields(to)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]models.FieldChange)
	for k, av := range a {
		if bv, ok := b[k]; !ok || !reflect.DeepEqual(av, bv) {
			changes[k] = models.FieldChange{From: av, To: b[k]}
		}
	}
	for k, bv := range b {
		if _, ok := a[k]; !ok {
			changes[k] = models.FieldChange{To: bv}
		}
	}
	return changes, nil
}

func fields(r models.Reconciliation) (map[string]interface{}, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
