package disaster

import (
	"encoding/json"
	"fmt"
)

// Record is the persisted form of a disaster: its kind plus the variant's own JSON.
type Record struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Encode serialises a disaster, variant state included.
func Encode(d Disaster) (Record, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s: %w", d.Meta().Kind, err)
	}
	return Record{Kind: d.Meta().Kind, Data: data}, nil
}

// Decode rebuilds a disaster from its record without re-initializing it.
func Decode(rec Record) (Disaster, error) {
	d, err := New(rec.Kind, 0)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rec.Data, d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", rec.Kind, err)
	}
	if d.Meta().Kind != rec.Kind {
		return nil, fmt.Errorf("decode: record kind %s holds a %s", rec.Kind, d.Meta().Kind)
	}
	return d, nil
}
