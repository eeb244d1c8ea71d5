package loader

import (
	"github.com/bytedance/sonic"
)

// parseRecords decodes a JSON array of objects, each with a string "text" field.
// Every other field becomes metadata of that record.
func parseRecords(path string, data []byte) ([]Record, error) {
	var raw []any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, &MalformedRecordError{Path: path, Index: -1, Reason: "expected a JSON array of objects: " + err.Error()}
	}

	records := make([]Record, 0, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, &MalformedRecordError{Path: path, Index: i, Reason: "entry is not an object"}
		}
		text, ok := obj["text"].(string)
		if !ok {
			return nil, &MalformedRecordError{Path: path, Index: i, Reason: `missing string field "text"`}
		}

		meta := make(map[string]any, len(obj)-1)
		for k, v := range obj {
			if k != "text" {
				meta[k] = v
			}
		}
		records = append(records, Record{Text: text, Metadata: meta})
	}
	return records, nil
}
