package pg

import (
	"encoding/json"
	"fmt"

	"github.com/riftlab/rift/internal/model"
)

func jsonChanges(changes []model.FileChange) []byte {
	data, err := json.Marshal(changes)
	if err != nil {
		// Changes are always built in-process from well-formed values;
		// a marshal failure here indicates a programming error.
		panic(fmt.Sprintf("pg: marshaling changes: %v", err))
	}
	return data
}

func unmarshalChanges(data []byte) ([]model.FileChange, error) {
	var changes []model.FileChange
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &changes); err != nil {
		return nil, fmt.Errorf("pg: unmarshaling changes: %w", err)
	}
	return changes, nil
}
