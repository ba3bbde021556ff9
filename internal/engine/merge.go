package engine

import (
	"encoding/json"
	"fmt"
)

// mergeDocuments performs a shallow field-level merge of two JSON objects.
// Remote values win on key conflict; keys present on only one side are
// kept. Nil or empty input on either side means "no document" and the
// other side passes through unchanged. The merge is idempotent: merging
// an already-merged document with the same remote is a no-op.
//
// There is no deep merge and no timestamp comparison. A local edit to a
// field the remote also changed is discarded in favor of the remote
// value. That is the accepted conflict policy for this data.
func mergeDocuments(local, remote []byte) ([]byte, error) {
	if len(remote) == 0 {
		if len(local) == 0 {
			return []byte(`{}`), nil
		}
		return local, nil
	}
	if len(local) == 0 {
		return remote, nil
	}

	var localFields map[string]json.RawMessage
	if err := json.Unmarshal(local, &localFields); err != nil {
		return nil, fmt.Errorf("engine: parsing local document: %w", err)
	}

	var remoteFields map[string]json.RawMessage
	if err := json.Unmarshal(remote, &remoteFields); err != nil {
		return nil, fmt.Errorf("engine: parsing remote document: %w", err)
	}

	merged := make(map[string]json.RawMessage, len(localFields)+len(remoteFields))
	for k, v := range localFields {
		merged[k] = v
	}
	for k, v := range remoteFields {
		merged[k] = v
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("engine: encoding merged document: %w", err)
	}
	return out, nil
}
