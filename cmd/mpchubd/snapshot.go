package main

import (
	"bytes"
	"encoding/gob"
	"os"

	"github.com/picopayments/mpchub/hub"
)

// snapshot is the on-disk shape mpchubd persists the hub's channel
// registry in: a bare map of channel key to the hub's own opaque
// Export blob, since hub.Hub deliberately never picks a storage backend
// itself (see hub.Hub's doc comment).
type snapshot map[string][]byte

// loadSnapshot reads path if it exists and imports every channel it
// contains into h. A missing file is not an error: it just means this is
// the daemon's first run.
func loadSnapshot(h *hub.Hub, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	for key, blob := range snap {
		if err := h.Import(key, blob); err != nil {
			return err
		}
	}
	return nil
}

// saveSnapshot exports every channel h knows about and writes them to path
// as a single gob-encoded file.
func saveSnapshot(h *hub.Hub, path string) error {
	blobs, err := h.ExportAll()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshot(blobs)); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0600)
}
