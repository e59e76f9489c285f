package pipeline

import (
	"encoding/json"

	"github.com/spacewald/core/internal/crdt"
	"github.com/spacewald/core/internal/opmodel"
)

func crdtTombstone(op opmodel.Op, target opmodel.PostID) crdt.Tombstone {
	return crdt.Tombstone{Target: target, Author: op.Author, HLC: op.HLC, Epoch: op.Epoch, OpID: op.OpID}
}

// decodeJSON is used only for the MLS key packages embedded in the
// AddMember, CreateSpace and CreateChannel payloads, which are themselves JSON (mls.KeyPackageData, see
// internal/mls/group.go) nested inside the outer canonical-CBOR Op
// payload -- the MLS engine's own wire format predates the Op envelope's
// CBOR adoption and is kept as-is rather than re-encoded.
func decodeJSON(b []byte, v interface{}) error {
	return json.Unmarshal(b, v)
}
