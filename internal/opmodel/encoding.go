package opmodel

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// canonicalEncMode is a deterministic CBOR encoder: sorted map keys, fixed
// integer widths, no indefinite-length items (spec.md §4.2: "Canonical
// encoding must be deterministic (sorted map keys, fixed integer widths)").
var canonicalEncMode = mustCanonicalMode()

func mustCanonicalMode() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("opmodel: build canonical cbor mode: %v", err))
	}
	return mode
}

var decMode = mustDecMode()

func mustDecMode() cbor.DecMode {
	mode, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("opmodel: build cbor decode mode: %v", err))
	}
	return mode
}

// CanonicalBytes renders an Op (or any op-shaped value) to its unique
// canonical CBOR encoding.
func CanonicalBytes(o Op) ([]byte, error) {
	return canonicalEncMode.Marshal(o)
}

// Encode serializes a complete, signed Op to its canonical wire bytes.
func Encode(o Op) ([]byte, error) {
	return CanonicalBytes(o)
}

// Decode parses canonical wire bytes back into an Op. Round-trip with
// Encode is exact: decode(encode(op)) == op (spec.md §8 property 10).
func Decode(b []byte) (Op, error) {
	var o Op
	if err := decMode.Unmarshal(b, &o); err != nil {
		return Op{}, fmt.Errorf("opmodel: decode op: %w", err)
	}
	return o, nil
}
