package launcher

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Payload is what a relaunching parent sends to its re-executed child.
type Payload struct {
	LaunchID string   `cbor:"1,keyasint"`
	Paths    []string `cbor:"2,keyasint"`
	Args     []string `cbor:"3,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core Deterministic Encoding: the same payload always yields the same
	// bytes.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("launcher: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 20,
	}.DecMode()
	if err != nil {
		panic("launcher: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshalPayload(p *Payload) ([]byte, error) {
	return encMode.Marshal(p)
}

func decodePayload(r io.Reader) (*Payload, error) {
	var p Payload
	if err := decMode.NewDecoder(r).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}
