package chain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// extrinsicEnvelope is the wire shape sent to the paired node's
// author_submitAndWatchExtrinsic endpoint: the already-validated call, hex-wrapped for transport over
// the same JSON-RPC channel as a SCALE-encoded extrinsic would be, and
// signed with the bridge's configured signer. No SCALE codec library is
// available in this module's dependency surface; the node pairing with
// this client is expected to accept this envelope, verify Signature
// over Pallet/Call/Payload against PublicKey, and perform the actual
// SCALE encode server-side, or this client is paired with a sidecar
// that does.
type extrinsicEnvelope struct {
	Pallet    string          `json:"pallet"`
	Call      string          `json:"call"`
	Payload   json.RawMessage `json:"payload"`
	PublicKey string          `json:"public_key"`
	Signature string          `json:"signature"`
}

// encodeExtrinsic wraps pallet, call and an already-validated JSON
// payload into the hex-encoded, signed envelope
// author_submitAndWatchExtrinsic expects in place of a raw
// SCALE-encoded extrinsic.
func encodeExtrinsic(signer *Signer, pallet, call string, payload []byte) (string, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	signed := fmt.Sprintf("%s::%s:%s", pallet, call, payload)
	env := extrinsicEnvelope{
		Pallet:    pallet,
		Call:      call,
		Payload:   payload,
		PublicKey: signer.PublicKeyHex(),
		Signature: hex.EncodeToString(signer.Sign([]byte(signed))),
	}
	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal extrinsic envelope: %w", err)
	}
	return "0x" + hex.EncodeToString(body), nil
}
