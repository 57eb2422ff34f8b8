package repositories

import (
	"github.com/fxamacker/cbor/v2"
)

// Records are stored as CBOR with Core Deterministic Encoding (RFC 8949 §4.2):
// same logical record, same bytes. The decoder ignores unknown fields so old
// records survive schema additions.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("repositories: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("repositories: CBOR decoder initialization failed: " + err.Error())
	}
}
