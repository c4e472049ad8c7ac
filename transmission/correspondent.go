package transmission

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
)

// AnonymousName is given to correspondents created for unknown senders.
const AnonymousName = "anonymous"

// Correspondent is a peer reachable over one transport kind.
type Correspondent struct {
	ID      uuid.UUID            `cbor:"1,keyasint" yaml:"id"`
	Name    string               `cbor:"2,keyasint" yaml:"name"`
	Address string               `cbor:"3,keyasint" yaml:"address"`
	Kind    format.TransportKind `cbor:"4,keyasint" yaml:"kind"`
}

// NewCorrespondent creates a correspondent with a fresh id.
func NewCorrespondent(name, address string, kind format.TransportKind) (Correspondent, error) {
	if address == "" {
		return Correspondent{}, fmt.Errorf("%w: correspondent %q has no address", errs.ErrInvalidValue, name)
	}

	return Correspondent{ID: uuid.New(), Name: name, Address: address, Kind: kind}, nil
}

func (c Correspondent) String() string {
	return fmt.Sprintf("%s (%s %s)", c.Name, c.Kind, c.Address)
}
