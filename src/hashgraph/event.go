package hashgraph

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mosaicnetworks/dagsync/src/common"
	"github.com/mosaicnetworks/dagsync/src/crypto"
	"github.com/ugorji/go/codec"
)

/*******************************************************************************
Hash
*******************************************************************************/

// Hash is the SHA256 identifier of an Event.
type Hash [32]byte

// ZeroHash is the hash of no event. It is used for missing parents.
var ZeroHash Hash

// IsZero reports whether h is the ZeroHash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Hex returns the 0X-prefixed hex form of the hash.
func (h Hash) Hex() string {
	return common.EncodeToString(h[:])
}

// String returns an abbreviated hex form for logs.
func (h Hash) String() string {
	return fmt.Sprintf("%X", h[:6])
}

/*******************************************************************************
EventBody
*******************************************************************************/

// EventBody is the part of an Event that is hashed and sent over the wire.
type EventBody struct {
	Creator      uint32   //ID of the creator
	SelfParent   Hash     //ZeroHash if none
	OtherParents []Hash   //may be empty
	Generation   int64    //1 + max parent generation
	BirthRound   int64    //round the creator assigned at creation
	Timestamp    int64    //creation time in unix nanoseconds
	Transactions [][]byte //the payload
}

// Marshal returns the canonical JSON encoding of the body.
func (b *EventBody) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(buf, jh)

	nb := b.normalized()
	if err := enc.Encode(&nb); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal decodes the canonical JSON encoding of a body.
func (b *EventBody) Unmarshal(data []byte) error {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoderBytes(data, jh)

	return dec.Decode(b)
}

// normalized returns a copy in which empty slices are nil, so that a body
// hashes the same before and after a trip through any wire codec.
func (b EventBody) normalized() EventBody {
	if len(b.OtherParents) == 0 {
		b.OtherParents = nil
	}
	if len(b.Transactions) == 0 {
		b.Transactions = nil
		return b
	}
	txs := make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		if len(tx) > 0 {
			txs[i] = tx
		}
	}
	b.Transactions = txs
	return b
}

/*******************************************************************************
Event
*******************************************************************************/

// Event is an immutable node of the DAG. Only the Body travels on the wire;
// the receive time is local to each node.
type Event struct {
	Body EventBody

	timeReceived time.Time

	hashOnce sync.Once
	hash     Hash
}

// NewEvent creates an event on top of the given parents. The generation is
// 1 + the maximum generation of the parents, or FirstGeneration for a parentless
// event. The birth round is raised to the maximum birth round of the parents
// if it is lower, so that the birth round never decreases along a path.
func NewEvent(creator uint32,
	selfParent *Event,
	otherParents []*Event,
	birthRound int64,
	transactions [][]byte,
	timestamp time.Time) *Event {

	body := EventBody{
		Creator:      creator,
		Generation:   FirstGeneration,
		BirthRound:   birthRound,
		Timestamp:    timestamp.UnixNano(),
		Transactions: transactions,
	}

	parents := make([]*Event, 0, len(otherParents)+1)
	if selfParent != nil {
		body.SelfParent = selfParent.Hash()
		parents = append(parents, selfParent)
	}
	for _, op := range otherParents {
		if op == nil {
			continue
		}
		body.OtherParents = append(body.OtherParents, op.Hash())
		parents = append(parents, op)
	}

	for i, p := range parents {
		if i == 0 || p.Body.Generation+1 > body.Generation {
			body.Generation = p.Body.Generation + 1
		}
		if p.Body.BirthRound > body.BirthRound {
			body.BirthRound = p.Body.BirthRound
		}
	}

	if body.BirthRound < FirstRound {
		body.BirthRound = FirstRound
	}

	return &Event{
		Body:         body,
		timeReceived: timestamp,
	}
}

// NewEventFromBody wraps a decoded body.
func NewEventFromBody(body EventBody) *Event {
	return &Event{
		Body: body,
	}
}

// Hash returns the SHA256 hash of the canonical body encoding. It is computed
// once. A body that cannot be encoded hashes to ZeroHash.
func (e *Event) Hash() Hash {
	e.hashOnce.Do(func() {
		raw, err := e.Body.Marshal()
		if err != nil {
			return
		}
		e.hash = crypto.SHA256(raw)
	})
	return e.hash
}

// Hex returns the hex form of the event's hash.
func (e *Event) Hex() string {
	return e.Hash().Hex()
}

// Creator returns the ID of the event's creator.
func (e *Event) Creator() uint32 {
	return e.Body.Creator
}

// SelfParent returns the hash of the self-parent, or ZeroHash.
func (e *Event) SelfParent() Hash {
	return e.Body.SelfParent
}

// OtherParents returns the hashes of the other-parents.
func (e *Event) OtherParents() []Hash {
	return e.Body.OtherParents
}

// Generation returns the generation of the event.
func (e *Event) Generation() int64 {
	return e.Body.Generation
}

// BirthRound returns the birth round of the event.
func (e *Event) BirthRound() int64 {
	return e.Body.BirthRound
}

// Transactions returns the payload.
func (e *Event) Transactions() [][]byte {
	return e.Body.Transactions
}

// TimeCreated returns the creator's timestamp.
func (e *Event) TimeCreated() time.Time {
	return time.Unix(0, e.Body.Timestamp)
}

// TimeReceived returns the time this node received the event, or the creation
// time for events created locally.
func (e *Event) TimeReceived() time.Time {
	return e.timeReceived
}

// SetTimeReceived records when the event was received. It must be called
// before the event is shared with other goroutines.
func (e *Event) SetTimeReceived(t time.Time) {
	e.timeReceived = t
}

// Marshal returns the canonical JSON encoding of the event body.
func (e *Event) Marshal() ([]byte, error) {
	return e.Body.Marshal()
}

// Unmarshal decodes the output of Marshal into e.
func (e *Event) Unmarshal(data []byte) error {
	return e.Body.Unmarshal(data)
}

/*******************************************************************************
Sorting
*******************************************************************************/

// SortByIndicator sorts events ascending by the indicator of mode and then by
// generation, which places every parent before its children under either
// metric. The sort is stable.
func SortByIndicator(events []*Event, mode AncientMode) {
	sort.SliceStable(events, func(i, j int) bool {
		ii, ij := mode.Indicator(events[i]), mode.Indicator(events[j])
		if ii != ij {
			return ii < ij
		}
		return events[i].Body.Generation < events[j].Body.Generation
	})
}
