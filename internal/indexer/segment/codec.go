package segment

import (
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/index"
	"google.golang.org/protobuf/encoding/protowire"
)

// Posting list payloads use the protobuf wire format:
//
//	message PostingList { repeated Posting postings = 1; }
//	message Posting {
//	  uint32 doc_id = 1;
//	  repeated uint32 positions = 2 [packed = true];
//	  double weight = 3;
//	}
const (
	fieldPostings protowire.Number = 1

	fieldDocID     protowire.Number = 1
	fieldPositions protowire.Number = 2
	fieldWeight    protowire.Number = 3
)

// Posting is the serialized form of one document's entry in a term's list.
type Posting struct {
	DocID     index.DocID `json:"doc_id"`
	Positions []uint32    `json:"positions,omitempty"`
	Weight    float64     `json:"weight"`
}

// Frequency is the raw term frequency of the posting.
func (p Posting) Frequency() int {
	return len(p.Positions)
}

// PostingList is every posting of a single term as stored on disk, ordered
// by descending weight.
type PostingList []Posting

// MarshalPostingList serializes pl into its wire representation.
func MarshalPostingList(pl PostingList) []byte {
	var out []byte
	var inner, packed []byte
	for _, p := range pl {
		inner = inner[:0]
		inner = protowire.AppendTag(inner, fieldDocID, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(p.DocID))
		if len(p.Positions) > 0 {
			packed = packed[:0]
			for _, pos := range p.Positions {
				packed = protowire.AppendVarint(packed, uint64(pos))
			}
			inner = protowire.AppendTag(inner, fieldPositions, protowire.BytesType)
			inner = protowire.AppendBytes(inner, packed)
		}
		inner = protowire.AppendTag(inner, fieldWeight, protowire.Fixed64Type)
		inner = protowire.AppendFixed64(inner, math.Float64bits(p.Weight))

		out = protowire.AppendTag(out, fieldPostings, protowire.BytesType)
		out = protowire.AppendBytes(out, inner)
	}
	return out
}

// UnmarshalPostingList parses a payload produced by MarshalPostingList.
// Unknown fields are skipped.
func UnmarshalPostingList(b []byte) (PostingList, error) {
	var pl PostingList
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: posting list tag: %v", ErrCorrupt, protowire.ParseError(n))
		}
		b = b[n:]
		if num == fieldPostings && typ == protowire.BytesType {
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: posting: %v", ErrCorrupt, protowire.ParseError(n))
			}
			p, err := unmarshalPosting(msg)
			if err != nil {
				return nil, err
			}
			pl = append(pl, p)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, fmt.Errorf("%w: posting list field %d: %v", ErrCorrupt, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return pl, nil
}

func unmarshalPosting(b []byte) (Posting, error) {
	var p Posting
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, fmt.Errorf("%w: posting tag: %v", ErrCorrupt, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldDocID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, fmt.Errorf("%w: doc id: %v", ErrCorrupt, protowire.ParseError(n))
			}
			p.DocID = index.DocID(v)
			b = b[n:]
		case num == fieldPositions && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, fmt.Errorf("%w: positions: %v", ErrCorrupt, protowire.ParseError(n))
			}
			for len(packed) > 0 {
				v, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return p, fmt.Errorf("%w: position: %v", ErrCorrupt, protowire.ParseError(m))
				}
				p.Positions = append(p.Positions, uint32(v))
				packed = packed[m:]
			}
			b = b[n:]
		case num == fieldPositions && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, fmt.Errorf("%w: position: %v", ErrCorrupt, protowire.ParseError(n))
			}
			p.Positions = append(p.Positions, uint32(v))
			b = b[n:]
		case num == fieldWeight && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return p, fmt.Errorf("%w: weight: %v", ErrCorrupt, protowire.ParseError(n))
			}
			p.Weight = math.Float64frombits(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, fmt.Errorf("%w: posting field %d: %v", ErrCorrupt, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return p, nil
}
