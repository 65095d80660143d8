package index

// DocID identifies an indexed document. Ids are assigned from 1 upwards and
// are never reused within a build.
type DocID uint32

// Posting records every position at which one term occurs in one document.
// Positions are kept in scan order.
type Posting struct {
	DocID     DocID
	Positions []uint32
}

// Frequency is the raw term frequency of the posting.
func (p Posting) Frequency() int {
	return len(p.Positions)
}

type PostingList []Posting

// TermEntry is one term together with all of its postings, in insertion order.
type TermEntry struct {
	Term     string
	Postings PostingList
}
