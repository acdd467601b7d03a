// Package postings implements the self-delimiting on-disk record format
// shared by the inverted and forward indexes: one record per primary key
// (term_id for the inverted index, doc_id for the forward index), mapping
// to a sorted list of (secondary key, count) entries.
package postings

// Entry is one (secondary key, count) pair within a Record. Counts are
// non-negative; secondary keys are strictly increasing within a Record.
type Entry struct {
	SecondaryID uint64
	Count       uint64
}

// Record is one term's (or, in the forward index, one document's) postings
// data: a primary key plus its ordered entries. The invariants a valid
// Record upholds are: no duplicate secondary ids, entries sorted ascending
// by secondary id, and TotalCount() equal to the sum of entry counts.
type Record struct {
	PrimaryID uint64
	Entries   []Entry
}

// TotalCount returns the sum of all entry counts, i.e. the total number of
// occurrences recorded for this primary key.
func (r Record) TotalCount() uint64 {
	var total uint64
	for _, e := range r.Entries {
		total += e.Count
	}
	return total
}

// CountOf returns the count recorded for secondaryID, or 0 if absent. This
// never errors: an unknown secondary id behaves as document-frequency zero,
// matching the UnknownTerm/UnknownLabel error-taxonomy policy of returning
// empty results rather than raising.
func (r Record) CountOf(secondaryID uint64) uint64 {
	// Entries are sorted, so a binary search would do, but records are
	// small in practice (document counts rarely run into the thousands)
	// and a linear scan keeps this free of an extra sort.Search import.
	for _, e := range r.Entries {
		if e.SecondaryID == secondaryID {
			return e.Count
		}
	}
	return 0
}

// DocFrequency is the number of distinct secondary keys touching this
// primary key (for the inverted index, this is the term's document
// frequency).
func (r Record) DocFrequency() int {
	return len(r.Entries)
}

// Empty reports whether this is the zero-value record returned for an
// unknown primary key (document frequency zero).
func (r Record) Empty() bool {
	return len(r.Entries) == 0
}

// Merge combines two records that share a PrimaryID: entries are
// concatenated and re-sorted by secondary key, summing counts for any
// secondary key that appears in both (spec 4.3, "Merge-of-two"). The
// inputs must already be individually sorted by secondary key.
func Merge(a, b Record) Record {
	out := make([]Entry, 0, len(a.Entries)+len(b.Entries))
	i, j := 0, 0
	for i < len(a.Entries) && j < len(b.Entries) {
		switch {
		case a.Entries[i].SecondaryID < b.Entries[j].SecondaryID:
			out = append(out, a.Entries[i])
			i++
		case a.Entries[i].SecondaryID > b.Entries[j].SecondaryID:
			out = append(out, b.Entries[j])
			j++
		default:
			out = append(out, Entry{
				SecondaryID: a.Entries[i].SecondaryID,
				Count:       a.Entries[i].Count + b.Entries[j].Count,
			})
			i++
			j++
		}
	}
	out = append(out, a.Entries[i:]...)
	out = append(out, b.Entries[j:]...)
	return Record{PrimaryID: a.PrimaryID, Entries: out}
}
