package mapper

// Stats counts what a Worker has done.
type Stats struct {
	// Reads is the # of single-end reads mapped.
	Reads int
	// Pairs is the # of read pairs mapped, including retries.
	Pairs int
	// Unaligned is the # of reads (or mates) reported without a path.
	Unaligned int
	// Banded is the # of reads long enough to be aligned in bands.
	Banded int
	// Bands is the # of bands those reads were split into.
	Bands int
	// RescuesAttempted is the # of mates realigned near their partner;
	// RescuesAccepted is the # whose score improved.
	RescuesAttempted int
	RescuesAccepted  int
	// Deferred is the # of pairs queued until a fragment model exists.
	Deferred int
	// Retried is the # of deferred pairs mapped again.
	Retried int
	// FailedChecks is the # of alignments that did not match the graph.
	FailedChecks int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Reads += o.Reads
	s.Pairs += o.Pairs
	s.Unaligned += o.Unaligned
	s.Banded += o.Banded
	s.Bands += o.Bands
	s.RescuesAttempted += o.RescuesAttempted
	s.RescuesAccepted += o.RescuesAccepted
	s.Deferred += o.Deferred
	s.Retried += o.Retried
	s.FailedChecks += o.FailedChecks
	return s
}
