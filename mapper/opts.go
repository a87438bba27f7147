package mapper

import "github.com/dkj/vg/align"

// MQMethod selects how mapping qualities are computed.
type MQMethod int

const (
	// Approx uses the score gap between the best and runner-up alignments.
	Approx MQMethod = iota
	// Exact uses the posterior of the best alignment under the score model.
	Exact
	// None leaves mapping qualities at zero.
	None
)

// Opts configures a Mapper.
type Opts struct {
	// Scoring holds the aligner's match, mismatch, gap and full-length bonus
	// scores.
	Scoring align.Scoring

	// HitMax caps the number of index occurrences located for a MEM. MEMs
	// with more occurrences keep their count but get no positions. 0 means
	// no cap.
	HitMax int
	// MinMEMLength is the shortest MEM reported.
	MinMEMLength int
	// MaxMEMLength is the longest MEM reported; longer matches are split. 0
	// means the index order is the only bound.
	MaxMEMLength int
	// MEMReseedLength triggers reseeding for MEMs at least this long whose
	// longest shared prefix with another part of the graph is also at least
	// this long. 0 disables reseeding.
	MEMReseedLength int
	// FastReseed uses the binary-search sub-MEM finder instead of the
	// exhaustive one.
	FastReseed bool

	// MaxMultimaps is the number of alignments reported per read or pair.
	MaxMultimaps int
	// MinMultimaps is the number of clusters realized even when they are
	// flagged as near-duplicates of a better cluster.
	MinMultimaps int
	// ExtraMultimaps is the number of clusters requested from the chain
	// model beyond MaxMultimaps.
	ExtraMultimaps int
	// MinIdentity drops alignments at or below this identity.
	MinIdentity float64
	// MinClusterLength skips realization of clusters covering fewer read
	// bases once an alignment has been produced. 0 disables the check.
	MinClusterLength int
	// DropChain is the coverage ratio below which a cluster overlapping a
	// better one is dropped.
	DropChain float64

	// ChainPositionDepth is the number of MEMs kept per approximate
	// position bucket in the chain model.
	ChainPositionDepth int
	// ChainMaxConnections caps the in- and out-degree of chain vertices.
	ChainMaxConnections int

	// MaxMappingQuality caps reported mapping qualities.
	MaxMappingQuality int
	// MaxClusterMappingQuality caps the cluster-level mapping quality.
	MaxClusterMappingQuality int
	// UseClusterMQ blends the cluster-level mapping quality into the
	// alignment mapping quality.
	UseClusterMQ bool
	// MappingQualityMethod selects how mapping qualities are computed.
	MappingQualityMethod MQMethod
	// MQOverlap is the fraction of the read that a secondary alignment must
	// share with the primary to count against its mapping quality.
	MQOverlap float64
	// MaybeMQThreshold caps mapping quality at the MEM-based estimate when
	// the estimate is below this value.
	MaybeMQThreshold float64
	// MaxQueryGraphRatio skips alignment against subgraphs more than this
	// many times longer than the read. 0 disables the check.
	MaxQueryGraphRatio int

	// BandWidth is the read length above which reads are aligned in
	// overlapping bands.
	BandWidth int
	// AlignmentThreads is the number of goroutines aligning bands of one
	// read.
	AlignmentThreads int

	// CacheSize is the capacity of each per-worker graph cache.
	CacheSize int

	// FragmentMax is the longest fragment considered when pairing mates
	// before a fragment length model exists.
	FragmentMax int
	// FragmentSize seeds the fragment length cutoff, together with
	// FragmentMean, FragmentStdev, FragmentOrientation and
	// FragmentDirection. When 0, pairs are chained without a model until
	// one is learned. Either way the model is re-estimated from consistent
	// pairs as mean + FragmentSigma*stdev.
	FragmentSize        int
	FragmentMean        float64
	FragmentStdev       float64
	FragmentOrientation bool
	FragmentDirection   bool
	FragmentSigma       float64
	// FragmentLengthCacheSize is the number of recent observations the
	// model is estimated from.
	FragmentLengthCacheSize int
	// FragmentLengthEstimateInterval is the number of observations between
	// model updates.
	FragmentLengthEstimateInterval int
	// PerfectPairIdentityThreshold is the identity both mates must exceed
	// for a pair to be used to learn the fragment model.
	PerfectPairIdentityThreshold float64
	// MateRescues is the number of top pairs considered for mate rescue.
	MateRescues int
	// OnlyTopScoringPair reports nothing for a pair unless its best pair is
	// also the best alignment of each mate.
	OnlyTopScoringPair bool

	// CheckAlignments verifies every reported alignment against the graph;
	// failures are logged and replaced by unaligned records.
	CheckAlignments bool
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	Scoring:                        align.DefaultScoring,
	HitMax:                         0,
	MinMEMLength:                   1, // cmd: -min-mem defaults to 11
	MaxMEMLength:                   0,
	MEMReseedLength:                0,
	FastReseed:                     true,
	MaxMultimaps:                   1,
	MinMultimaps:                   1,
	ExtraMultimaps:                 512,
	MinIdentity:                    0,
	MinClusterLength:               0,
	DropChain:                      0.2,
	ChainPositionDepth:             1,
	ChainMaxConnections:            10,
	MaxMappingQuality:              60,
	MaxClusterMappingQuality:       1024,
	UseClusterMQ:                   false,
	MappingQualityMethod:           Approx,
	MQOverlap:                      0.2,
	MaybeMQThreshold:               10,
	MaxQueryGraphRatio:             128,
	BandWidth:                      1000,
	AlignmentThreads:               1,
	CacheSize:                      128,
	FragmentMax:                    1e4,
	FragmentSize:                   0,
	FragmentSigma:                  10,
	FragmentLengthCacheSize:        1000,
	FragmentLengthEstimateInterval: 10,
	PerfectPairIdentityThreshold:   0.95,
	MateRescues:                    32,
	OnlyTopScoringPair:             false,
	CheckAlignments:                false,
}
