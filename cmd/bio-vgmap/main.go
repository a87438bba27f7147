package main

// bio-vgmap maps short and long reads to a sequence graph.
//
// Example 1: single-end reads against a GFA graph.
//
//    bio-vgmap -gfa=graph.gfa -r1=reads.fastq.gz -out=alignments.tsv.gz
//
// Example 2: read pairs against a linear reference chopped into 32 base nodes.
//
//    bio-vgmap -fasta=ref.fa -node-size=32 -r1=r1.fastq -r2=r2.fastq -out=pairs.tsv
//
// The output has one row per reported alignment. Pairs whose mates are
// imperfect before a fragment length model exists are held back and mapped in
// a second pass once the model has been learned from the rest of the input.

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/dkj/vg/align"
	"github.com/dkj/vg/encoding/fastq"
	"github.com/dkj/vg/graph"
	"github.com/dkj/vg/mapper"
	"github.com/dkj/vg/pathindex"
	"github.com/google/uuid"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/syncqueue"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/vcontext"
)

type mapFlags struct {
	gfa, fasta   string
	nodeSize     int
	order        int
	maxWalks     int
	r1, r2       string
	out          string
	unalignedOut string
	parallelism  int
	batchSize    int
	maxReadLen   int
	mqMethod     string
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -gfa=<graph.gfa>|-fasta=<ref.fa> -r1=<r1.fastq> [-r2=<r2.fastq>] -out=<out.tsv>\n", os.Args[0])
	flag.PrintDefaults()
}

func parseMQMethod(s string) (mapper.MQMethod, error) {
	switch s {
	case "approx":
		return mapper.Approx, nil
	case "exact":
		return mapper.Exact, nil
	case "none":
		return mapper.None, nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown -mq-method %q", s))
}

func main() {
	flag.Usage = usage

	flags := mapFlags{}
	flag.StringVar(&flags.gfa, "gfa", "", "GFA graph to map against.")
	flag.StringVar(&flags.fasta, "fasta", "", "FASTA reference to map against. Each sequence becomes a chain of nodes and a path.")
	flag.IntVar(&flags.nodeSize, "node-size", 32, "Node length used when building a graph from -fasta.")
	flag.IntVar(&flags.order, "order", pathindex.DefaultOpts.Order, "Longest walk indexed from each graph position. MEMs are at most this long.")
	flag.IntVar(&flags.maxWalks, "max-walks", pathindex.DefaultOpts.MaxWalksPerPosition, "Cap on the distinct walks indexed from one position.")
	flag.StringVar(&flags.r1, "r1", "", "FASTQ file containing R1 (or single-end) reads.")
	flag.StringVar(&flags.r2, "r2", "", "FASTQ file containing R2 reads. If empty, reads are mapped single-end.")
	flag.StringVar(&flags.out, "out", "", "Output TSV path. A .gz suffix compresses the output. (default stdout)")
	flag.StringVar(&flags.unalignedOut, "unaligned-out", "", "If set, reads that do not map are written to this FASTQ file.")
	flag.IntVar(&flags.parallelism, "parallelism", runtime.NumCPU(), "Number of mapping workers.")
	flag.IntVar(&flags.batchSize, "batch-size", 512, "Reads (or pairs) handed to a worker at a time.")
	flag.IntVar(&flags.maxReadLen, "max-read-length", 0, "If positive, reads are trimmed to this many bases before mapping.")
	flag.StringVar(&flags.mqMethod, "mq-method", "approx", "Mapping quality method: approx, exact or none.")

	opts := mapper.DefaultOpts
	opts.MinMEMLength = 11
	flag.IntVar(&opts.HitMax, "hit-max", opts.HitMax, "Ignore MEMs with more than this many occurrences. 0 means no cap.")
	flag.IntVar(&opts.MinMEMLength, "min-mem", opts.MinMEMLength, "Shortest MEM used as a seed.")
	flag.IntVar(&opts.MaxMEMLength, "max-mem", opts.MaxMEMLength, "Longest MEM; longer matches are split. 0 means no limit.")
	flag.IntVar(&opts.MEMReseedLength, "reseed", opts.MEMReseedLength, "Reseed MEMs at least this long with sub-MEMs. 0 disables reseeding.")
	flag.BoolVar(&opts.FastReseed, "fast-reseed", opts.FastReseed, "Find sub-MEMs by binary search instead of exhaustively.")
	flag.IntVar(&opts.MaxMultimaps, "max-multimaps", opts.MaxMultimaps, "Report at most this many alignments per read.")
	flag.IntVar(&opts.MinMultimaps, "min-multimaps", opts.MinMultimaps, "Realize at least this many clusters per read.")
	flag.IntVar(&opts.ExtraMultimaps, "extra-multimaps", opts.ExtraMultimaps, "Clusters traced back beyond -max-multimaps.")
	flag.Float64Var(&opts.MinIdentity, "min-identity", opts.MinIdentity, "Drop alignments at or below this identity.")
	flag.IntVar(&opts.MinClusterLength, "min-cluster-length", opts.MinClusterLength, "Skip clusters covering fewer read bases once an alignment exists.")
	flag.Float64Var(&opts.DropChain, "drop-chain", opts.DropChain, "Drop clusters overlapping a better one with less than this coverage ratio.")
	flag.IntVar(&opts.MaxMappingQuality, "max-mq", opts.MaxMappingQuality, "Cap on reported mapping quality.")
	flag.BoolVar(&opts.UseClusterMQ, "cluster-mq", opts.UseClusterMQ, "Blend cluster-level mapping quality into the reported value.")
	flag.IntVar(&opts.BandWidth, "band-width", opts.BandWidth, "Reads longer than this are aligned in overlapping bands.")
	flag.IntVar(&opts.AlignmentThreads, "alignment-threads", opts.AlignmentThreads, "Goroutines aligning the bands of one long read.")
	flag.IntVar(&opts.CacheSize, "cache-size", opts.CacheSize, "Entries in each per-worker graph cache.")
	flag.IntVar(&opts.FragmentMax, "fragment-max", opts.FragmentMax, "Longest fragment considered before a fragment model exists.")
	flag.IntVar(&opts.FragmentSize, "fragment-size", opts.FragmentSize, "Seed fragment length cutoff. 0 learns the model from the input.")
	flag.Float64Var(&opts.FragmentMean, "fragment-mean", opts.FragmentMean, "Seed fragment length mean.")
	flag.Float64Var(&opts.FragmentStdev, "fragment-stdev", opts.FragmentStdev, "Seed fragment length standard deviation.")
	flag.BoolVar(&opts.FragmentOrientation, "fragment-orientation", opts.FragmentOrientation, "Seed: mates lie on the same strand.")
	flag.BoolVar(&opts.FragmentDirection, "fragment-direction", opts.FragmentDirection, "Seed: mate 2 lies downstream of mate 1.")
	flag.Float64Var(&opts.FragmentSigma, "fragment-sigma", opts.FragmentSigma, "Fragment cutoff is mean plus this many standard deviations.")
	flag.Float64Var(&opts.PerfectPairIdentityThreshold, "perfect-pair-identity", opts.PerfectPairIdentityThreshold, "Both mates must exceed this identity for a pair to train the fragment model.")
	flag.IntVar(&opts.MateRescues, "mate-rescues", opts.MateRescues, "Top pairs considered for mate rescue.")
	flag.BoolVar(&opts.OnlyTopScoringPair, "top-pair-only", opts.OnlyTopScoringPair, "Report nothing for a pair unless its best pair holds each mate's best alignment.")
	flag.BoolVar(&opts.CheckAlignments, "check", opts.CheckAlignments, "Verify every alignment against the graph.")
	flag.IntVar(&opts.Scoring.Match, "match", opts.Scoring.Match, "Match score.")
	flag.IntVar(&opts.Scoring.Mismatch, "mismatch", opts.Scoring.Mismatch, "Mismatch penalty.")
	flag.IntVar(&opts.Scoring.GapOpen, "gap-open", opts.Scoring.GapOpen, "Gap open penalty.")
	flag.IntVar(&opts.Scoring.GapExtension, "gap-extend", opts.Scoring.GapExtension, "Gap extension penalty.")
	flag.IntVar(&opts.Scoring.FullLengthBonus, "full-length-bonus", opts.Scoring.FullLengthBonus, "Bonus for each read end aligned without soft clipping.")

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	method, err := parseMQMethod(flags.mqMethod)
	if err != nil {
		log.Fatal(err)
	}
	opts.MappingQualityMethod = method
	stats, err := run(ctx, flags, opts)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Stats: %+v", stats)
	log.Printf("All done")
}

// openInput opens path for reading, decompressing it if its name says so.
func openInput(ctx context.Context, path string) (file.File, io.Reader, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.E(err, "open", path)
	}
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	return in, r, nil
}

func loadGraph(ctx context.Context, flags mapFlags) (*graph.Graph, error) {
	path := flags.gfa
	if (flags.gfa == "") == (flags.fasta == "") {
		return nil, errors.E(errors.Invalid, "exactly one of -gfa and -fasta must be set")
	}
	if path == "" {
		path = flags.fasta
	}
	in, r, err := openInput(ctx, path)
	if err != nil {
		return nil, err
	}
	var g *graph.Graph
	if flags.gfa != "" {
		g, err = graph.ReadGFA(r)
	} else {
		g, err = graph.FromFASTA(r, flags.nodeSize)
	}
	once := errors.Once{}
	once.Set(err)
	once.Set(in.Close(ctx))
	if err := once.Err(); err != nil {
		return nil, errors.E(err, "read graph", path)
	}
	log.Printf("%s: %d nodes, %d bases, %.3f bits/base, chance match length %d", path, g.NodeCount(), g.SeqLength(),
		mapper.GraphEntropy(g), mapper.RandomMatchLength(g, 0.05))
	return g, nil
}

// run maps the reads named by flags and writes the alignments. It returns the
// merged statistics of all workers.
func run(ctx context.Context, flags mapFlags, opts mapper.Opts) (mapper.Stats, error) {
	var stats mapper.Stats
	if flags.r1 == "" {
		return stats, errors.E(errors.Invalid, "-r1 must be set")
	}
	if flags.parallelism <= 0 {
		flags.parallelism = 1
	}
	if flags.batchSize <= 0 {
		flags.batchSize = 1
	}
	g, err := loadGraph(ctx, flags)
	if err != nil {
		return stats, err
	}
	idx, err := pathindex.Build(g, pathindex.Opts{Order: flags.order, MaxWalksPerPosition: flags.maxWalks})
	if err != nil {
		return stats, err
	}
	log.Printf("Indexed %d walks of up to %d bases", idx.Size(), idx.Order())
	m, err := mapper.New(g, idx, idx, opts)
	if err != nil {
		return stats, err
	}

	out, err := newOutput(ctx, flags.out, flags.unalignedOut)
	if err != nil {
		return stats, err
	}
	once := errors.Once{}
	paired := flags.r2 != ""
	batches := make(chan batch, flags.parallelism)
	go func() {
		once.Set(readFASTQ(ctx, batches, flags))
		close(batches)
	}()
	s, err := mapBatches(m, batches, out, flags.parallelism, false)
	stats = stats.Merge(s)
	once.Set(err)

	if paired && once.Err() == nil {
		deferred := m.TakeDeferred()
		log.Printf("Retrying %d deferred pairs with fragment model %+v", len(deferred), m.Fragments.Snapshot())
		retries := make(chan batch, flags.parallelism)
		go func() {
			for i := 0; i < len(deferred); i += flags.batchSize {
				end := i + flags.batchSize
				if end > len(deferred) {
					end = len(deferred)
				}
				retries <- batch{index: i / flags.batchSize, pairs: deferred[i:end]}
			}
			close(retries)
		}()
		s, err = mapBatches(m, retries, out, flags.parallelism, true)
		stats = stats.Merge(s)
		once.Set(err)
	}
	once.Set(out.close(ctx))
	return stats, once.Err()
}

// batch is a run of consecutive reads or read pairs. Batches are numbered
// from 0 in input order.
type batch struct {
	index int
	reads []align.Alignment
	pairs []mapper.Pair
}

func readFASTQ(ctx context.Context, batches chan<- batch, flags mapFlags) error {
	in1, r1, err := openInput(ctx, flags.r1)
	if err != nil {
		return err
	}
	once := errors.Once{}
	var (
		nRead uint
		b     = batch{}
		emit  = func() {
			batches <- b
			b = batch{index: b.index + 1}
		}
	)
	if flags.r2 == "" {
		sc := fastq.NewScanner(r1)
		var r fastq.Read
		for sc.Scan(&r) {
			if flags.maxReadLen > 0 {
				r.Trim(flags.maxReadLen)
			}
			b.reads = append(b.reads, r.Alignment())
			if len(b.reads) == flags.batchSize {
				emit()
			}
			nRead++
		}
		once.Set(sc.Err())
	} else {
		in2, r2, err := openInput(ctx, flags.r2)
		if err != nil {
			once.Set(err)
			once.Set(in1.Close(ctx))
			return once.Err()
		}
		sc := fastq.NewPairScanner(r1, r2)
		var rr1, rr2 fastq.Read
		for sc.Scan(&rr1, &rr2) {
			if flags.maxReadLen > 0 {
				rr1.Trim(flags.maxReadLen)
				rr2.Trim(flags.maxReadLen)
			}
			b.pairs = append(b.pairs, mapper.Pair{Read1: rr1.Alignment(), Read2: rr2.Alignment()})
			if len(b.pairs) == flags.batchSize {
				emit()
			}
			nRead++
			if nRead%(1024*1024) == 0 {
				log.Printf("%s: %dMi readpairs", flags.r1, nRead/(1024*1024))
			}
		}
		once.Set(sc.Err())
		once.Set(in2.Close(ctx))
	}
	if len(b.reads) > 0 || len(b.pairs) > 0 {
		emit()
	}
	log.Printf("Read %d records from %s", nRead, flags.r1)
	once.Set(in1.Close(ctx))
	return once.Err()
}

// batchResult is the formatted output of one batch.
type batchResult struct {
	rows      bytes.Buffer
	unaligned bytes.Buffer
}

// mapBatches maps batches on parallelism workers and writes their results in
// batch order.
func mapBatches(m *mapper.Mapper, batches <-chan batch, out *output, parallelism int, retrying bool) (mapper.Stats, error) {
	queue := syncqueue.NewOrderedQueue(2 * parallelism)
	done := make(chan error)
	go func() {
		var err error
		for {
			v, ok, qerr := queue.Next()
			if qerr != nil || !ok {
				if err == nil {
					err = qerr
				}
				break
			}
			if err == nil {
				err = out.write(v.(*batchResult))
			}
		}
		done <- err
	}()

	stats := make([]mapper.Stats, parallelism)
	err := traverse.Each(parallelism, func(i int) error {
		var (
			w   = m.NewWorker()
			err error
		)
		// Batches keep draining after an error so the reader and the
		// output queue are never left waiting.
		for b := range batches {
			res := &batchResult{}
			if err == nil {
				err = mapBatch(w, b, res, retrying)
			}
			if qerr := queue.Insert(b.index, res); qerr != nil && err == nil {
				err = qerr
			}
		}
		stats[i] = w.Stats
		return err
	})
	once := errors.Once{}
	once.Set(err)
	once.Set(queue.Close(err))
	once.Set(<-done)
	var total mapper.Stats
	for _, s := range stats {
		total = total.Merge(s)
	}
	return total, once.Err()
}

func mapBatch(w *mapper.Worker, b batch, res *batchResult, retrying bool) error {
	rows := newRowWriter(&res.rows)
	unaligned := fastq.NewWriter(&res.unaligned)
	for _, read := range b.reads {
		alns, err := w.AlignMulti(read)
		if err != nil {
			return errors.E(err, "map", read.Name)
		}
		for _, a := range alns {
			rows.write(a, 0)
		}
		if len(alns) == 0 || !alns[0].HasPath() {
			if err := unaligned.WriteAlignment(read); err != nil {
				return err
			}
		}
	}
	for _, p := range b.pairs {
		alns1, alns2, queued, err := w.AlignPairedMulti(p.Read1, p.Read2, retrying)
		if err != nil {
			return errors.E(err, "map", p.Read1.Name)
		}
		if queued {
			continue
		}
		for i := range alns1 {
			rows.write(alns1[i], 1)
			if i < len(alns2) {
				rows.write(alns2[i], 2)
			}
		}
		if len(alns1) == 0 || !alns1[0].HasPath() {
			if err := unaligned.WriteAlignment(p.Read1); err != nil {
				return err
			}
		}
		if len(alns2) == 0 || !alns2[0].HasPath() {
			if err := unaligned.WriteAlignment(p.Read2); err != nil {
				return err
			}
		}
	}
	return rows.flush()
}

// openedOutput pairs a file with the writer that feeds it.
type openedOutput struct {
	f   file.File
	w   io.Writer
	gz  io.WriteCloser
	dst string
}

func create(ctx context.Context, path string) (*openedOutput, error) {
	o := &openedOutput{dst: path}
	if path == "" {
		o.w = os.Stdout
		return o, nil
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	o.f, o.w = f, f.Writer(ctx)
	if strings.HasSuffix(path, ".gz") {
		o.gz = newGzipWriter(o.w)
		o.w = o.gz
	}
	return o, nil
}

func (o *openedOutput) close(ctx context.Context) error {
	once := errors.Once{}
	if o.gz != nil {
		once.Set(o.gz.Close())
	}
	if o.f != nil {
		once.Set(o.f.Close(ctx))
	}
	if err := once.Err(); err != nil {
		return errors.E(err, "close", o.dst)
	}
	return nil
}

// output receives formatted batch results in input order.
type output struct {
	rows, unaligned *openedOutput
}

func newOutput(ctx context.Context, rowsPath, unalignedPath string) (*output, error) {
	o := &output{}
	var err error
	if o.rows, err = create(ctx, rowsPath); err != nil {
		return nil, err
	}
	if unalignedPath != "" {
		if o.unaligned, err = create(ctx, unalignedPath); err != nil {
			return nil, err
		}
	}
	if err := writeHeader(o.rows.w, uuid.New()); err != nil {
		return nil, errors.E(err, "write header", rowsPath)
	}
	return o, nil
}

func (o *output) write(res *batchResult) error {
	if _, err := o.rows.w.Write(res.rows.Bytes()); err != nil {
		return err
	}
	if o.unaligned != nil {
		if _, err := o.unaligned.w.Write(res.unaligned.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (o *output) close(ctx context.Context) error {
	once := errors.Once{}
	once.Set(o.rows.close(ctx))
	if o.unaligned != nil {
		once.Set(o.unaligned.close(ctx))
	}
	return once.Err()
}
