package main

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	mrand "math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppopth/go-das/das"
	"github.com/ppopth/go-das/encoding"
	"github.com/ppopth/go-das/field"
	"github.com/ppopth/go-das/fri"
	"github.com/ppopth/go-das/internal/parallel"
	"github.com/ppopth/go-das/merkle"
	"github.com/ppopth/go-das/recovery"

	logging "github.com/ipfs/go-log/v2"
)

// BenchmarkResult stores average timings of one protocol run
type BenchmarkResult struct {
	PayloadSize    int     `json:"payload_size"`
	NVars          int     `json:"n_vars"`
	CodewordLength int     `json:"codeword_length"`
	LogInvRate     int     `json:"log_inv_rate"`
	NumTestQueries int     `json:"num_test_queries"`
	Arity          int     `json:"arity"`
	Workers        int     `json:"workers"`
	Iterations     int     `json:"iterations"`
	TranscriptSize int     `json:"transcript_bytes"`
	Samples        int     `json:"samples"`
	Confidence     float64 `json:"confidence"`
	Erasures       int     `json:"erasures"`

	Commit      time.Duration `json:"commit_ns"`
	Prove       time.Duration `json:"prove_ns"`
	Verify      time.Duration `json:"verify_ns"`
	Sample      time.Duration `json:"sample_ns"`
	Reconstruct time.Duration `json:"reconstruct_ns"`
}

type options struct {
	size           int
	logInvRate     int
	numTestQueries int
	arity          int
	logNumShares   int
	workers        int
	iterations     int
	samples        int
	keccak         bool
	output         string
	logLevel       string
}

func main() {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "das-bench",
		Short:        "Benchmarks commitment, proof, sampling and reconstruction of a random payload",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.SetLogLevel("*", opts.logLevel); err != nil {
				return err
			}
			result, err := run(opts)
			if err != nil {
				return err
			}
			return writeResult(result, opts.output)
		},
	}

	defaults := das.DefaultProtocolConfig()
	flags := cmd.Flags()
	flags.IntVar(&opts.size, "size", 16*1024, "Payload size in bytes")
	flags.IntVar(&opts.logInvRate, "log-inv-rate", defaults.LogInvRate, "Log2 of the Reed-Solomon expansion")
	flags.IntVar(&opts.numTestQueries, "queries", defaults.NumTestQueries, "Test queries per evaluation proof")
	flags.IntVar(&opts.arity, "arity", defaults.Arity, "Folds between round commitments")
	flags.IntVar(&opts.logNumShares, "log-shares", defaults.LogNumShares, "Log2 of the transform work split")
	flags.IntVar(&opts.workers, "workers", 0, "Worker goroutines, 0 for GOMAXPROCS and 1 for sequential")
	flags.IntVar(&opts.iterations, "iterations", 10, "Iterations per measurement")
	flags.IntVar(&opts.samples, "samples", 30, "Shares opened per sampling session")
	flags.BoolVar(&opts.keccak, "keccak", false, "Hash the Merkle tree with Keccak-256 instead of SHA-256")
	flags.StringVar(&opts.output, "output", "das_benchmark.json", "Output file for benchmark results")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// timeIt returns the average duration of iterations calls to fn
func timeIt(iterations int, fn func() error) (time.Duration, error) {
	start := time.Now()
	for i := 0; i < iterations; i++ {
		if err := fn(); err != nil {
			return 0, err
		}
	}
	return time.Since(start) / time.Duration(iterations), nil
}

func run(opts *options) (*BenchmarkResult, error) {
	if opts.iterations < 1 {
		return nil, fmt.Errorf("iterations must be positive, got %d", opts.iterations)
	}

	strategy := parallel.Sequential()
	if opts.workers != 1 {
		strategy = parallel.Parallel(opts.workers)
	}

	data := make([]byte, opts.size)
	if _, err := rand.Read(data); err != nil {
		return nil, err
	}
	payload, err := encoding.Pack(data, encoding.WithStrategy(strategy), encoding.WithRejectEmpty())
	if err != nil {
		return nil, err
	}

	cfg := das.ProtocolConfig{
		LogInvRate:     opts.logInvRate,
		NumTestQueries: opts.numTestQueries,
		Arity:          opts.arity,
		NVars:          payload.TotalNVars,
		LogNumShares:   opts.logNumShares,
	}
	orchOpts := []das.Option{das.WithStrategy(strategy)}
	if opts.keccak {
		scheme := merkle.NewScheme(merkle.WithHasher(merkle.Keccak256))
		orchOpts = append(orchOpts, das.WithEngine(fri.NewEngine(fri.WithMerkleScheme(scheme))))
	}
	orch, err := das.New(cfg, orchOpts...)
	if err != nil {
		return nil, err
	}
	params, ctx, err := orch.InitContext(payload.TotalNVars)
	if err != nil {
		return nil, err
	}

	fmt.Printf("Benchmarking %s with:\n", params)
	fmt.Printf("  Payload size: %d bytes\n", opts.size)
	fmt.Printf("  Codeword length: %d\n", params.CodeLen())
	fmt.Printf("  Iterations: %d\n", opts.iterations)
	fmt.Println()

	result := &BenchmarkResult{
		PayloadSize:    opts.size,
		NVars:          cfg.NVars,
		CodewordLength: params.CodeLen(),
		LogInvRate:     cfg.LogInvRate,
		NumTestQueries: cfg.NumTestQueries,
		Arity:          cfg.Arity,
		Workers:        opts.workers,
		Iterations:     opts.iterations,
	}

	fmt.Print("Benchmarking Commit... ")
	var commitment *das.Commitment
	result.Commit, err = timeIt(opts.iterations, func() error {
		commitment.Release()
		commitment, err = orch.Commit(payload, params, ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer commitment.Release()
	fmt.Println(result.Commit)

	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	point, err := orch.EvaluationPointRandom(seed)
	if err != nil {
		return nil, err
	}
	claim, err := das.EvaluationClaim(payload.Values, point)
	if err != nil {
		return nil, err
	}

	fmt.Print("Benchmarking Prove... ")
	var proof *das.ProveOutput
	result.Prove, err = timeIt(opts.iterations, func() error {
		proof, err = orch.Prove(payload, params, ctx, commitment, point)
		return err
	})
	if err != nil {
		return nil, err
	}
	result.TranscriptSize = len(proof.Transcript)
	fmt.Println(result.Prove)

	fmt.Print("Benchmarking Verify... ")
	result.Verify, err = timeIt(opts.iterations, func() error {
		return orch.Verify(proof.Transcript, claim, point, params, nil)
	})
	if err != nil {
		return nil, err
	}
	fmt.Println(result.Verify)

	fmt.Print("Benchmarking sampling... ")
	sampler := das.NewSampler(orch, params)
	rng := mrand.New(mrand.NewSource(time.Now().UnixNano()))
	result.Sample, err = timeIt(opts.iterations, func() error {
		indices := das.SelectSamples(rng, params.CodeLen(), opts.samples)
		_, err := sampler.Run(commitment, indices)
		return err
	})
	if err != nil {
		return nil, err
	}
	result.Samples = min(opts.samples, params.CodeLen())
	result.Confidence = das.Confidence(result.Samples, params.CodeLen(), params.MsgLen())
	fmt.Printf("%v (confidence %.6f)\n", result.Sample, result.Confidence)

	fmt.Print("Benchmarking Reconstruct... ")
	result.Erasures = recovery.MaxErasures(params.CodeLen(), params.MsgLen())
	erased := das.SelectSamples(rng, params.CodeLen(), result.Erasures)
	damaged := make([]field.B128, len(commitment.Codeword))
	result.Reconstruct, err = timeIt(opts.iterations, func() error {
		copy(damaged, commitment.Codeword)
		for _, e := range erased {
			damaged[e] = field.Zero()
		}
		return recovery.Reconstruct(damaged, erased, params.MsgLen(), recovery.WithStrategy(strategy))
	})
	if err != nil {
		return nil, err
	}
	for i := range damaged {
		if !damaged[i].Equal(commitment.Codeword[i]) {
			return nil, fmt.Errorf("reconstruction mismatch at index %d", i)
		}
	}
	fmt.Println(result.Reconstruct)

	return result, nil
}

func writeResult(result *BenchmarkResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write results to file: %w", err)
	}
	fmt.Printf("\nBenchmark results written to: %s\n", path)
	return nil
}
