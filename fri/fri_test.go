package fri

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/ppopth/go-das/field"
	"github.com/ppopth/go-das/merkle"
	"github.com/ppopth/go-das/ntt"
	"github.com/ppopth/go-das/transcript"
)

type setup struct {
	engine *Engine
	params *Params
	ctx    *ntt.DomainContext
	values []field.B128
	point  []field.B128
	claim  field.B128
}

func newSetup(t *testing.T, logMsgLen, logInvRate, queries, arity int) *setup {
	t.Helper()
	rng := rand.New(rand.NewSource(int64(logMsgLen*100 + arity)))

	ctx, err := ntt.NewDomainContext(logMsgLen + logInvRate)
	if err != nil {
		t.Fatal(err)
	}
	engine := NewEngine()
	params, err := engine.BuildParams(ctx, logMsgLen, 0, logInvRate, queries, arity)
	if err != nil {
		t.Fatalf("BuildParams failed: %v", err)
	}

	values := make([]field.B128, 1<<logMsgLen)
	for i := range values {
		values[i] = field.New(rng.Uint64(), rng.Uint64())
	}
	point := make([]field.B128, logMsgLen)
	for i := range point {
		point[i] = field.New(rng.Uint64(), rng.Uint64())
	}
	claim, err := field.EvaluateMLE(values, point)
	if err != nil {
		t.Fatal(err)
	}
	return &setup{engine: engine, params: params, ctx: ctx, values: values, point: point, claim: claim}
}

func (s *setup) prove(t *testing.T) (*CommitOutput, *ProveOutput, []byte) {
	t.Helper()
	commit, err := s.engine.Commit(s.params, s.ctx, s.values)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	tr := transcript.NewProver()
	tr.WriteDigest(commit.Digest)
	out, err := s.engine.Prove(s.params, s.ctx, commit.Committed, s.values, s.point, s.claim, tr)
	if err != nil {
		t.Fatalf("Prove failed: %v", err)
	}
	return commit, out, tr.Bytes()
}

func (s *setup) verify(proof []byte, claim field.B128) (*Verifier, error) {
	tr := transcript.NewVerifier(proof)
	digest, err := tr.ReadDigest()
	if err != nil {
		return nil, err
	}
	return s.engine.Verify(tr, claim, s.point, digest, s.params, s.ctx)
}

func TestParamsValidation(t *testing.T) {
	ctx, err := ntt.NewDomainContext(7)
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		desc                                         string
		logMsg, logBatch, logInvRate, queries, arity int
	}{
		{"zero_rate", 6, 0, 0, 4, 4},
		{"zero_arity", 6, 0, 1, 4, 0},
		{"zero_queries", 6, 0, 1, 0, 4},
		{"batched", 5, 1, 1, 4, 4},
		{"negative_message", -1, 0, 1, 4, 4},
		{"domain_too_small", 7, 0, 1, 4, 4},
		{"too_many_queries", 6, 0, 1, 129, 4},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := NewParams(ctx, tc.logMsg, tc.logBatch, tc.logInvRate, tc.queries, tc.arity)
			if !errors.Is(err, ErrParams) {
				t.Errorf("expected ErrParams, got %v", err)
			}
		})
	}

	if _, err := NewParams(nil, 6, 0, 1, 4, 4); !errors.Is(err, ErrParams) {
		t.Errorf("expected ErrParams for missing context, got %v", err)
	}
}

func TestParamsSchedule(t *testing.T) {
	ctx, err := ntt.NewDomainContext(12)
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		logMsg, arity int
		folds         []int
	}{
		{0, 4, []int{0}},
		{3, 4, []int{3}},
		{4, 4, []int{4}},
		{6, 4, []int{4, 2}},
		{10, 3, []int{3, 3, 3, 1}},
		{5, 1, []int{1, 1, 1, 1, 1}},
	}
	for _, tc := range testCases {
		p, err := NewParams(ctx, tc.logMsg, 0, 2, 1, tc.arity)
		if err != nil {
			t.Fatal(err)
		}
		folds := p.FoldArities()
		if len(folds) != len(tc.folds) {
			t.Fatalf("log %d arity %d: got folds %v, want %v", tc.logMsg, tc.arity, folds, tc.folds)
		}
		for i := range folds {
			if folds[i] != tc.folds[i] {
				t.Fatalf("log %d arity %d: got folds %v, want %v", tc.logMsg, tc.arity, folds, tc.folds)
			}
		}
		if p.NumRoundCommitments() != len(tc.folds)-1 {
			t.Errorf("unexpected round commitment count %d", p.NumRoundCommitments())
		}
	}

	p, err := NewParams(ctx, 6, 0, 1, 128, 4)
	if err != nil {
		t.Fatal(err)
	}
	if p.CodeLen() != 128 || p.MsgLen() != 64 || p.LogLen() != 7 {
		t.Errorf("unexpected lengths: %s", p)
	}
	// 128 queries want depth 7, capped by the coset heights 3 and 1
	depths := p.LayerDepths()
	if len(depths) != 2 || depths[0] != 3 || depths[1] != 1 {
		t.Errorf("unexpected layer depths %v", depths)
	}
}

func TestProveVerify(t *testing.T) {
	testCases := []struct {
		desc                               string
		logMsg, logInvRate, queries, arity int
	}{
		{"constant", 0, 1, 2, 4},
		{"single_oracle", 3, 1, 8, 4},
		{"two_oracles", 6, 1, 32, 4},
		{"unit_arity", 4, 2, 16, 1},
		{"many_rounds", 9, 2, 20, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			s := newSetup(t, tc.logMsg, tc.logInvRate, tc.queries, tc.arity)
			commit, out, proof := s.prove(t)

			if len(out.TerminateCodeword) != 1<<tc.logInvRate {
				t.Fatalf("unexpected terminal length %d", len(out.TerminateCodeword))
			}
			for _, v := range out.TerminateCodeword {
				if !v.Equal(s.claim) {
					t.Fatalf("terminal codeword should be constant and equal the claim")
				}
			}

			v, err := s.verify(proof, s.claim)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if v.CodewordCommitment() != commit.Digest {
				t.Errorf("verifier read the wrong codeword commitment")
			}
			if len(v.RoundCommitments()) != s.params.NumRoundCommitments() {
				t.Errorf("unexpected number of round commitments")
			}
		})
	}
}

func TestVerifyRejectsWrongClaim(t *testing.T) {
	s := newSetup(t, 6, 1, 16, 4)
	_, _, proof := s.prove(t)

	if _, err := s.verify(proof, s.claim.Add(field.One())); !errors.Is(err, ErrVerify) {
		t.Errorf("expected ErrVerify, got %v", err)
	}
}

func TestVerifyRejectsTamperedTranscript(t *testing.T) {
	s := newSetup(t, 6, 1, 16, 4)
	_, _, proof := s.prove(t)

	t.Run("truncated", func(t *testing.T) {
		if _, err := s.verify(proof[:len(proof)-1], s.claim); !errors.Is(err, ErrVerify) {
			t.Errorf("expected ErrVerify, got %v", err)
		}
	})

	t.Run("trailing", func(t *testing.T) {
		extended := append(append([]byte(nil), proof...), 0)
		if _, err := s.verify(extended, s.claim); !errors.Is(err, ErrVerify) {
			t.Errorf("expected ErrVerify, got %v", err)
		}
	})

	t.Run("flipped_opening", func(t *testing.T) {
		tampered := append([]byte(nil), proof...)
		tampered[len(tampered)-40] ^= 0x01
		if _, err := s.verify(tampered, s.claim); !errors.Is(err, ErrVerify) {
			t.Errorf("expected ErrVerify, got %v", err)
		}
	})
}

func TestProveRejectsBadInput(t *testing.T) {
	s := newSetup(t, 4, 1, 8, 2)
	commit, err := s.engine.Commit(s.params, s.ctx, s.values)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("wrong_claim", func(t *testing.T) {
		_, err := s.engine.Prove(s.params, s.ctx, commit.Committed, s.values, s.point, s.claim.Add(field.One()), transcript.NewProver())
		if !errors.Is(err, ErrProve) {
			t.Errorf("expected ErrProve, got %v", err)
		}
	})

	t.Run("short_point", func(t *testing.T) {
		_, err := s.engine.Prove(s.params, s.ctx, commit.Committed, s.values, s.point[1:], s.claim, transcript.NewProver())
		if !errors.Is(err, ErrProve) {
			t.Errorf("expected ErrProve, got %v", err)
		}
	})

	t.Run("released", func(t *testing.T) {
		other, err := s.engine.Commit(s.params, s.ctx, s.values)
		if err != nil {
			t.Fatal(err)
		}
		other.Committed.Release()
		_, err = s.engine.Prove(s.params, s.ctx, other.Committed, s.values, s.point, s.claim, transcript.NewProver())
		if !errors.Is(err, ErrReleased) {
			t.Errorf("expected ErrReleased, got %v", err)
		}
		if _, err := other.Committed.Open(0); !errors.Is(err, ErrReleased) {
			t.Errorf("expected ErrReleased from Open, got %v", err)
		}
	})
}

func TestExtraQueryWithLayers(t *testing.T) {
	s := newSetup(t, 6, 1, 16, 4)
	_, out, proof := s.prove(t)

	v, err := s.verify(proof, s.claim)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	layers, err := out.QueryProver.Layers()
	if err != nil {
		t.Fatalf("Layers failed: %v", err)
	}
	if err := v.VerifyLayers(layers); err != nil {
		t.Fatalf("VerifyLayers failed: %v", err)
	}

	for _, index := range []int{0, 1, 63, 64, 127} {
		query, err := out.QueryProver.ProveQuery(index)
		if err != nil {
			t.Fatalf("ProveQuery(%d) failed: %v", index, err)
		}
		if err := v.VerifyQuery(index, out.TerminateCodeword, layers, query); err != nil {
			t.Errorf("VerifyQuery(%d) with layers failed: %v", index, err)
		}
		if err := v.VerifyQuery(index, out.TerminateCodeword, nil, query); err != nil {
			t.Errorf("VerifyQuery(%d) against roots failed: %v", index, err)
		}
	}

	query, err := out.QueryProver.ProveQuery(5)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("wrong_index", func(t *testing.T) {
		if err := v.VerifyQuery(100, out.TerminateCodeword, layers, query); !errors.Is(err, ErrVerify) {
			t.Errorf("expected ErrVerify, got %v", err)
		}
	})

	t.Run("tampered_layer", func(t *testing.T) {
		bad := make([][]merkle.Digest, len(layers))
		for i := range layers {
			bad[i] = append([]merkle.Digest(nil), layers[i]...)
		}
		bad[0][0][0] ^= 1
		if err := v.VerifyLayers(bad); !errors.Is(err, ErrVerify) {
			t.Errorf("expected ErrVerify, got %v", err)
		}
	})

	t.Run("tampered_terminal", func(t *testing.T) {
		terminal := append([]field.B128(nil), out.TerminateCodeword...)
		terminal[0] = terminal[0].Add(field.One())
		if err := v.VerifyQuery(5, terminal, layers, query); !errors.Is(err, ErrVerify) {
			t.Errorf("expected ErrVerify, got %v", err)
		}
	})

	t.Run("out_of_range", func(t *testing.T) {
		if _, err := out.QueryProver.ProveQuery(128); !errors.Is(err, ErrProve) {
			t.Errorf("expected ErrProve, got %v", err)
		}
	})
}

func TestMerkleProveVerify(t *testing.T) {
	s := newSetup(t, 4, 1, 4, 2)
	commit, err := s.engine.Commit(s.params, s.ctx, s.values)
	if err != nil {
		t.Fatal(err)
	}

	for i, value := range commit.Codeword {
		proof, err := s.engine.MerkleProve(commit.Committed, i)
		if err != nil {
			t.Fatalf("MerkleProve(%d) failed: %v", i, err)
		}
		if err := s.engine.MerkleVerify(proof, value, i, commit.Digest); err != nil {
			t.Fatalf("MerkleVerify(%d) failed: %v", i, err)
		}
	}

	proof, err := s.engine.MerkleProve(commit.Committed, 3)
	if err != nil {
		t.Fatal(err)
	}
	wrong := commit.Codeword[3].Add(field.One())
	if err := s.engine.MerkleVerify(proof, wrong, 3, commit.Digest); !errors.Is(err, merkle.ErrInvalidProof) {
		t.Errorf("expected ErrInvalidProof for wrong value, got %v", err)
	}
	if err := s.engine.MerkleVerify(proof, commit.Codeword[3], 4, commit.Digest); !errors.Is(err, merkle.ErrInvalidProof) {
		t.Errorf("expected ErrInvalidProof for wrong index, got %v", err)
	}
	if _, err := s.engine.MerkleProve(commit.Committed, len(commit.Codeword)); !errors.Is(err, merkle.ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	s := newSetup(t, 5, 2, 4, 2)
	codeword, err := Encode(s.params, s.ctx, s.values)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(s.params, s.ctx, codeword)
	if err != nil {
		t.Fatal(err)
	}
	for i := range s.values {
		if !decoded[i].Equal(s.values[i]) {
			t.Fatalf("element %d mismatch", i)
		}
	}

	if _, err := Encode(s.params, s.ctx, s.values[:4]); !errors.Is(err, ErrParams) {
		t.Errorf("expected ErrParams, got %v", err)
	}
	if _, err := Decode(s.params, s.ctx, codeword[:8]); !errors.Is(err, ErrParams) {
		t.Errorf("expected ErrParams, got %v", err)
	}
}

func TestKeccakScheme(t *testing.T) {
	s := newSetup(t, 4, 1, 8, 2)
	s.engine = NewEngine(WithMerkleScheme(merkle.NewScheme(merkle.WithHasher(merkle.Keccak256))))
	_, _, proof := s.prove(t)
	if _, err := s.verify(proof, s.claim); err != nil {
		t.Fatalf("Verify with keccak scheme failed: %v", err)
	}
}
