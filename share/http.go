package share

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ppopth/go-das/das"
	"github.com/ppopth/go-das/merkle"
)

// CommitmentInfo describes a stored commitment
type CommitmentInfo struct {
	Digest         string `json:"digest"`
	CodewordLength int    `json:"codeword_length"`
	MessageLength  int    `json:"message_length"`
	LogInvRate     int    `json:"log_inv_rate"`
}

// Sample is a share with its Merkle path, hex encoded
type Sample struct {
	Index    int      `json:"index"`
	Value    string   `json:"value"`
	Siblings []string `json:"siblings"`
}

// Proof decodes the sample into an inclusion proof
func (s *Sample) Proof() (*merkle.Proof, error) {
	value, err := hex.DecodeString(s.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	siblings := make([][]byte, len(s.Siblings))
	for i, h := range s.Siblings {
		if siblings[i], err = hex.DecodeString(h); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	return decodeProof(s.Index, value, siblings)
}

// NewHTTPHandler exposes the store's commitments and shares over HTTP
func NewHTTPHandler(store *Store) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/commitments", listCommitments(store))
	router.GET("/commitments/:digest", getCommitment(store))
	router.GET("/commitments/:digest/samples/:index", getSample(store))
	return router
}

func parseDigest(s string) (merkle.Digest, error) {
	var digest merkle.Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return digest, fmt.Errorf("invalid digest: %v", err)
	}
	if len(b) != merkle.DigestSize {
		return digest, fmt.Errorf("digest has %d bytes, expected %d", len(b), merkle.DigestSize)
	}
	copy(digest[:], b)
	return digest, nil
}

func commitmentInfo(digest merkle.Digest, e *Entry) CommitmentInfo {
	return CommitmentInfo{
		Digest:         hex.EncodeToString(digest[:]),
		CodewordLength: e.Params.CodeLen(),
		MessageLength:  e.Params.MsgLen(),
		LogInvRate:     e.Params.LogInvRate(),
	}
}

func listCommitments(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		infos := make([]CommitmentInfo, 0)
		for _, d := range store.Digests() {
			if e, ok := store.Get(d); ok {
				infos = append(infos, commitmentInfo(d, e))
			}
		}
		c.JSON(http.StatusOK, infos)
	}
}

func getCommitment(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		digest, err := parseDigest(c.Param("digest"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		e, ok := store.Get(digest)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": ErrUnknownCommitment.Error()})
			return
		}
		c.JSON(http.StatusOK, commitmentInfo(digest, e))
	}
}

func getSample(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		digest, err := parseDigest(c.Param("digest"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid index: %v", err)})
			return
		}

		proof, err := store.Open(digest, index)
		switch {
		case errors.Is(err, ErrUnknownCommitment):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		case errors.Is(err, das.ErrOutOfRange):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		value, siblings := encodeProof(proof)
		sample := Sample{
			Index:    index,
			Value:    hex.EncodeToString(value),
			Siblings: make([]string, len(siblings)),
		}
		for i, s := range siblings {
			sample.Siblings[i] = hex.EncodeToString(s)
		}
		c.JSON(http.StatusOK, sample)
	}
}
