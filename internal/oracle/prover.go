package oracle

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"vrflottery/internal/models"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.dedis.ch/kyber/v3/util/random"
)

var suite = bn256.NewSuite()

var ErrProofMismatch = errors.New("random words do not match proof")

// Proof lets anyone holding the oracle's public key check that the words
// delivered for a request were derived from a BLS signature over it.
type Proof struct {
	Message   []byte `json:"message"`
	Signature []byte `json:"signature"`
}

// Prover derives random words from BLS signatures, as the public randomness
// beacon does: the signature is unpredictable without the private key and
// verifiable with the public one.
type Prover struct {
	private kyber.Scalar
	public  kyber.Point
}

func NewProver() *Prover {
	private, public := bls.NewKeyPair(suite, random.New())
	return &Prover{private: private, public: public}
}

// PublicKey returns the marshalled G2 public key.
func (p *Prover) PublicKey() ([]byte, error) {
	return p.public.MarshalBinary()
}

// Prove signs keyHash || requestID || preSeed and expands the signature
// into numWords words.
func (p *Prover) Prove(keyHash string, requestID models.RequestID, preSeed []byte, numWords uint32) ([]*big.Int, *Proof, error) {
	msg := proofMessage(keyHash, requestID, preSeed)
	sig, err := bls.Sign(suite, p.private, msg)
	if err != nil {
		return nil, nil, fmt.Errorf("sign request %d: %w", requestID, err)
	}
	return expand(sig, numWords), &Proof{Message: msg, Signature: sig}, nil
}

// VerifyProof checks proof against publicKey and that words are its expansion.
func VerifyProof(publicKey []byte, proof *Proof, words []*big.Int) error {
	if proof == nil {
		return errors.New("missing proof")
	}
	pub := suite.G2().Point()
	if err := pub.UnmarshalBinary(publicKey); err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	if err := bls.Verify(suite, pub, proof.Message, proof.Signature); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	expected := expand(proof.Signature, uint32(len(words)))
	for i := range words {
		if words[i] == nil || words[i].Cmp(expected[i]) != 0 {
			return fmt.Errorf("%w: word %d", ErrProofMismatch, i)
		}
	}
	return nil
}

func proofMessage(keyHash string, requestID models.RequestID, preSeed []byte) []byte {
	msg := make([]byte, 0, len(keyHash)+8+len(preSeed))
	msg = append(msg, keyHash...)
	msg = binary.BigEndian.AppendUint64(msg, uint64(requestID))
	return append(msg, preSeed...)
}

func expand(sig []byte, n uint32) []*big.Int {
	words := make([]*big.Int, n)
	var idx [4]byte
	for i := uint32(0); i < n; i++ {
		binary.BigEndian.PutUint32(idx[:], i)
		h := sha256.New()
		h.Write(sig)
		h.Write(idx[:])
		words[i] = new(big.Int).SetBytes(h.Sum(nil))
	}
	return words
}
