// Package auth holds the device key pair material used to sign outbound frames
// and verify inbound ones. Key material is loaded once at start and never changes.
package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"math/big"

	"github.com/juju/errors"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// P-256 r||s, each scalar 32 bytes big-endian.
const (
	scalarLen    = 32
	SignatureLen = 2 * scalarLen
)

var ErrCrypto = errors.New("crypto")

type Context struct {
	own  *ecdsa.PrivateKey
	peer *ecdsa.PublicKey
	rand io.Reader
}

func NewContext(own *ecdsa.PrivateKey, peer *ecdsa.PublicKey) (*Context, error) {
	if own == nil || peer == nil {
		return nil, errors.NotValidf("auth context without keys")
	}
	if own.Curve != elliptic.P256() {
		return nil, errors.NotValidf("private key curve=%s", own.Curve.Params().Name)
	}
	if peer.Curve != elliptic.P256() {
		return nil, errors.NotValidf("peer public key curve=%s", peer.Curve.Params().Name)
	}
	return &Context{own: own, peer: peer, rand: rand.Reader}, nil
}

func (self *Context) PublicKey() *ecdsa.PublicKey { return &self.own.PublicKey }

// Sign returns fixed length signature of SHA-256(payload).
func (self *Context) Sign(payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	der, err := ecdsa.SignASN1(self.rand, self.own, digest[:])
	if err != nil {
		return nil, errors.Wrapf(err, ErrCrypto, "sign")
	}
	sig, err := derToFixed(der)
	if err != nil {
		return nil, errors.Wrapf(err, ErrCrypto, "sign")
	}
	return sig, nil
}

// Verify checks signature against the peer key.
// Malformed signature is reported as plain false.
func (self *Context) Verify(payload []byte, sig []byte) (bool, error) {
	if len(sig) != SignatureLen {
		return false, nil
	}
	der, err := fixedToDER(sig)
	if err != nil {
		return false, errors.Wrapf(err, ErrCrypto, "verify")
	}
	digest := sha256.Sum256(payload)
	return ecdsa.VerifyASN1(self.peer, digest[:], der), nil
}

func derToFixed(der []byte) ([]byte, error) {
	var r, s big.Int
	input := cryptobyte.String(der)
	var inner cryptobyte.String
	if !input.ReadASN1(&inner, asn1.SEQUENCE) || !input.Empty() ||
		!inner.ReadASN1Integer(&r) || !inner.ReadASN1Integer(&s) || !inner.Empty() {
		return nil, errors.NotValidf("DER signature")
	}
	if r.Sign() <= 0 || s.Sign() <= 0 || r.BitLen() > 8*scalarLen || s.BitLen() > 8*scalarLen {
		return nil, errors.NotValidf("signature scalar size")
	}
	sig := make([]byte, SignatureLen)
	r.FillBytes(sig[:scalarLen])
	s.FillBytes(sig[scalarLen:])
	return sig, nil
}

func fixedToDER(sig []byte) ([]byte, error) {
	r := new(big.Int).SetBytes(sig[:scalarLen])
	s := new(big.Int).SetBytes(sig[scalarLen:])
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	return b.Bytes()
}
