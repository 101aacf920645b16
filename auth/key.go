package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"io/ioutil"

	"github.com/juju/errors"
)

const (
	pemTypePrivate = "PRIVATE KEY"
	pemTypeEC      = "EC PRIVATE KEY"
	pemTypePublic  = "PUBLIC KEY"
)

func GenerateKey() (*ecdsa.PrivateKey, error) {
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	return k, errors.Annotate(err, "generate key")
}

// ParsePrivateKey accepts PEM or raw DER, PKCS#8 or SEC1.
func ParsePrivateKey(b []byte) (*ecdsa.PrivateKey, error) {
	der := b
	if block, _ := pem.Decode(b); block != nil {
		switch block.Type {
		case pemTypePrivate, pemTypeEC:
		default:
			return nil, errors.NotValidf("private key PEM type=%s", block.Type)
		}
		der = block.Bytes
	}
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		ek, ok := k.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.NotSupportedf("private key type=%T", k)
		}
		return ek, checkCurve(ek.Curve)
	}
	ek, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, errors.Annotate(err, "parse private key")
	}
	return ek, checkCurve(ek.Curve)
}

// ParsePublicKey accepts PEM or DER SubjectPublicKeyInfo.
func ParsePublicKey(b []byte) (*ecdsa.PublicKey, error) {
	der := b
	if block, _ := pem.Decode(b); block != nil {
		if block.Type != pemTypePublic {
			return nil, errors.NotValidf("public key PEM type=%s", block.Type)
		}
		der = block.Bytes
	}
	k, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.Annotate(err, "parse public key")
	}
	ek, ok := k.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.NotSupportedf("public key type=%T", k)
	}
	return ek, checkCurve(ek.Curve)
}

func LoadPrivateKeyFile(path string) (*ecdsa.PrivateKey, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Annotate(err, "private key")
	}
	k, err := ParsePrivateKey(b)
	return k, errors.Annotatef(err, "private key file=%s", path)
}

func LoadPublicKeyFile(path string) (*ecdsa.PublicKey, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Annotate(err, "public key")
	}
	k, err := ParsePublicKey(b)
	return k, errors.Annotatef(err, "public key file=%s", path)
}

// LoadContext reads both key files, intended for one call at process start.
func LoadContext(privatePath, peerPublicPath string) (*Context, error) {
	own, err := LoadPrivateKeyFile(privatePath)
	if err != nil {
		return nil, err
	}
	peer, err := LoadPublicKeyFile(peerPublicPath)
	if err != nil {
		return nil, err
	}
	return NewContext(own, peer)
}

func MarshalPrivateKeyPEM(k *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k)
	if err != nil {
		return nil, errors.Annotate(err, "marshal private key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePrivate, Bytes: der}), nil
}

func MarshalPublicKeyPEM(k *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(k)
	if err != nil {
		return nil, errors.Annotate(err, "marshal public key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePublic, Bytes: der}), nil
}

func checkCurve(c elliptic.Curve) error {
	if c != elliptic.P256() {
		return errors.NotSupportedf("curve=%s", c.Params().Name)
	}
	return nil
}
