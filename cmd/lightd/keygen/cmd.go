// Generate device key pair: PREFIX.pem (private, PKCS8) and PREFIX.pub.pem (to give server).
package keygen

import (
	"context"
	"flag"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/lightd/auth"
	"github.com/temoto/lightd/cmd/lightd/subcmd"
	"github.com/temoto/lightd/internal/state"
)

const defaultPrefix = "device"

var Mod = subcmd.Mod{Name: "keygen", Usage: "keygen [PREFIX] create P-256 key pair", Main: Main, SkipConfig: true}

func Main(ctx context.Context, _ *state.Config) error {
	g := state.GetGlobal(ctx)
	prefix := flag.Arg(1)
	if prefix == "" {
		prefix = defaultPrefix
	}
	priv, pub, err := Generate(prefix)
	if err != nil {
		return err
	}
	g.Log.Infof("private=%s public=%s", priv, pub)
	return nil
}

// Generate never overwrites existing files.
func Generate(prefix string) (privPath, pubPath string, err error) {
	privPath, pubPath = prefix+".pem", prefix+".pub.pem"
	k, err := auth.GenerateKey()
	if err != nil {
		return "", "", err
	}
	privPEM, err := auth.MarshalPrivateKeyPEM(k)
	if err != nil {
		return "", "", err
	}
	pubPEM, err := auth.MarshalPublicKeyPEM(&k.PublicKey)
	if err != nil {
		return "", "", err
	}
	if err = writeNew(privPath, privPEM, 0o600); err != nil {
		return "", "", err
	}
	if err = writeNew(pubPath, pubPEM, 0o644); err != nil {
		_ = os.Remove(privPath)
		return "", "", err
	}
	return privPath, pubPath, nil
}

func writeNew(path string, b []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return errors.Annotatef(err, "keygen path=%s", path)
	}
	if _, err = f.Write(b); err != nil {
		f.Close()
		return errors.Annotatef(err, "keygen write path=%s", path)
	}
	return errors.Annotatef(f.Close(), "keygen close path=%s", path)
}
