package loopoutrpc

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/macaroon-bakery.v2/bakery/checkers"
	macaroon "gopkg.in/macaroon.v2"

	"github.com/lightninglabs/loopout/swaperrors"
)

const macaroonRootKeyLen = 32

// macaroonTTL bounds how long a baked macaroon remains valid, via a
// first-party time-before caveat the same way lnd's own macaroon service
// bounds session macaroons, so a leaked credential doesn't grant access
// forever.
const macaroonTTL = 30 * 24 * time.Hour

// macaroonChecker gates every request behind possession of a macaroon
// derived from the server's root key, the same bearer-credential model lnd
// uses for its own RPC surface (lnd/macaroons), simplified here to a single
// admin macaroon whose only caveat is a time-before expiry (macaroonTTL)
// rather than a bolt-backed store of per-permission bakeries.
type macaroonChecker struct {
	rootKey []byte
}

// newMacaroonChecker loads the hex-encoded root key at path, generating and
// persisting a fresh one on first run. Baked macaroons are not persisted.
func newMacaroonChecker(path string) (*macaroonChecker, error) {
	rootKey, err := loadOrCreateRootKey(path)
	if err != nil {
		return nil, err
	}

	return &macaroonChecker{rootKey: rootKey}, nil
}

func loadOrCreateRootKey(path string) ([]byte, error) {
	existing, err := os.ReadFile(path)
	if err == nil {
		decoded, err := hex.DecodeString(strings.TrimSpace(string(existing)))
		if err != nil {
			return nil, swaperrors.Wrap(swaperrors.KindConfigFailure, err)
		}
		return decoded, nil
	}
	if !os.IsNotExist(err) {
		return nil, swaperrors.Wrap(swaperrors.KindConfigFailure, err)
	}

	rootKey := make([]byte, macaroonRootKeyLen)
	if _, err := io.ReadFull(rand.Reader, rootKey); err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindConfigFailure, err)
	}

	encoded := hex.EncodeToString(rootKey)
	if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindConfigFailure, err)
	}

	log.Infof("generated new macaroon root key at %s", path)

	return rootKey, nil
}

// Bake mints a fresh admin macaroon, valid for macaroonTTL, that clients can
// present as a bearer credential, for the operator to hand out alongside
// ListenAddr.
func (m *macaroonChecker) Bake() (*macaroon.Macaroon, error) {
	mac, err := macaroon.New(m.rootKey, []byte("admin"), "loopout", macaroon.LatestVersion)
	if err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindConfigFailure, err)
	}

	expiry := checkers.TimeBeforeCaveat(time.Now().Add(macaroonTTL))
	if err := mac.AddFirstPartyCaveat([]byte(expiry.Condition)); err != nil {
		return nil, swaperrors.Wrap(swaperrors.KindConfigFailure, err)
	}

	return mac, nil
}

// BakeHex bakes a fresh macaroon and hex-encodes it, ready to drop straight
// into an Authorization: Macaroon <hex> header.
func (m *macaroonChecker) BakeHex() (string, error) {
	mac, err := m.Bake()
	if err != nil {
		return "", err
	}

	raw, err := mac.MarshalBinary()
	if err != nil {
		return "", swaperrors.Wrap(swaperrors.KindConfigFailure, err)
	}

	return hex.EncodeToString(raw), nil
}

// middleware rejects any request that doesn't carry a valid macaroon in its
// Authorization header, as "Authorization: Macaroon <hex>".
func (m *macaroonChecker) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.verify(r); err != nil {
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *macaroonChecker) verify(r *http.Request) error {
	header := r.Header.Get("Authorization")
	const prefix = "Macaroon "
	if !strings.HasPrefix(header, prefix) {
		return swaperrors.New(swaperrors.KindUnauthorized,
			"missing macaroon credential")
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return swaperrors.Wrap(swaperrors.KindUnauthorized, err)
	}

	var mac macaroon.Macaroon
	if err := mac.UnmarshalBinary(raw); err != nil {
		return swaperrors.Wrap(swaperrors.KindUnauthorized, err)
	}

	if err := mac.Verify(m.rootKey, checkTimeBefore, nil); err != nil {
		return swaperrors.Wrap(swaperrors.KindUnauthorized, err)
	}

	return nil
}

// checkTimeBefore enforces the single first-party caveat Bake adds: the
// macaroon-bakery.v2 time-before condition minted by checkers.
// TimeBeforeCaveat. Any other caveat fails closed, since this server never
// bakes one.
func checkTimeBefore(caveat string) error {
	cond, arg, err := checkers.ParseCaveat(caveat)
	if err != nil {
		return err
	}
	if cond != checkers.CondTimeBefore {
		return swaperrors.New(swaperrors.KindUnauthorized, "unrecognized caveat")
	}

	expiry, err := time.Parse(time.RFC3339Nano, arg)
	if err != nil {
		return swaperrors.Wrap(swaperrors.KindUnauthorized, err)
	}
	if !time.Now().Before(expiry) {
		return swaperrors.New(swaperrors.KindUnauthorized, "macaroon expired")
	}

	return nil
}
