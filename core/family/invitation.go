package family

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	salt = []byte("shule.core.family.invitation")

	// errors
	errInvalidToken = errors.New("invalid invitation")
	errTokenExpired = errors.New("invitation expired")
)

// tokenGenerator signs portal invitations. A token stops being valid once the
// parent joined (user_id set), when the profile email changes, or after timeout.
type tokenGenerator struct {
	secretKey string
	timeout   time.Duration
	now       func() time.Time
}

// EncodeUID base64 encodes the given profile ID
func EncodeUID(p ParentProfile) string {
	return base64.RawURLEncoding.EncodeToString([]byte(p.ID))
}

// decodeUID base64 decodes given UID
func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// makeToken generates an invitation token for the given profile.
func (g tokenGenerator) makeToken(p ParentProfile) (string, error) {
	return g.makeTokenWithTimestamp(p, numDaysSince2001(g.now()))
}

// verifyToken checks that an invitation token for the given profile is valid.
func (g tokenGenerator) verifyToken(p ParentProfile, token string) error {
	if token == "" {
		return errInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidToken
	}

	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(parts[0])
	if err != nil {
		return errInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	newToken, err := g.makeTokenWithTimestamp(p, ts)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return errInvalidToken
	}

	// check that the timestamp is within limit
	if (numDaysSince2001(g.now()) - ts) > int(g.timeout/(24*time.Hour)) {
		return errTokenExpired
	}
	return nil
}

func (g tokenGenerator) makeTokenWithTimestamp(p ParentProfile, ts int) (string, error) {
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.Itoa(ts)))
	sig, err := g.sign(hashValue(p, ts))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", tsB32, sig), nil
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func (g tokenGenerator) sign(val []byte) (string, error) {
	key := sha256.Sum256(append(append([]byte{}, salt...), g.secretKey...))
	h := hmac.New(sha256.New, key[:])
	if _, err := h.Write(val); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

func hashValue(p ParentProfile, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(p.ID)
	val.WriteString(p.Email)
	val.WriteString(p.UserID)
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
