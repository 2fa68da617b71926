package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// SetSessionKeyLogger overrides the package logger used by publish/resolve,
// mirroring the teacher's SetWalletLogger injection pattern.
func SetSessionKeyLogger(l *log.Logger) { sessionKeyLogger = l }

var sessionKeyLogger = log.New()

// defaultSkewSecs bounds how far into the future a binding timestamp may sit
// before it is rejected outright (spec §4.3 step 3).
const defaultSkewSecs = 60

// PublishSessionKey computes and writes a v=1 session-key binding record
// (spec §3, §4.3, §6) for deviceID, binding x25519Pub to the identity's
// Ed25519 public key.
func PublishSessionKey(ctx context.Context, dir DirectoryStorage, id Identity, x25519Pub []byte, deviceID string, now time.Time) error {
	if len(x25519Pub) != 32 {
		return NewError(CodeInvalidData, "x25519 public key must be 32 bytes")
	}
	sig := id.SignBinding(x25519Pub, deviceID)
	record := formatSessionKeyRecord(x25519Pub, sig, now.Unix())

	owner := EncodePubZ32(id.PublicKey[:])
	if err := dir.Put(ctx, owner, sessionKeyPath(deviceID), []byte(record)); err != nil {
		return WrapError(CodeStorage, "publish session key", err)
	}
	sessionKeyLogger.WithFields(log.Fields{"owner": owner, "device_id": deviceID}).Info("published session-key binding")
	return nil
}

func formatSessionKeyRecord(x25519Pub, sig []byte, ts int64) string {
	return fmt.Sprintf("v=1;k=%s;sig=%s;ts=%d",
		base64.StdEncoding.EncodeToString(x25519Pub),
		base64.StdEncoding.EncodeToString(sig),
		ts,
	)
}

// sessionKeyRecord is the parsed form of a v=1 binding record.
type sessionKeyRecord struct {
	version int
	key     []byte
	sig     []byte
	ts      int64
}

func parseSessionKeyRecord(s string) (sessionKeyRecord, error) {
	var rec sessionKeyRecord
	fields := strings.Split(strings.TrimSpace(s), ";")
	seen := map[string]string{}
	for _, f := range fields {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 {
			return rec, NewError(CodeInvalidData, "malformed session-key field")
		}
		seen[kv[0]] = kv[1]
	}
	v, ok := seen["v"]
	if !ok {
		return rec, NewError(CodeInvalidData, "missing v field")
	}
	version, err := strconv.Atoi(v)
	if err != nil {
		return rec, NewError(CodeInvalidData, "malformed v field")
	}
	if version != 1 {
		// Open question in spec §9: forward-compat for v>1 is unspecified.
		// We refuse to guess and reject instead.
		return rec, NewError(CodeInvalidData, fmt.Sprintf("unsupported session-key record version %d", version))
	}
	rec.version = version

	k, ok := seen["k"]
	if !ok {
		return rec, NewError(CodeInvalidData, "missing k field")
	}
	key, err := base64.StdEncoding.DecodeString(k)
	if err != nil || len(key) != 32 {
		return rec, NewError(CodeInvalidData, "malformed k field")
	}
	rec.key = key

	sig, ok := seen["sig"]
	if !ok {
		return rec, NewError(CodeInvalidData, "missing sig field")
	}
	sigBytes, err := base64.StdEncoding.DecodeString(sig)
	if err != nil || len(sigBytes) != 64 {
		return rec, NewError(CodeInvalidData, "malformed sig field")
	}
	rec.sig = sigBytes

	ts, ok := seen["ts"]
	if !ok {
		return rec, NewError(CodeInvalidData, "missing ts field")
	}
	tsVal, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return rec, NewError(CodeInvalidData, "malformed ts field")
	}
	rec.ts = tsVal
	return rec, nil
}

// ResolveSessionKey fetches, parses, and verifies a peer's published
// session-key binding, enforcing freshness against maxAgeSecs (0 disables
// the freshness check) and rejecting far-future timestamps (spec §4.3).
func ResolveSessionKey(ctx context.Context, dir DirectoryStorage, ownerEd25519Pub []byte, deviceID string, maxAgeSecs int64, now time.Time) ([32]byte, error) {
	var out [32]byte
	owner := EncodePubZ32(ownerEd25519Pub)
	data, found, err := dir.Get(ctx, owner, sessionKeyPath(deviceID))
	if err != nil {
		return out, WrapError(CodeStorage, "fetch session-key record", err)
	}
	if !found {
		return out, ErrNotFound
	}
	rec, err := parseSessionKeyRecord(string(data))
	if err != nil {
		return out, err
	}

	nowUnix := now.Unix()
	if rec.ts > nowUnix+defaultSkewSecs {
		return out, NewError(CodeValidationFailed, "session-key timestamp is in the future")
	}
	if maxAgeSecs > 0 && nowUnix-rec.ts > maxAgeSecs {
		return out, NewError(CodeSessionExpired, "session-key binding is stale")
	}

	if !VerifyBinding(ownerEd25519Pub, rec.key, deviceID, rec.sig) {
		return out, ErrAuth
	}
	copy(out[:], rec.key)
	return out, nil
}
