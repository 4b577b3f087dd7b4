// Package auth manages per-tenant API credentials. A full secret is
// "vvtts_" followed by 32 hex characters; its public key_id is the last 8
// characters of the token. Records store only the sha256 of the secret.
//
// Usage counters are kept out of the record in a separate broker hash and
// updated with atomic increments, so concurrent requests never lose counts
// to a read-modify-write race.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vietvoice/vvtts/pkg/broker"
	"github.com/vietvoice/vvtts/pkg/tts"
)

const (
	// KeyPrefix is the fixed prefix of every full secret.
	KeyPrefix = "vvtts_"

	// tokenLength is the number of hex characters after the prefix.
	tokenLength = 32

	// keyIDLength is the number of trailing token characters forming the
	// public identifier.
	keyIDLength = 8

	recordPrefix = "apikey:"
	usageSuffix  = ":usage"

	fieldRequests     = "requests_count"
	fieldAudioSeconds = "audio_seconds"
)

// KeyInfo is the public view of a credential: the record fields plus the
// current usage counters. The secret itself is never stored or returned
// after creation.
type KeyInfo struct {
	KeyID         string  `json:"key_id"`
	Name          string  `json:"name"`
	CreatedAt     float64 `json:"created_at"`
	RequestsCount int64   `json:"requests_count"`
	AudioSeconds  float64 `json:"audio_seconds"`
}

// record is the JSON stored at apikey:{key_id}.
type record struct {
	KeyID       string  `json:"key_id"`
	Name        string  `json:"name"`
	CreatedAt   float64 `json:"created_at"`
	FullKeyHash string  `json:"full_key_hash"`
}

// Manager stores and validates credentials in the broker.
type Manager struct {
	broker broker.Broker
}

// NewManager returns a Manager backed by b.
func NewManager(b broker.Broker) *Manager {
	return &Manager{broker: b}
}

// GenerateKey creates a fresh full secret and its public key id.
func GenerateKey() (fullKey, keyID string, err error) {
	buf := make([]byte, tokenLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("auth: generate key: %w", err)
	}
	token := hex.EncodeToString(buf)
	return KeyPrefix + token, token[len(token)-keyIDLength:], nil
}

// KeyIDFromFullKey extracts the public id from a full secret. Returns ""
// when the prefix or token length does not match the key format.
func KeyIDFromFullKey(fullKey string) string {
	if !strings.HasPrefix(fullKey, KeyPrefix) {
		return ""
	}
	token := fullKey[len(KeyPrefix):]
	if len(token) != tokenLength {
		return ""
	}
	return token[len(token)-keyIDLength:]
}

// hashKey returns the hex sha256 of a full secret.
func hashKey(fullKey string) string {
	sum := sha256.Sum256([]byte(fullKey))
	return hex.EncodeToString(sum[:])
}

// Create stores a new credential under name and returns the full secret —
// the only time it is ever visible — together with its info.
func (m *Manager) Create(ctx context.Context, name string) (string, *KeyInfo, error) {
	fullKey, keyID, err := GenerateKey()
	if err != nil {
		return "", nil, err
	}

	rec := record{
		KeyID:       keyID,
		Name:        name,
		CreatedAt:   tts.Now(),
		FullKeyHash: hashKey(fullKey),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", nil, fmt.Errorf("auth: marshal record: %w", err)
	}

	// Credentials are permanent until deleted; no TTL.
	if err := m.broker.Set(ctx, recordPrefix+keyID, string(data), 0); err != nil {
		return "", nil, fmt.Errorf("auth: store key %s: %w", keyID, err)
	}

	return fullKey, &KeyInfo{
		KeyID:     keyID,
		Name:      name,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// Validate checks a full secret and returns its info when it matches a
// stored credential. Returns (nil, nil) for any malformed, unknown, or
// mismatching secret; the error return is reserved for broker failures.
func (m *Manager) Validate(ctx context.Context, fullKey string) (*KeyInfo, error) {
	keyID := KeyIDFromFullKey(fullKey)
	if keyID == "" {
		return nil, nil
	}

	data, err := m.broker.Get(ctx, recordPrefix+keyID)
	if errors.Is(err, broker.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: read key %s: %w", keyID, err)
	}

	var rec record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("auth: decode key %s: %w", keyID, err)
	}

	if subtle.ConstantTimeCompare([]byte(rec.FullKeyHash), []byte(hashKey(fullKey))) != 1 {
		return nil, nil
	}

	info := &KeyInfo{
		KeyID:     rec.KeyID,
		Name:      rec.Name,
		CreatedAt: rec.CreatedAt,
	}
	if err := m.loadUsage(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Delete removes a credential and its usage counters by public id. Returns
// false when no such credential exists.
func (m *Manager) Delete(ctx context.Context, keyID string) (bool, error) {
	if _, err := m.broker.Get(ctx, recordPrefix+keyID); errors.Is(err, broker.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("auth: read key %s: %w", keyID, err)
	}
	if err := m.broker.Delete(ctx, recordPrefix+keyID); err != nil {
		return false, fmt.Errorf("auth: delete key %s: %w", keyID, err)
	}
	if err := m.broker.Delete(ctx, recordPrefix+keyID+usageSuffix); err != nil {
		return false, fmt.Errorf("auth: delete usage for %s: %w", keyID, err)
	}
	return true, nil
}

// List returns all credentials with their usage counters, newest first.
func (m *Manager) List(ctx context.Context) ([]KeyInfo, error) {
	keys, err := m.broker.ScanPrefix(ctx, recordPrefix)
	if err != nil {
		return nil, fmt.Errorf("auth: scan keys: %w", err)
	}

	infos := make([]KeyInfo, 0, len(keys))
	for _, k := range keys {
		// The scan also matches the usage hashes living under the same prefix.
		if strings.HasSuffix(k, usageSuffix) {
			continue
		}
		data, err := m.broker.Get(ctx, k)
		if errors.Is(err, broker.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("auth: read %s: %w", k, err)
		}
		var rec record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		info := KeyInfo{
			KeyID:     rec.KeyID,
			Name:      rec.Name,
			CreatedAt: rec.CreatedAt,
		}
		if err := m.loadUsage(ctx, &info); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt > infos[j].CreatedAt
	})
	return infos, nil
}

// IncrementUsage charges one request plus the given audio seconds to the
// credential. Both counters are atomic broker increments and remain correct
// under concurrent calls.
func (m *Manager) IncrementUsage(ctx context.Context, keyID string, audioSeconds float64) error {
	usageKey := recordPrefix + keyID + usageSuffix
	if err := m.broker.HashIncrBy(ctx, usageKey, fieldRequests, 1); err != nil {
		return fmt.Errorf("auth: increment requests for %s: %w", keyID, err)
	}
	if audioSeconds != 0 {
		if err := m.broker.HashIncrByFloat(ctx, usageKey, fieldAudioSeconds, audioSeconds); err != nil {
			return fmt.Errorf("auth: increment audio seconds for %s: %w", keyID, err)
		}
	}
	return nil
}

// loadUsage fills info's counters from the usage hash.
func (m *Manager) loadUsage(ctx context.Context, info *KeyInfo) error {
	usage, err := m.broker.HashGetAll(ctx, recordPrefix+info.KeyID+usageSuffix)
	if err != nil {
		return fmt.Errorf("auth: read usage for %s: %w", info.KeyID, err)
	}
	if v, ok := usage[fieldRequests]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			info.RequestsCount = n
		}
	}
	if v, ok := usage[fieldAudioSeconds]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			info.AudioSeconds = f
		}
	}
	return nil
}
