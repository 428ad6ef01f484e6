package oidc

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// DefaultKeySetTTL is how long a fetched JWKS document is reused before a
// refresh is attempted.
const DefaultKeySetTTL = time.Hour

// ErrKeyNotFound is returned when no key in the current set matches the
// requested kid.
var ErrKeyNotFound = errors.New("signing key not found in key set")

// FetchFunc retrieves the raw JWKS document from the identity provider.
type FetchFunc func() ([]byte, error)

// HTTPFetch returns a FetchFunc that GETs the JWKS document from url.
func HTTPFetch(url string) FetchFunc {
	client := &http.Client{Timeout: 10 * time.Second}
	return func() ([]byte, error) {
		resp, err := client.Get(url)
		if err != nil {
			return nil, fmt.Errorf("fetch jwks: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
		}
		buf, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read jwks body: %w", err)
		}
		return buf, nil
	}
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeySet caches the provider's RSA public keys, refreshing via fetch when the
// cache is older than ttl. Lookups for a kid missing from a fresh cache do NOT
// force an early refetch; the stale-kid case waits for the TTL to lapse.
type KeySet struct {
	fetch FetchFunc
	ttl   time.Duration

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	nowFn     func() time.Time
}

// NewKeySet creates a KeySet with the given fetch function. A ttl of zero
// means DefaultKeySetTTL.
func NewKeySet(fetch FetchFunc, ttl time.Duration) *KeySet {
	if ttl <= 0 {
		ttl = DefaultKeySetTTL
	}
	return &KeySet{
		fetch: fetch,
		ttl:   ttl,
		nowFn: time.Now,
	}
}

// LookupKey returns the RSA public key for kid, refreshing the cached set
// first when it has expired or was never loaded.
func (ks *KeySet) LookupKey(kid string) (*rsa.PublicKey, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	now := ks.nowFn()
	if ks.keys == nil || now.Sub(ks.fetchedAt) >= ks.ttl {
		if err := ks.refreshLocked(); err != nil {
			// Keep serving the stale cache if we have one.
			if ks.keys == nil {
				return nil, err
			}
		} else {
			ks.fetchedAt = now
		}
	}

	key, ok := ks.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}
	return key, nil
}

func (ks *KeySet) refreshLocked() error {
	raw, err := ks.fetch()
	if err != nil {
		return err
	}

	var doc jwksDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaKeyFromJWK(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	ks.keys = keys
	return nil
}

// rsaKeyFromJWK builds an *rsa.PublicKey from the base64url modulus and
// exponent of a JWK entry.
func rsaKeyFromJWK(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, errors.New("invalid exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
