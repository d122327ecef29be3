package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// SignatureHeader carries the HMAC-SHA256 of the webhook body
const SignatureHeader = "X-Hub-Signature"

var (
	errInvalidSignature = errors.New("signature verification failed")
	errRateLimited      = errors.New("rate limit exceeded")
)

// SecurityValidator verifies webhook signatures and limits request rates per source
type SecurityValidator struct {
	secret []byte

	mu       sync.Mutex // guards get-or-create on limiters
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewSecurityValidator creates a validator. An empty secret disables signature
// checks; requestsPerMin <= 0 disables rate limiting.
func NewSecurityValidator(secret string, requestsPerMin int) *SecurityValidator {
	v := &SecurityValidator{secret: []byte(secret)}
	if requestsPerMin > 0 {
		v.limiters = expirable.NewLRU[string, *rate.Limiter](1000, nil, 5*time.Minute)
		v.limit = rate.Limit(float64(requestsPerMin) / 60.0)
		v.burst = max(1, requestsPerMin/10)
	}
	return v
}

// SignatureRequired reports whether requests must be signed
func (v *SecurityValidator) SignatureRequired() bool {
	return len(v.secret) > 0
}

// ValidateSignature checks a "sha256=<hex>" signature of payload
func (v *SecurityValidator) ValidateSignature(payload []byte, signature string) error {
	if !v.SignatureRequired() {
		return nil
	}

	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return fmt.Errorf("%w: invalid signature format", errInvalidSignature)
	}
	expected, err := hex.DecodeString(hexSig)
	if err != nil {
		return fmt.Errorf("%w: invalid signature hex encoding", errInvalidSignature)
	}

	if !hmac.Equal(expected, Sign(v.secret, payload)) {
		return errInvalidSignature
	}
	return nil
}

// Allow consumes one token of source's bucket
func (v *SecurityValidator) Allow(source string) error {
	if v.limiters == nil {
		return nil
	}

	if !v.limiter(source).Allow() {
		return fmt.Errorf("%w for %s", errRateLimited, source)
	}
	return nil
}

func (v *SecurityValidator) limiter(source string) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()

	limiter, ok := v.limiters.Get(source)
	if !ok {
		limiter = rate.NewLimiter(v.limit, v.burst)
		v.limiters.Add(source, limiter)
	}
	return limiter
}

// Sign computes the HMAC-SHA256 of payload
func Sign(secret, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
