package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastConfig keeps the suite quick; parameter checks still apply.
func fastConfig() Config {
	return Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func newHasher(t *testing.T, mutate func(*Config)) *Argon2 {
	t.Helper()
	cfg := fastConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := NewArgon2(cfg)
	require.NoError(t, err)
	return h
}

func TestHashProducesVerifiablePHC(t *testing.T) {
	h := newHasher(t, nil)

	hash, err := h.Hash("correct-horse-battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"), hash)

	ok, err := h.Verify("correct-horse-battery", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("incorrect-horse-battery", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := h.Hash("correct-horse-battery")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salts must differ")
}

func TestHashLengthLimits(t *testing.T) {
	h := newHasher(t, func(c *Config) { c.MaxPasswordBytes = 64 })

	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"empty", "", ErrPasswordTooShort},
		{"below minimum", "short", ErrPasswordTooShort},
		{"at minimum", strings.Repeat("m", MinPasswordBytes), nil},
		{"at maximum", strings.Repeat("x", 64), nil},
		{"above maximum", strings.Repeat("x", 65), ErrPasswordTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Hash(tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDefaultMaxPasswordBytes(t *testing.T) {
	h := newHasher(t, nil)

	_, err := h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes))
	assert.NoError(t, err)
	_, err = h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestVerifyRejectsOverlongInputBeforeHashing(t *testing.T) {
	h := newHasher(t, func(c *Config) { c.MaxPasswordBytes = 64 })
	hash, err := h.Hash("sign-in-password")
	require.NoError(t, err)

	_, err = h.Verify(strings.Repeat("c", 65), hash)
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestVerifyRejectsBadHashes(t *testing.T) {
	h := newHasher(t, nil)
	good, err := h.Hash("seeded-password")
	require.NoError(t, err)

	tests := map[string]string{
		"not phc":       "not-a-phc-hash",
		"bcrypt":        "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy",
		"wrong version": strings.Replace(good, "$v=19$", "$v=18$", 1),
		"argon2i":       strings.Replace(good, "$argon2id$", "$argon2i$", 1),
		"bad params":    strings.Replace(good, "m=8192,t=1,p=1", "m=x,t=1,p=1", 1),
		"truncated":     good[:strings.LastIndexByte(good, '$')],
	}
	for name, hash := range tests {
		t.Run(name, func(t *testing.T) {
			ok, err := h.Verify("seeded-password", hash)
			assert.ErrorIs(t, err, ErrInvalidHash)
			assert.False(t, ok)
		})
	}
}

func TestVerifyAcceptsPaddedSegments(t *testing.T) {
	h := newHasher(t, nil)
	hash, err := h.Hash("padded-segments")
	require.NoError(t, err)

	parts := strings.Split(hash, "$")
	for _, i := range []int{4, 5} {
		for len(parts[i])%4 != 0 {
			parts[i] += "="
		}
	}
	ok, err := h.Verify("padded-segments", strings.Join(parts, "$"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newHasher(t, nil)
	strong := newHasher(t, func(c *Config) { c.Memory = 16 * 1024; c.Time = 2 })

	weakHash, err := weak.Hash("rehash-on-login")
	require.NoError(t, err)
	strongHash, err := strong.Hash("rehash-on-login")
	require.NoError(t, err)

	upgrade, err := strong.NeedsUpgrade(weakHash)
	require.NoError(t, err)
	assert.True(t, upgrade)

	upgrade, err = strong.NeedsUpgrade(strongHash)
	require.NoError(t, err)
	assert.False(t, upgrade)

	_, err = strong.NeedsUpgrade("garbage")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestConfigValidation(t *testing.T) {
	_, err := NewArgon2(DefaultConfig())
	require.NoError(t, err)

	bad := map[string]func(*Config){
		"max below minimum": func(c *Config) { c.MaxPasswordBytes = 4 },
		"zero time":         func(c *Config) { c.Time = 0 },
		"zero parallelism":  func(c *Config) { c.Parallelism = 0 },
		"short salt":        func(c *Config) { c.SaltLength = 4 },
		"short key":         func(c *Config) { c.KeyLength = 8 },
	}
	for name, mutate := range bad {
		t.Run(name, func(t *testing.T) {
			cfg := fastConfig()
			mutate(&cfg)
			_, err := NewArgon2(cfg)
			assert.Error(t, err)
		})
	}
}
