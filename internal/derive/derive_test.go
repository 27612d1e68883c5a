package derive

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("correct horse battery staple")

func TestDeriveSecureDeterministic(t *testing.T) {
	a, err := Derive(testKey, "github.com", 1, ModeSecure, 24)
	require.NoError(t, err)
	b, err := Derive(testKey, "github.com", 1, ModeSecure, 24)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, MinOutput, "short requests are padded up to MinOutput")
}

func TestDeriveSecureHonoursRequiredLength(t *testing.T) {
	m, err := Derive(testKey, "github.com", 1, ModeSecure, 200)
	require.NoError(t, err)
	assert.Len(t, m, 200)
}

func TestDeriveSecureInputsMatter(t *testing.T) {
	base, err := Derive(testKey, "github.com", 1, ModeSecure, 0)
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     []byte
		site    string
		counter int
	}{
		{"other site", testKey, "gitlab.com", 1},
		{"other counter", testKey, "github.com", 2},
		{"other key", []byte("another master key"), "github.com", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Derive(tt.key, tt.site, tt.counter, ModeSecure, 0)
			require.NoError(t, err)
			assert.False(t, bytes.Equal(base, m))
		})
	}
}

func TestDeriveCaseInsensitiveSite(t *testing.T) {
	a, err := Derive(testKey, "GitHub.com", 3, ModeSecure, 0)
	require.NoError(t, err)
	b, err := Derive(testKey, "github.com", 3, ModeSecure, 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSaltSeparatesSiteAndCounter(t *testing.T) {
	// "a1" with counter 1 must not collide with "a" with counter 11.
	assert.NotEqual(t, Salt("a1", 1), Salt("a", 11))
	assert.Equal(t, Salt("Example.ORG", 7), Salt("example.org", 7))
	assert.Len(t, Salt("x", 1), 32)
}

func TestDeriveSimpleIsLiteral(t *testing.T) {
	m, err := Derive([]byte("master"), "local-dev", 1, ModeSimple, 0)
	require.NoError(t, err)
	assert.Equal(t, "master!local-dev", string(m))

	m, err = Derive([]byte("master"), "GitHub.com", 9, ModeSimple, 0)
	require.NoError(t, err)
	assert.Equal(t, "master!GitHub.com", string(m), "simple mode keeps the typed case")
}

func TestDeriveErrors(t *testing.T) {
	_, err := Derive(nil, "github.com", 1, ModeSimple, 0)
	assert.ErrorIs(t, err, ErrEmptyMasterKey)

	_, err = Derive(nil, "github.com", 1, ModeSecure, 0)
	assert.ErrorIs(t, err, ErrInvalidParameters)
	assert.ErrorIs(t, err, ErrEmptyMasterKey)

	_, err = Derive(testKey, "", 1, ModeSecure, 0)
	assert.ErrorIs(t, err, ErrEmptySite)

	_, err = Derive(testKey, "github.com", 0, ModeSecure, 0)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = Derive(testKey, "github.com", 1, ModeSecure, maxOutput+1)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = Derive(testKey, "github.com", 1, Mode(42), 0)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestMaterialWipe(t *testing.T) {
	m := Material("secret material")
	m.Wipe()
	assert.Equal(t, make([]byte, len("secret material")), []byte(m))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"secure":        ModeSecure,
		"argon2id":      ModeSecure,
		"":              ModeSecure,
		"simple":        ModeSimple,
		"concatenation": ModeSimple,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("rot13")
	assert.Error(t, err)
	assert.Equal(t, "secure", ModeSecure.String())
	assert.Equal(t, "simple", ModeSimple.String())
}
