package memo_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oss.terrastruct.com/d2render/memo"
)

func TestFingerprint(t *testing.T) {
	t.Parallel()

	// Expected values were computed with the reference JavaScript cyrb53a.
	testCases := []struct {
		in  string
		exp uint64
	}{
		{in: "", exp: 7598156216211456},
		{in: "a", exp: 8122081416910708},
		{in: "hello", exp: 6629065793880233},
		{in: "x -> y", exp: 8337021386238475},
		{in: `{"code":"a -> b"}`, exp: 1931520320027003},
		{in: "日本語", exp: 917827264339194},
		{in: "😀", exp: 2181950765850048},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()

			got := memo.Fingerprint(tc.in)
			assert.Equal(t, tc.exp, got)
			assert.Equal(t, got, memo.Fingerprint(tc.in))
			assert.Less(t, got, uint64(1)<<53)
		})
	}
}

func TestCyrb53aSeed(t *testing.T) {
	t.Parallel()

	assert.Equal(t, memo.Fingerprint("hello"), memo.Cyrb53a("hello", 0))
	assert.NotEqual(t, memo.Cyrb53a("hello", 0), memo.Cyrb53a("hello", 1))
}

func TestFingerprintFitsFloat(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "a", "longer input with spaces", "ümlaut"} {
		fp := memo.Fingerprint(s)
		assert.Equal(t, fp, uint64(float64(fp)))
		assert.LessOrEqual(t, float64(fp), float64(math.MaxInt64))
	}
}

type request struct {
	Code            string  `json:"code"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	Width           float64 `json:"width,omitempty"`
}

func TestKey(t *testing.T) {
	t.Parallel()

	k, err := memo.Key(request{Code: "a -> b"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1931520320027003), k)

	k, err = memo.Key(request{Code: "a -> b", BackgroundColor: "#000000", Width: 400})
	require.NoError(t, err)
	assert.Equal(t, uint64(8336423328001270), k)

	k2, err := memo.Key(request{Code: "a -> b", BackgroundColor: "#000000", Width: 400})
	require.NoError(t, err)
	assert.Equal(t, k, k2)

	k3, err := memo.Key(request{Code: "a -> c", BackgroundColor: "#000000", Width: 400})
	require.NoError(t, err)
	assert.NotEqual(t, k, k3)
}

func TestSerialize(t *testing.T) {
	t.Parallel()

	s, err := memo.Serialize(request{Code: "a -> b & <c>"})
	require.NoError(t, err)
	assert.Equal(t, `{"code":"a -> b & <c>"}`, s)

	_, err = memo.Serialize(func() {})
	assert.Error(t, err)
}
