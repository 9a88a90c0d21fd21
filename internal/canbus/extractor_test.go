package canbus

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	deadbeef = MustParseFrame("00", "deadbeefdeadbeef")
	allBits  = MustParseFrame("00", "ffffffffffffffff")
	noBits   = MustParseFrame("00", "0000000000000000")
	lastBit  = MustParseFrame("00", "0000000000000001")
	firstBit = MustParseFrame("00", "8000000000000000")
	zeroTPS  = MustParseFrame("0080", "90007D00007FF3F7")
	fullTPS  = MustParseFrame("0080", "93E87D00007FF3F7")
	steerR   = MustParseFrame("0010", "0229000080008036")
	steerL   = MustParseFrame("0010", "0229000000008036")
)

func convert(t *testing.T, e Extractor, f Frame) float64 {
	t.Helper()
	v, err := e.Convert(f)
	require.NoError(t, err)
	return v
}

func TestNewExtractor_Range(t *testing.T) {
	_, err := NewExtractor(1, 2)
	assert.NoError(t, err)

	for _, tc := range [][2]int{{0, 65}, {1, 64}, {63, 2}, {64, 1}, {-1, 4}, {0, 0}} {
		_, err := NewExtractor(tc[0], tc[1])
		assert.Truef(t, errors.Is(err, ErrBitRange), "offset %d length %d: %v", tc[0], tc[1], err)
	}
}

func TestExtractor_ZeroValueFails(t *testing.T) {
	var e Extractor
	_, err := e.Convert(deadbeef)
	assert.ErrorIs(t, err, ErrBitRange)
}

func TestExtractor_SimpleConvert(t *testing.T) {
	e := MustExtractor(0, 64)
	assert.Equal(t, 0.0, convert(t, e, MustParseFrame("00", "00")))

	raw, err := e.Extract(deadbeef)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xdeadbeefdeadbeef), raw)
	assert.Equal(t, float64(uint64(0xdeadbeefdeadbeef)), convert(t, e, deadbeef))
}

func TestExtractor_ScaledConvert(t *testing.T) {
	want := float64(uint64(0xdeadbeefdeadbeef))

	v := convert(t, MustExtractor(0, 64, WithScale(1.0)), deadbeef)
	assert.True(t, math.Abs(v-want) < 1e-19)

	v = convert(t, MustExtractor(0, 64, WithScale(10.0)), deadbeef)
	assert.True(t, math.Abs(v/want-10.0) < 1e-19)
}

func TestExtractor_FirstBit(t *testing.T) {
	for i := 0; i < 64; i++ {
		want := 0.0
		if i == 0 {
			want = 1
		}
		assert.Equalf(t, want, convert(t, MustExtractor(i, 1), firstBit), "offset %d", i)
	}
}

func TestExtractor_LastBit(t *testing.T) {
	for i := 0; i < 64; i++ {
		want := 0.0
		if i == 63 {
			want = 1
		}
		assert.Equalf(t, want, convert(t, MustExtractor(i, 1), lastBit), "offset %d", i)
	}
}

func TestExtractor_AllAndNoBits(t *testing.T) {
	for offset := 0; offset < 64; offset++ {
		for length := 1; offset+length <= 64; length++ {
			e := MustExtractor(offset, length)

			raw, err := e.Extract(allBits)
			require.NoError(t, err)
			want := ^uint64(0)
			if length < 64 {
				want = uint64(1)<<uint(length) - 1
			}
			if raw != want {
				t.Fatalf("all bits offset %d length %d = %#x, want %#x", offset, length, raw, want)
			}

			raw, err = e.Extract(noBits)
			require.NoError(t, err)
			if raw != 0 {
				t.Fatalf("no bits offset %d length %d = %#x", offset, length, raw)
			}
		}
	}
}

func TestExtractor_CustomTransform(t *testing.T) {
	e := MustExtractor(0, 64, WithTransform(func(uint64) float64 { return 0 }))
	assert.Equal(t, 0.0, convert(t, e, deadbeef))

	e = MustExtractor(0, 64, WithTransform(func(x uint64) float64 { return float64(x - 1) }))
	assert.Equal(t, float64(uint64(0xdeadbeefdeadbeef-1)), convert(t, e, deadbeef))

	// transform wins over linear calibration
	e = MustExtractor(0, 8, WithScale(100), WithTransform(func(x uint64) float64 { return float64(x) }))
	assert.Equal(t, float64(0xde), convert(t, e, deadbeef))
}

func TestExtractor_FordThrottle(t *testing.T) {
	e := MustExtractor(4, 12, WithScale(0.1))
	assert.True(t, math.Abs(convert(t, e, zeroTPS)-0.0) < 1e-19)
	assert.True(t, math.Abs(convert(t, e, fullTPS)-100.0) < 1e-19)

	e = MustExtractor(4, 12, WithScale(0.1), WithOffset(-1000.0))
	assert.True(t, math.Abs(convert(t, e, zeroTPS)+1000.0) < 1e-19)
	assert.True(t, math.Abs(convert(t, e, fullTPS)+900.0) < 1e-19)
}

func TestExtractor_FordSteeringDirection(t *testing.T) {
	e := MustExtractor(32, 1)
	assert.NotEqual(t, 0.0, convert(t, e, steerR))
	assert.Equal(t, 0.0, convert(t, e, steerL))
}
