package rserial

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLine = `CSI_DATA,7,1a:00:00:00:00:00,-42,11,-96,3,24,11,123456789,56,0,6,0,"[3,4,-6,8,0,5]"`

func TestParseLine(t *testing.T) {
	rec, err := ParseLine(sampleLine + "\r\n")
	require.NoError(t, err)

	assert.Equal(t, 7, rec.Seq)
	assert.Equal(t, "1a:00:00:00:00:00", rec.Frame.Source.String())
	assert.Equal(t, []int8{3, 4, -6, 8, 0, 5}, rec.Frame.Raw)
	assert.Equal(t, 6, rec.Frame.Length)
	assert.Equal(t, 6, rec.DeclaredLength)
	assert.Equal(t, -42, rec.Frame.Meta.RSSI)
	assert.Equal(t, 11, rec.Frame.Meta.Rate)
	assert.Equal(t, -96, rec.Frame.Meta.NoiseFloor)
	assert.Equal(t, 11, rec.Frame.Meta.Channel)
	assert.Equal(t, 3, rec.FFTGain)
	assert.Equal(t, 24, rec.AGCGain)
	assert.Equal(t, uint64(123456789), rec.Timestamp)
}

func TestParseLine_PayloadWinsOverDeclaredLength(t *testing.T) {
	rec, err := ParseLine(`CSI_DATA,1,1a:00:00:00:00:00,-42,11,-96,3,24,11,5,56,0,128,0,"[1,2,3]"`)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Frame.Length)
	assert.Equal(t, 128, rec.DeclaredLength)
}

func TestParseLine_NotAFrame(t *testing.T) {
	for _, line := range []string{
		"",
		"I (1234) csi_recv: CSI callback triggered",
		"CSI_DEBUG,len=2,[1,2]",
		"CSI_DATAX,1",
	} {
		_, err := ParseLine(line)
		assert.ErrorIs(t, err, ErrNotFrame, "line %q", line)
	}
}

func TestParseLine_OutOfSync(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"short variant", "CSI_DATA,128,1a:00:00:00:00:00,-42,11,-96,11"},
		{"bad mac", `CSI_DATA,7,zz:00:00:00:00:00,-42,11,-96,3,24,11,1,56,0,2,0,"[3,4]"`},
		{"bad rssi", `CSI_DATA,7,1a:00:00:00:00:00,x,11,-96,3,24,11,1,56,0,2,0,"[3,4]"`},
		{"byte out of range", `CSI_DATA,7,1a:00:00:00:00:00,-42,11,-96,3,24,11,1,56,0,2,0,"[3,400]"`},
		{"truncated quote", `CSI_DATA,7,1a:00:00:00:00:00,-42,11,-96,3,24,11,1,56,0,2,0,"[3,4`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.line)
			var oos *OutOfSyncError
			require.True(t, errors.As(err, &oos), "got %v", err)
			assert.Contains(t, oos.Error(), "[rserial] malformed CSI line")
		})
	}
}

func TestParseByteList(t *testing.T) {
	got, err := ParseByteList(" [1, -2,127 ,-128] ")
	require.NoError(t, err)
	assert.Equal(t, []int8{1, -2, 127, -128}, got)

	got, err = ParseByteList("[]")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseByteList("[1,,2]")
	assert.Error(t, err)
}
