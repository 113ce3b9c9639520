package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Sample
	}{
		{
			name: "slow standard",
			line: "true,false,42.0,3000.0,55.0,90.0,70.0",
			want: Sample{Flags: Flags{Slow: true}, Speed: 42, RPM: 3000, Load: 55, Temperature: 90, Fuel: 70},
		},
		{
			name: "fast extended with negative temperature",
			line: "false,true,0,850,12.5,-17.25,3",
			want: Sample{Flags: Flags{Extended: true}, RPM: 850, Load: 12.5, Temperature: -17.25, Fuel: 3},
		},
		{
			name: "mixed case booleans",
			line: "TRUE,False,1,2,3,4,5",
			want: Sample{Flags: Flags{Slow: true}, Speed: 1, RPM: 2, Load: 3, Temperature: 4, Fuel: 5},
		},
		{
			name: "carriage return and padding",
			line: " tRuE , true ,1e2,2,3,4,5\r\n",
			want: Sample{Flags: Flags{Slow: true, Extended: true}, Speed: 100, RPM: 2, Load: 3, Temperature: 4, Fuel: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		field int
	}{
		{"too few fields", "0,1,2,3", -1},
		{"too many fields", "true,false,1,2,3,4,5,6", -1},
		{"empty line", "", -1},
		{"trailing delimiter", "true,false,1,2,3,4,5,", -1},
		{"numeric boolean", "1,false,1,2,3,4,5", FieldSlow},
		{"bad extended flag", "true,yes,1,2,3,4,5", FieldExtended},
		{"bad speed", "true,false,fast,2,3,4,5", FieldSpeed},
		{"empty rpm", "true,false,1,,3,4,5", FieldRPM},
		{"nan load", "true,false,1,2,NaN,4,5", FieldLoad},
		{"infinite temperature", "true,false,1,2,3,+Inf,5", FieldTemperature},
		{"overflowing fuel", "true,false,1,2,3,4,1e999", FieldFuel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRecord))

			var mre *MalformedRecordError
			require.True(t, errors.As(err, &mre))
			assert.Equal(t, tt.field, mre.Field)
		})
	}
}

func TestMalformedRecordErrorMessage(t *testing.T) {
	_, err := Parse("0,1,2,3")
	assert.EqualError(t, err, "malformed record: got 4 fields, want 7")

	_, err = Parse("true,false,1,x,3,4,5")
	assert.Contains(t, err.Error(), "field 3 (rpm)")
}

func TestSampleLineParsesBack(t *testing.T) {
	s := Sample{Flags: Flags{Slow: true}, Speed: 88.5, RPM: 2250, Load: 41, Temperature: -3.5, Fuel: 64.25}

	got, err := Parse(s.Line())
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestFlags(t *testing.T) {
	assert.Equal(t, 250, Flags{Slow: true}.BitrateKbps())
	assert.Equal(t, 500, Flags{}.BitrateKbps())
	assert.Equal(t, "extended", Flags{Extended: true}.FrameFormat())
	assert.Equal(t, "standard", Flags{}.FrameFormat())
}
