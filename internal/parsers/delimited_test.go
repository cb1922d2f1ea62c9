package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValue(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]string
	}{
		{
			name: "sysctl style",
			text: "kern.hostname=gateway\nhw.ncpu=8\nkern.osrelease=14.1-RELEASE",
			want: map[string]string{
				"kern.hostname":  "gateway",
				"hw.ncpu":        "8",
				"kern.osrelease": "14.1-RELEASE",
			},
		},
		{
			name: "value containing equals",
			text: "opts=rw=1,nosuid",
			want: map[string]string{"opts": "rw=1,nosuid"},
		},
		{
			name: "malformed lines dropped",
			text: "good=1\nno equals here\n=leading\n\ngood2=2",
			want: map[string]string{"good": "1", "good2": "2"},
		},
		{
			name: "empty input",
			text: "",
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKeyValue(tt.text))
		})
	}
}

func TestParsePipeDelimited(t *testing.T) {
	text := `pkg|1.21.3|Package manager
curl|8.6.0|Command line tool
short`

	rows := ParsePipeDelimited(text, 3)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"pkg", "1.21.3", "Package manager"}, rows[0])
	assert.Equal(t, []string{"curl", "8.6.0", "Command line tool"}, rows[1])
}

func TestParseTabDelimited(t *testing.T) {
	text := "zroot\t10737418240\t53687091200\tnone\n" +
		"zroot/usr\t5368709120\t53687091200\tnone\n" +
		"not enough columns\n"

	rows := ParseTabDelimited(text, 4)
	require.Len(t, rows, 2)
	assert.Equal(t, "zroot", rows[0][0])
	assert.Equal(t, "10737418240", rows[0][1])
	assert.Equal(t, "zroot/usr", rows[1][0])
}

func TestParseDelimited_BlankLinesSkipped(t *testing.T) {
	rows := ParsePipeDelimited("a|b\n\n  \nc|d", 2)
	assert.Len(t, rows, 2)
}
