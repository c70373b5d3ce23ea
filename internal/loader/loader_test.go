package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	csv := `UCI,Last Name,First Name,Auth Number,SVC Code,SVC Subcode,SVC Month Year,SPN ID,Service Days,Entered Units,Entered Amount
2719815,DOE,JANE,AUTH-1,116,FC,8/2025,HP1829,"3;10;17",3,"$356.82"
7701234,ROE,RICK,,505,,08/2025,HP1829,"1-3,8",4,475.76
`

	records, err := Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "2719815", first.UCI)
	assert.Equal(t, "DOE, JANE", first.ConsumerName())
	assert.Equal(t, "116", first.SvcCode)
	assert.Equal(t, "08/2025", first.SvcMonthYear) // normalized
	assert.Equal(t, []int{3, 10, 17}, first.ServiceDays)
	assert.InDelta(t, 356.82, first.EnteredAmount, 0.001)

	second := records[1]
	assert.Equal(t, []int{1, 2, 3, 8}, second.ServiceDays)
	assert.Empty(t, second.SvcSubcode)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "batch.yaml")
	data := `records:
  - uci: "2719815"
    last_name: DOE
    first_name: JANE
    svc_code: "116"
    svc_month_year: 8/2025
    days: "3;10;17"
  - uci: "7701234"
    last_name: ROE
    first_name: RICK
    svc_code: "505"
    svc_month_year: 08/2025
    spn_id: HP1829
    days: "1-3"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "2719815", records[0].UCI)
	assert.Equal(t, "08/2025", records[0].SvcMonthYear)
	assert.Equal(t, []int{3, 10, 17}, records[0].ServiceDays)
	assert.Equal(t, "HP1829", records[1].SPNID)
	assert.Equal(t, []int{1, 2, 3}, records[1].ServiceDays)
}

func TestParseMissingColumn(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader("uci,last_name\n1,2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestParseDays(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []int
	}{
		{"3;10;17", []int{3, 10, 17}},
		{"1-4", []int{1, 2, 3, 4}},
		{"1-3,3;8", []int{1, 2, 3, 8}},
		{"", nil},
		{" 5 ", []int{5}},
	}
	for _, tc := range cases {
		got, err := ParseDays(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"x", "3-", "5-2", "1-b"} {
		_, err := ParseDays(bad)
		assert.Error(t, err, bad)
	}
}
