package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type phaseRow struct {
	Phase    string `json:"phase" yaml:"phase"`
	Affected int    `json:"affected" yaml:"affected"`
}

type phaseRows []phaseRow

func (p phaseRows) Headers() []string { return []string{"Phase", "Affected"} }
func (p phaseRows) Rows() [][]string {
	out := make([][]string, 0, len(p))
	for _, r := range p {
		out = append(out, []string{r.Phase, strings.Repeat("x", r.Affected)})
	}
	return out
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "table", want: FormatTable},
		{input: "", want: FormatTable},
		{input: "JSON", want: FormatJSON},
		{input: "yml", want: FormatYAML},
		{input: "  yaml ", want: FormatYAML},
		{input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrinterTable(t *testing.T) {
	var buf bytes.Buffer
	rows := phaseRows{{"merge", 2}, {"sweep", 3}}

	require.NoError(t, NewPrinter(&buf, FormatTable).Print(rows))

	out := buf.String()
	assert.Contains(t, out, "PHASE")
	assert.Contains(t, out, "merge")
	assert.Contains(t, out, "xxx")
}

func TestPrinterTableFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable).Print(map[string]int{"a": 1}))
	assert.True(t, json.Valid(buf.Bytes()))
}

func TestPrinterJSONAndYAML(t *testing.T) {
	rows := phaseRows{{"expire", 4}}

	var jsonBuf bytes.Buffer
	require.NoError(t, NewPrinter(&jsonBuf, FormatJSON).Print(rows))
	var decoded []phaseRow
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &decoded))
	assert.Equal(t, []phaseRow(rows), decoded)

	var yamlBuf bytes.Buffer
	require.NoError(t, NewPrinter(&yamlBuf, FormatYAML).Print(rows))
	decoded = nil
	require.NoError(t, yaml.Unmarshal(yamlBuf.Bytes(), &decoded))
	assert.Equal(t, []phaseRow(rows), decoded)
}

func TestPrinterUnknownFormat(t *testing.T) {
	err := NewPrinter(&bytes.Buffer{}, Format("csv")).Print(nil)
	assert.Error(t, err)
}

func TestSimpleTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SimpleTable(&buf, [][2]string{{"Catalog", "postgres"}, {"Remote", "disabled"}}))
	out := buf.String()
	assert.Contains(t, out, "Catalog")
	assert.Contains(t, out, "postgres")
}

func TestTableData(t *testing.T) {
	td := NewTableData("Table", "Column")
	td.AddRow("share_link", "alias_id")
	assert.Equal(t, []string{"Table", "Column"}, td.Headers())
	assert.Equal(t, [][]string{{"share_link", "alias_id"}}, td.Rows())
}
