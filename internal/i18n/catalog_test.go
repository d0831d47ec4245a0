package i18n

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault_CommandAliases(t *testing.T) {
	c := Default()
	assert.Equal(t, "id", c.Language)

	tests := map[string]string{
		"pengeluaran": "expense", "bayar": "expense", "BELI": "expense",
		"gajian": "income", "duit": "balance", "rekap": "report",
		"advice": "plan", "obligasi": "invest", "target": "goal",
		"rencanabiaya": "budget", "IHSG": "market", "cara": "help",
	}
	for alias, want := range tests {
		got, ok := c.Commands.Lookup(alias)
		require.True(t, ok, alias)
		assert.Equal(t, want, got, alias)
	}

	_, ok := c.Commands.Lookup("halo")
	assert.False(t, ok)

	want := []string{"balance", "budget", "expense", "goal", "help", "income", "invest", "market", "plan", "report"}
	if diff := cmp.Diff(want, c.Commands.Canonical()); diff != "" {
		t.Errorf("canonical commands mismatch (-want +got):\n%s", diff)
	}
}

func TestDefault_Categories(t *testing.T) {
	c := Default()

	got, ok := c.Category("expense", "Bensin")
	require.True(t, ok)
	assert.Equal(t, "transportation", got)

	got, ok = c.Category("income", "proyek")
	require.True(t, ok)
	assert.Equal(t, "freelance", got)

	_, ok = c.Category("income", "makan")
	assert.False(t, ok, "expense aliases do not leak into income")

	_, ok = c.Category("balance", "makan")
	assert.False(t, ok)
}

func TestCatalog_Messages(t *testing.T) {
	c := Default()
	assert.Equal(t, "Target Tabungan", c.Message(MsgGoalDefaultName))
	assert.Equal(t, "💰 Saldo Anda: Rp 0", c.Format(MsgBalance, "Rp 0"))
	assert.Equal(t, "no_such_key", c.Message("no_such_key"))
	assert.True(t, strings.HasPrefix(c.Message(MsgHelp), "🤖"))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"invalid yaml", "commands: [", "failed to parse catalog"},
		{"no commands", "language: id\n", "no commands"},
		{"duplicate alias", "commands:\n  a: [x]\n  b: [X]\n", "maps to both"},
		{"missing messages", "commands:\n  help: [help]\n", "missing messages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_EveryMessageKeyRequired(t *testing.T) {
	for _, key := range []string{MsgPlanTips, MsgReportHeader, MsgBudget, MsgGoalCreated} {
		t.Run(key, func(t *testing.T) {
			var doc map[string]interface{}
			require.NoError(t, yaml.Unmarshal(DefaultYAML(), &doc))
			delete(doc["messages"].(map[string]interface{}), key)
			data, err := yaml.Marshal(doc)
			require.NoError(t, err)

			_, err = Parse(data)
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.yaml")
	require.NoError(t, os.WriteFile(path, DefaultYAML(), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Commands.Len(), c.Commands.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStore_Swap(t *testing.T) {
	s := NewStore(nil)
	first := s.Catalog()
	require.NotNil(t, first)

	next := Default()
	prev := s.Swap(next)
	assert.Same(t, first, prev)
	assert.Same(t, next, s.Catalog())

	assert.Same(t, next, s.Swap(nil))
	assert.Same(t, next, s.Catalog())
}

func TestFormatCurrency(t *testing.T) {
	digits := func(s string) string {
		return strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, s)
	}

	got := FormatCurrency(50000)
	assert.True(t, strings.HasPrefix(got, "Rp "), got)
	assert.Equal(t, "50000", digits(got))
	assert.NotContains(t, got, "50000", "digits are grouped")

	assert.Equal(t, "1250000", digits(FormatCurrency(1250000.4)))
	assert.Equal(t, "0", digits(FormatCurrency(0)))
}
