package gshell

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
)

func TestParseFilters(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.libsonnet"), []byte(`{
  archive(from): { criteria: { from: from }, action: { removeLabelIds: ["INBOX"] } },
}`), 0600))

	src := `
local lib = import 'lib.libsonnet';
[
  lib.archive('news@example.com'),
  { criteria: { query: 'has:attachment larger:10M' }, action: { addLabelIds: ['Big'] } },
]`
	filters, err := ParseFilters(filepath.Join(dir, "filters.jsonnet"), []byte(src))
	require.NoError(t, err)
	require.Len(t, filters, 2)
	assert.Equal(t, "news@example.com", filters[0].Criteria.From)
	assert.Equal(t, []string{"INBOX"}, filters[0].Action.RemoveLabelIds)
	assert.Equal(t, []string{"Big"}, filters[1].Action.AddLabelIds)
}

func TestParseFiltersErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `[`},
		{"not a list", `{ criteria: {} }`},
		{"unknown field", `[{ criteria: { sender: 'x' }, action: {} }]`},
		{"missing action", `[{ criteria: { from: 'x' } }]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilters("filters.jsonnet", []byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestReadFiltersMissingFile(t *testing.T) {
	_, err := ReadFilters(filepath.Join(t.TempDir(), "nope.jsonnet"))
	assert.Error(t, err)
}

func TestFilterKeyIgnoresID(t *testing.T) {
	a := &gmail.Filter{Id: "1", Criteria: &gmail.FilterCriteria{From: "x"}, Action: &gmail.FilterAction{AddLabelIds: []string{"L"}}}
	b := &gmail.Filter{Id: "2", Criteria: &gmail.FilterCriteria{From: "x"}, Action: &gmail.FilterAction{AddLabelIds: []string{"L"}}}
	c := &gmail.Filter{Criteria: &gmail.FilterCriteria{From: "y"}, Action: &gmail.FilterAction{AddLabelIds: []string{"L"}}}
	assert.Equal(t, FilterKey(a), FilterKey(b))
	assert.NotEqual(t, FilterKey(a), FilterKey(c))
}

func TestFormatFiltersRoundTrip(t *testing.T) {
	in := []*gmail.Filter{{
		Id:       "abc",
		Criteria: &gmail.FilterCriteria{From: "news@example.com", Size: 1024, SizeComparison: "larger"},
		Action:   &gmail.FilterAction{AddLabelIds: []string{"Newsletters"}, RemoveLabelIds: []string{"INBOX"}},
	}}
	b, err := FormatFilters(in)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "abc")

	out, err := ParseFilters("exported.jsonnet", b)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, FilterKey(in[0]), FilterKey(out[0]))
}

func TestDiffFilters(t *testing.T) {
	filter := func(from, label string) *gmail.Filter {
		return &gmail.Filter{Criteria: &gmail.FilterCriteria{From: from}, Action: &gmail.FilterAction{AddLabelIds: []string{label}}}
	}
	upstream := []*gmail.Filter{filter("a@example.com", "L1"), filter("old@example.com", "L1"), filter("old@example.com", "L1")}
	upstream[0].Id = "f1"
	local := []*gmail.Filter{filter("a@example.com", "L1"), filter("new@example.com", "L2"), filter("new@example.com", "L2")}

	d := DiffFilters(upstream, local)
	assert.False(t, d.Empty())
	require.Len(t, d.Added, 1)
	assert.Equal(t, "new@example.com", d.Added[0].Criteria.From)
	require.Len(t, d.Removed, 1)
	assert.Equal(t, "old@example.com", d.Removed[0].Criteria.From)

	u, err := d.Unified()
	require.NoError(t, err)
	assert.Contains(t, u, "--- current/filters")
	assert.Contains(t, u, "+++ new/filters")
	assert.Contains(t, u, `-      "from": "old@example.com"`)
	assert.Contains(t, u, `+      "from": "new@example.com"`)

	assert.True(t, DiffFilters(upstream[:1], local[:1]).Empty())
}
