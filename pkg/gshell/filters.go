package gshell

import (
	"bytes"
	"encoding/json"
	"os"
	"path"

	"github.com/google/go-jsonnet"
	"github.com/pkg/errors"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/wesnick/gshell/pkg/gshell/diff"
)

// ReadFilters evaluates a jsonnet file that yields a list of Gmail filters,
// each shaped like {criteria: {...}, action: {...}}. Label references in
// actions may be names; callers resolve them.
func ReadFilters(p string) ([]*gmail.Filter, error) {
	/* #nosec */
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.Wrap(err, "reading filters file")
	}
	return ParseFilters(p, b)
}

// ParseFilters evaluates a jsonnet filter list. The path is used to resolve
// imports.
func ParseFilters(p string, buf []byte) ([]*gmail.Filter, error) {
	vm := jsonnet.MakeVM()
	vm.Importer(&jsonnet.FileImporter{
		JPaths: []string{path.Dir(p)},
	})
	js, err := vm.EvaluateAnonymousSnippet(p, string(buf))
	if err != nil {
		return nil, errors.Wrap(err, "evaluating filters")
	}

	var filters []*gmail.Filter
	dec := json.NewDecoder(bytes.NewReader([]byte(js)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&filters); err != nil {
		return nil, errors.Wrap(err, "decoding filters")
	}
	for i, f := range filters {
		if f == nil || f.Criteria == nil || f.Action == nil {
			return nil, errors.Errorf("filter %d: criteria and action are required", i)
		}
		f.Id = ""
	}
	return filters, nil
}

// FilterKey identifies a filter by its criteria and action, ignoring its ID.
func FilterKey(f *gmail.Filter) string {
	b, _ := json.Marshal(struct {
		C *gmail.FilterCriteria `json:"c"`
		A *gmail.FilterAction   `json:"a"`
	}{f.Criteria, f.Action})
	return string(b)
}

type filterEntry struct {
	Criteria *gmail.FilterCriteria `json:"criteria"`
	Action   *gmail.FilterAction   `json:"action"`
}

func marshalFilters(filters []*gmail.Filter) ([]byte, error) {
	entries := make([]filterEntry, len(filters))
	for i, f := range filters {
		entries[i] = filterEntry{f.Criteria, f.Action}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding filters")
	}
	return b, nil
}

// FormatFilters renders filters as a jsonnet document ReadFilters accepts.
// IDs are dropped.
func FormatFilters(filters []*gmail.Filter) ([]byte, error) {
	b, err := marshalFilters(filters)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("// Gmail filters exported by gshell " + Version + "\n")
	buf.Write(b)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// FiltersDiff holds the filters to create and to delete so that an account
// matches a filters file. Gmail has no filter update, so a changed filter
// is one removal plus one addition.
type FiltersDiff struct {
	Added   []*gmail.Filter
	Removed []*gmail.Filter
}

// Empty reports whether there is nothing to apply.
func (d FiltersDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffFilters compares the filters of an account (upstream) with the ones
// from a file (local) by FilterKey. Duplicates count once; order follows
// the inputs.
func DiffFilters(upstream, local []*gmail.Filter) FiltersDiff {
	inLocal := make(map[string]bool, len(local))
	for _, f := range local {
		inLocal[FilterKey(f)] = true
	}
	inUpstream := make(map[string]bool, len(upstream))
	var d FiltersDiff
	for _, f := range upstream {
		k := FilterKey(f)
		if !inLocal[k] && !inUpstream[k] {
			d.Removed = append(d.Removed, f)
		}
		inUpstream[k] = true
	}
	for _, f := range local {
		k := FilterKey(f)
		if inUpstream[k] {
			continue
		}
		inUpstream[k] = true
		d.Added = append(d.Added, f)
	}
	return d
}

// Unified renders d as a unified diff from the removed to the added filters.
func (d FiltersDiff) Unified() (string, error) {
	removed, err := marshalFilters(d.Removed)
	if err != nil {
		return "", err
	}
	added, err := marshalFilters(d.Added)
	if err != nil {
		return "", err
	}
	return diff.Unified("filters", string(removed), string(added))
}
