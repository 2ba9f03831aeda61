package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/wesnick/gshell/pkg/gshell"
)

// filterOutput is JSON output for filters
type filterOutput struct {
	ID       string                `json:"id"`
	Criteria *gmail.FilterCriteria `json:"criteria"`
	Action   *gmail.FilterAction   `json:"action"`
}

// filterOptions holds the criteria and action flags of 'filters create'
type filterOptions struct {
	From           string
	To             string
	Subject        string
	Query          string
	NegatedQuery   string
	HasAttachment  bool
	ExcludeChats   bool
	Size           int64
	SizeComparison string
	AddLabels      []string
	RemoveLabels   []string
	Forward        string
}

func (o filterOptions) filter() *gmail.Filter {
	return &gmail.Filter{
		Criteria: &gmail.FilterCriteria{
			From:           o.From,
			To:             o.To,
			Subject:        o.Subject,
			Query:          o.Query,
			NegatedQuery:   o.NegatedQuery,
			HasAttachment:  o.HasAttachment,
			ExcludeChats:   o.ExcludeChats,
			Size:           o.Size,
			SizeComparison: o.SizeComparison,
		},
		Action: &gmail.FilterAction{
			AddLabelIds:    o.AddLabels,
			RemoveLabelIds: o.RemoveLabels,
			Forward:        o.Forward,
		},
	}
}

// describeCriteria renders criteria the way Gmail's search box would
func describeCriteria(c *gmail.FilterCriteria) string {
	if c == nil {
		return ""
	}
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+":"+v)
		}
	}
	add("from", c.From)
	add("to", c.To)
	add("subject", c.Subject)
	if c.HasAttachment {
		parts = append(parts, "has:attachment")
	}
	if c.Size > 0 {
		add(c.SizeComparison, fmt.Sprintf("%d", c.Size))
	}
	if c.Query != "" {
		parts = append(parts, c.Query)
	}
	if c.NegatedQuery != "" {
		parts = append(parts, "-{"+c.NegatedQuery+"}")
	}
	return strings.Join(parts, " ")
}

func describeAction(a *gmail.FilterAction, names map[string]string) string {
	if a == nil {
		return ""
	}
	name := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id
	}
	var parts []string
	for _, id := range a.AddLabelIds {
		parts = append(parts, "+"+name(id))
	}
	for _, id := range a.RemoveLabelIds {
		parts = append(parts, "-"+name(id))
	}
	if a.Forward != "" {
		parts = append(parts, "forward:"+a.Forward)
	}
	return strings.Join(parts, " ")
}

// resolveFilterLabels replaces label names in the action with label IDs
func resolveFilterLabels(ctx context.Context, conn *gshell.Connection, f *gmail.Filter) error {
	if f.Action == nil {
		return nil
	}
	for i, l := range f.Action.AddLabelIds {
		id, err := conn.ResolveLabel(ctx, l)
		if err != nil {
			return err
		}
		f.Action.AddLabelIds[i] = id
	}
	for i, l := range f.Action.RemoveLabelIds {
		id, err := conn.ResolveLabel(ctx, l)
		if err != nil {
			return err
		}
		f.Action.RemoveLabelIds[i] = id
	}
	return nil
}

func listFilters(ctx context.Context, conn *gshell.Connection, svc *gmail.Service) ([]*gmail.Filter, error) {
	var resp *gmail.ListFiltersResponse
	if err := rpc(ctx, conn, "gmail.Users.Settings.Filters.List", func() (err error) {
		resp, err = svc.Users.Settings.Filters.List(gshell.Me).Context(ctx).Do()
		return
	}); err != nil {
		return nil, fmt.Errorf("failed to list filters: %w", err)
	}
	return resp.Filter, nil
}

func runFiltersList(ctx context.Context, conn *gshell.Connection, out *outputWriter) error {
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	filters, err := listFilters(ctx, conn, svc)
	if err != nil {
		return err
	}

	if out.structured() {
		output := make([]filterOutput, len(filters))
		for i, f := range filters {
			output[i] = filterOutput{ID: f.Id, Criteria: f.Criteria, Action: f.Action}
		}
		return out.writeData(output)
	}

	if len(filters) == 0 {
		out.writeMessage("No filters found")
		return nil
	}
	names := labelNames(ctx, conn)
	headers := []string{"ID", "CRITERIA", "ACTION"}
	rows := make([][]string, len(filters))
	for i, f := range filters {
		rows[i] = []string{f.Id, truncateString(describeCriteria(f.Criteria), 60), describeAction(f.Action, names)}
	}
	return out.writeTable(headers, rows)
}

func runFiltersGet(ctx context.Context, conn *gshell.Connection, filterID string, out *outputWriter) error {
	if filterID == "" {
		return fmt.Errorf("filter ID is required")
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	var f *gmail.Filter
	if err := rpc(ctx, conn, "gmail.Users.Settings.Filters.Get", func() (err error) {
		f, err = svc.Users.Settings.Filters.Get(gshell.Me, filterID).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to get filter: %w", err)
	}

	if out.structured() {
		return out.writeData(filterOutput{ID: f.Id, Criteria: f.Criteria, Action: f.Action})
	}
	return out.writeFields([][2]string{
		{"ID", f.Id},
		{"Criteria", describeCriteria(f.Criteria)},
		{"Action", describeAction(f.Action, labelNames(ctx, conn))},
	})
}

func createFilter(ctx context.Context, conn *gshell.Connection, svc *gmail.Service, f *gmail.Filter) (*gmail.Filter, error) {
	var created *gmail.Filter
	err := rpc(ctx, conn, "gmail.Users.Settings.Filters.Create", func() (err error) {
		created, err = svc.Users.Settings.Filters.Create(gshell.Me, f).Context(ctx).Do()
		return
	})
	return created, err
}

func runFiltersCreate(ctx context.Context, conn *gshell.Connection, opts filterOptions, out *outputWriter) error {
	f := opts.filter()
	if describeCriteria(f.Criteria) == "" {
		return fmt.Errorf("at least one criteria flag is required")
	}
	if describeAction(f.Action, nil) == "" {
		return fmt.Errorf("at least one action flag is required")
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	if err := resolveFilterLabels(ctx, conn, f); err != nil {
		return err
	}

	created, err := createFilter(ctx, conn, svc, f)
	if err != nil {
		return fmt.Errorf("failed to create filter: %w", err)
	}
	if out.structured() {
		return out.writeData(filterOutput{ID: created.Id, Criteria: created.Criteria, Action: created.Action})
	}
	out.writeMessage(fmt.Sprintf("Created filter %s", created.Id))
	return nil
}

func runFiltersDelete(ctx context.Context, conn *gshell.Connection, filterID string, out *outputWriter) error {
	if filterID == "" {
		return fmt.Errorf("filter ID is required")
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	if err := rpc(ctx, conn, "gmail.Users.Settings.Filters.Delete", func() error {
		return svc.Users.Settings.Filters.Delete(gshell.Me, filterID).Context(ctx).Do()
	}); err != nil {
		return fmt.Errorf("failed to delete filter: %w", err)
	}
	if out.structured() {
		return out.writeData(map[string]string{"deleted": filterID})
	}
	out.writeMessage(fmt.Sprintf("Deleted filter %s", filterID))
	return nil
}

// withLabelNames returns copies of filters whose label IDs are replaced by
// label names.
func withLabelNames(filters []*gmail.Filter, names map[string]string) []*gmail.Filter {
	rename := func(ids []string) []string {
		if ids == nil {
			return nil
		}
		ret := make([]string, len(ids))
		for i, id := range ids {
			ret[i] = id
			if n, ok := names[id]; ok {
				ret[i] = n
			}
		}
		return ret
	}
	ret := make([]*gmail.Filter, len(filters))
	for i, f := range filters {
		c := *f
		if f.Action != nil {
			a := *f.Action
			a.AddLabelIds = rename(a.AddLabelIds)
			a.RemoveLabelIds = rename(a.RemoveLabelIds)
			c.Action = &a
		}
		ret[i] = &c
	}
	return ret
}

// runFiltersExport writes every filter as jsonnet, with label IDs replaced by
// names so the file can be imported into another account.
func runFiltersExport(ctx context.Context, conn *gshell.Connection, output string, out *outputWriter) error {
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	filters, err := listFilters(ctx, conn, svc)
	if err != nil {
		return err
	}

	b, err := gshell.FormatFilters(withLabelNames(filters, labelNames(ctx, conn)))
	if err != nil {
		return err
	}
	if output == "" || output == "-" {
		_, err := out.writer.Write(b)
		return err
	}
	if err := os.WriteFile(output, b, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	out.writeMessage(fmt.Sprintf("Exported %d filters to %s", len(filters), output))
	return nil
}

// filtersImportResult is JSON output for 'filters import'
type filtersImportResult struct {
	DryRun  bool           `json:"dryRun"`
	Created []filterOutput `json:"created"`
	Deleted []filterOutput `json:"deleted"`
}

// runFiltersImport makes the account's filters match a jsonnet file. It
// prints the diff first, then creates the missing filters and, with prune,
// deletes those the file does not list.
func runFiltersImport(ctx context.Context, conn *gshell.Connection, path string, dryRun, prune bool, out *outputWriter) error {
	if path == "" {
		return fmt.Errorf("filters file is required")
	}
	filters, err := gshell.ReadFilters(path)
	if err != nil {
		return err
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	for _, f := range filters {
		if err := resolveFilterLabels(ctx, conn, f); err != nil {
			return err
		}
	}
	existing, err := listFilters(ctx, conn, svc)
	if err != nil {
		return err
	}

	d := gshell.DiffFilters(existing, filters)
	if !prune {
		d.Removed = nil
	}
	out.writeVerbose("%d filters in %s, %d to create, %d to delete", len(filters), path, len(d.Added), len(d.Removed))

	if !out.structured() {
		if d.Empty() {
			out.writeMessage("Filters are up to date")
			return nil
		}
		names := labelNames(ctx, conn)
		preview, err := gshell.FiltersDiff{
			Added:   withLabelNames(d.Added, names),
			Removed: withLabelNames(d.Removed, names),
		}.Unified()
		if err != nil {
			return fmt.Errorf("failed to diff filters: %w", err)
		}
		out.writeDiff(preview)
	}

	result := filtersImportResult{DryRun: dryRun, Created: []filterOutput{}, Deleted: []filterOutput{}}
	for _, f := range d.Added {
		if dryRun {
			result.Created = append(result.Created, filterOutput{Criteria: f.Criteria, Action: f.Action})
			continue
		}
		c, err := createFilter(ctx, conn, svc, f)
		if err != nil {
			return fmt.Errorf("failed to create filter %q: %w", describeCriteria(f.Criteria), err)
		}
		result.Created = append(result.Created, filterOutput{ID: c.Id, Criteria: c.Criteria, Action: c.Action})
	}
	for _, f := range d.Removed {
		if !dryRun {
			if err := rpc(ctx, conn, "gmail.Users.Settings.Filters.Delete", func() error {
				return svc.Users.Settings.Filters.Delete(gshell.Me, f.Id).Context(ctx).Do()
			}); err != nil {
				return fmt.Errorf("failed to delete filter %s: %w", f.Id, err)
			}
		}
		result.Deleted = append(result.Deleted, filterOutput{ID: f.Id, Criteria: f.Criteria, Action: f.Action})
	}

	if out.structured() {
		return out.writeData(result)
	}
	if dryRun {
		out.writeMessage(fmt.Sprintf("Dry run: %d filters to create, %d to delete", len(result.Created), len(result.Deleted)))
		return nil
	}
	out.writeMessage(fmt.Sprintf("Created %d filters, deleted %d", len(result.Created), len(result.Deleted)))
	return nil
}
