package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	admin "google.golang.org/api/admin/directory/v1"

	"github.com/wesnick/gshell/pkg/gshell"
)

var orgUnitListTypes = map[string]bool{"all": true, "children": true, "allIncludingParent": true}

// orgUnitOutput is JSON output for organizational units
type orgUnitOutput struct {
	ID               string `json:"orgUnitId"`
	Name             string `json:"name"`
	Path             string `json:"orgUnitPath"`
	ParentPath       string `json:"parentOrgUnitPath,omitempty"`
	Description      string `json:"description,omitempty"`
	BlockInheritance bool   `json:"blockInheritance,omitempty"`
}

func toOrgUnitOutput(o *admin.OrgUnit) orgUnitOutput {
	return orgUnitOutput{
		ID:               o.OrgUnitId,
		Name:             o.Name,
		Path:             o.OrgUnitPath,
		ParentPath:       o.ParentOrgUnitPath,
		Description:      o.Description,
		BlockInheritance: o.BlockInheritance,
	}
}

// orgUnitKey turns "/Sales/East" into the "Sales/East" form the API expects
func orgUnitKey(path string) string {
	return strings.Trim(path, "/")
}

func runOrgUnitsList(ctx context.Context, conn *gshell.Connection, path, listType string, out *outputWriter) error {
	if listType == "" {
		listType = "all"
	}
	if !orgUnitListTypes[listType] {
		return fmt.Errorf("invalid type %q (must be all, children or allIncludingParent)", listType)
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}

	var resp *admin.OrgUnits
	if err := rpc(ctx, conn, "directory.Orgunits.List", func() (err error) {
		call := svc.Orgunits.List(conn.Customer()).Type(listType).Context(ctx)
		if path != "" {
			call = call.OrgUnitPath(path)
		}
		resp, err = call.Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to list org units: %w", err)
	}

	units := resp.OrganizationUnits
	sort.Slice(units, func(i, j int) bool { return units[i].OrgUnitPath < units[j].OrgUnitPath })
	output := make([]orgUnitOutput, len(units))
	for i, u := range units {
		output[i] = toOrgUnitOutput(u)
	}
	if out.structured() {
		return out.writeData(output)
	}
	if len(output) == 0 {
		out.writeMessage("No org units found")
		return nil
	}
	headers := []string{"PATH", "NAME", "DESCRIPTION"}
	rows := make([][]string, len(output))
	for i, u := range output {
		rows[i] = []string{u.Path, u.Name, truncateString(u.Description, 40)}
	}
	return out.writeTable(headers, rows)
}

func runOrgUnitsGet(ctx context.Context, conn *gshell.Connection, path string, out *outputWriter) error {
	if orgUnitKey(path) == "" {
		return fmt.Errorf("org unit path is required")
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	var u *admin.OrgUnit
	if err := rpc(ctx, conn, "directory.Orgunits.Get", func() (err error) {
		u, err = svc.Orgunits.Get(conn.Customer(), orgUnitKey(path)).Context(ctx).Do()
		return
	}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("org unit %s not found", path)
		}
		return fmt.Errorf("failed to get org unit: %w", err)
	}
	o := toOrgUnitOutput(u)
	if out.structured() {
		return out.writeData(o)
	}
	return out.writeFields([][2]string{
		{"Path", o.Path},
		{"Name", o.Name},
		{"ID", o.ID},
		{"Parent", o.ParentPath},
		{"Description", o.Description},
	})
}

func runOrgUnitsCreate(ctx context.Context, conn *gshell.Connection, name, parent, description string, out *outputWriter) error {
	if name == "" {
		return fmt.Errorf("org unit name is required")
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("org unit name must not contain '/'; use --parent")
	}
	if parent == "" {
		parent = "/"
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	u := &admin.OrgUnit{Name: name, ParentOrgUnitPath: parent, Description: description}
	var created *admin.OrgUnit
	if err := rpc(ctx, conn, "directory.Orgunits.Insert", func() (err error) {
		created, err = svc.Orgunits.Insert(conn.Customer(), u).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to create org unit: %w", err)
	}
	if out.structured() {
		return out.writeData(toOrgUnitOutput(created))
	}
	out.writeMessage(fmt.Sprintf("Created org unit %s", created.OrgUnitPath))
	return nil
}

func runOrgUnitsDelete(ctx context.Context, conn *gshell.Connection, path string, out *outputWriter) error {
	if orgUnitKey(path) == "" {
		return fmt.Errorf("org unit path is required (the root cannot be deleted)")
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	if err := rpc(ctx, conn, "directory.Orgunits.Delete", func() error {
		return svc.Orgunits.Delete(conn.Customer(), orgUnitKey(path)).Context(ctx).Do()
	}); err != nil {
		return fmt.Errorf("failed to delete org unit: %w", err)
	}
	if out.structured() {
		return out.writeData(map[string]string{"deleted": path})
	}
	out.writeMessage(fmt.Sprintf("Deleted org unit %s", path))
	return nil
}
