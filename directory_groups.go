package main

import (
	"context"
	"fmt"
	"strings"

	admin "google.golang.org/api/admin/directory/v1"

	"github.com/wesnick/gshell/pkg/gshell"
)

// groupOutput is JSON output for groups
type groupOutput struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	MembersCount int64  `json:"directMembersCount"`
	AdminCreated bool   `json:"adminCreated"`
}

func toGroupOutput(g *admin.Group) groupOutput {
	return groupOutput{
		ID:           g.Id,
		Email:        g.Email,
		Name:         g.Name,
		Description:  g.Description,
		MembersCount: g.DirectMembersCount,
		AdminCreated: g.AdminCreated,
	}
}

// groupListOptions are the 'groups list' flags
type groupListOptions struct {
	Domain string
	User   string
	Query  string
	Limit  int
}

func runGroupsList(ctx context.Context, conn *gshell.Connection, opts groupListOptions, out *outputWriter) error {
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}

	var groups []*admin.Group
	pageToken := ""
	for {
		call := svc.Groups.List().Context(ctx)
		switch {
		case opts.User != "":
			call = call.UserKey(opts.User)
		case opts.Domain != "":
			call = call.Domain(opts.Domain)
		default:
			call = call.Customer(conn.Customer())
		}
		if opts.Query != "" {
			call = call.Query(opts.Query)
		}
		size := int64(directoryPageSize)
		if opts.Limit > 0 && opts.Limit-len(groups) < directoryPageSize {
			size = int64(opts.Limit - len(groups))
		}
		call = call.MaxResults(size)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *admin.Groups
		if err := rpc(ctx, conn, "directory.Groups.List", func() (err error) {
			resp, err = call.Do()
			return
		}); err != nil {
			return fmt.Errorf("failed to list groups: %w", err)
		}
		groups = append(groups, resp.Groups...)
		pageToken = resp.NextPageToken
		if pageToken == "" || (opts.Limit > 0 && len(groups) >= opts.Limit) {
			break
		}
	}

	output := make([]groupOutput, len(groups))
	for i, g := range groups {
		output[i] = toGroupOutput(g)
	}
	if out.structured() {
		return out.writeData(output)
	}
	if len(output) == 0 {
		out.writeMessage("No groups found")
		return nil
	}
	headers := []string{"EMAIL", "NAME", "MEMBERS", "DESCRIPTION"}
	rows := make([][]string, len(output))
	for i, g := range output {
		rows[i] = []string{g.Email, g.Name, fmt.Sprintf("%d", g.MembersCount), truncateString(g.Description, 40)}
	}
	return out.writeTable(headers, rows)
}

func writeGroup(g groupOutput, out *outputWriter) error {
	if out.structured() {
		return out.writeData(g)
	}
	return out.writeFields([][2]string{
		{"Email", g.Email},
		{"ID", g.ID},
		{"Name", g.Name},
		{"Description", g.Description},
		{"Members", fmt.Sprintf("%d", g.MembersCount)},
	})
}

func runGroupsGet(ctx context.Context, conn *gshell.Connection, groupKey string, out *outputWriter) error {
	if groupKey == "" {
		return fmt.Errorf("group email or ID is required")
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	var g *admin.Group
	if err := rpc(ctx, conn, "directory.Groups.Get", func() (err error) {
		g, err = svc.Groups.Get(groupKey).Context(ctx).Do()
		return
	}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("group %s not found", groupKey)
		}
		return fmt.Errorf("failed to get group: %w", err)
	}
	return writeGroup(toGroupOutput(g), out)
}

// groupOptions are the group create/update flags; empty fields are left unchanged
type groupOptions struct {
	Email       string
	Name        string
	Description string
}

func runGroupsCreate(ctx context.Context, conn *gshell.Connection, opts groupOptions, out *outputWriter) error {
	if opts.Email == "" {
		return fmt.Errorf("--email is required")
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	g := &admin.Group{Email: opts.Email, Name: opts.Name, Description: opts.Description}
	var created *admin.Group
	if err := rpc(ctx, conn, "directory.Groups.Insert", func() (err error) {
		created, err = svc.Groups.Insert(g).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	if out.structured() {
		return out.writeData(toGroupOutput(created))
	}
	out.writeMessage(fmt.Sprintf("Created group %s (%s)", created.Email, created.Id))
	return nil
}

func runGroupsUpdate(ctx context.Context, conn *gshell.Connection, groupKey string, opts groupOptions, out *outputWriter) error {
	if groupKey == "" {
		return fmt.Errorf("group email or ID is required")
	}
	if opts == (groupOptions{}) {
		return fmt.Errorf("nothing to update")
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	g := &admin.Group{Email: opts.Email, Name: opts.Name, Description: opts.Description}
	var updated *admin.Group
	if err := rpc(ctx, conn, "directory.Groups.Patch", func() (err error) {
		updated, err = svc.Groups.Patch(groupKey, g).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if out.structured() {
		return out.writeData(toGroupOutput(updated))
	}
	out.writeMessage(fmt.Sprintf("Updated group %s", updated.Email))
	return nil
}

func runGroupsDelete(ctx context.Context, conn *gshell.Connection, groupKey string, force bool, out *outputWriter) error {
	if groupKey == "" {
		return fmt.Errorf("group email or ID is required")
	}
	if !force {
		return fmt.Errorf("deleting a group requires --force")
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	if err := rpc(ctx, conn, "directory.Groups.Delete", func() error {
		return svc.Groups.Delete(groupKey).Context(ctx).Do()
	}); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if out.structured() {
		return out.writeData(map[string]string{"deleted": groupKey})
	}
	out.writeMessage(fmt.Sprintf("Deleted group %s", groupKey))
	return nil
}

var memberRoles = map[string]bool{"OWNER": true, "MANAGER": true, "MEMBER": true}

// memberOutput is JSON output for group members
type memberOutput struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
}

func toMemberOutput(m *admin.Member) memberOutput {
	return memberOutput{ID: m.Id, Email: m.Email, Role: m.Role, Type: m.Type, Status: m.Status}
}

func normalizeRoles(roles string) (string, error) {
	if roles == "" {
		return "", nil
	}
	parts := strings.Split(strings.ToUpper(roles), ",")
	for i, r := range parts {
		r = strings.TrimSpace(r)
		if !memberRoles[r] {
			return "", fmt.Errorf("invalid role %q (must be OWNER, MANAGER or MEMBER)", r)
		}
		parts[i] = r
	}
	return strings.Join(parts, ","), nil
}

func runMembersList(ctx context.Context, conn *gshell.Connection, groupKey, roles string, out *outputWriter) error {
	if groupKey == "" {
		return fmt.Errorf("group email or ID is required")
	}
	roles, err := normalizeRoles(roles)
	if err != nil {
		return err
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}

	var members []*admin.Member
	pageToken := ""
	for {
		call := svc.Members.List(groupKey).MaxResults(200).Context(ctx)
		if roles != "" {
			call = call.Roles(roles)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var resp *admin.Members
		if err := rpc(ctx, conn, "directory.Members.List", func() (err error) {
			resp, err = call.Do()
			return
		}); err != nil {
			return fmt.Errorf("failed to list members: %w", err)
		}
		members = append(members, resp.Members...)
		if pageToken = resp.NextPageToken; pageToken == "" {
			break
		}
	}

	output := make([]memberOutput, len(members))
	for i, m := range members {
		output[i] = toMemberOutput(m)
	}
	if out.structured() {
		return out.writeData(output)
	}
	if len(output) == 0 {
		out.writeMessage("No members found")
		return nil
	}
	headers := []string{"EMAIL", "ROLE", "TYPE", "STATUS"}
	rows := make([][]string, len(output))
	for i, m := range output {
		rows[i] = []string{m.Email, m.Role, m.Type, m.Status}
	}
	return out.writeTable(headers, rows)
}

func runMembersAdd(ctx context.Context, conn *gshell.Connection, groupKey, email, role string, out *outputWriter) error {
	if groupKey == "" || email == "" {
		return fmt.Errorf("group and member email are required")
	}
	if role == "" {
		role = "MEMBER"
	}
	role, err := normalizeRoles(role)
	if err != nil {
		return err
	}
	if strings.Contains(role, ",") {
		return fmt.Errorf("a member has exactly one role")
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	var m *admin.Member
	if err := rpc(ctx, conn, "directory.Members.Insert", func() (err error) {
		m, err = svc.Members.Insert(groupKey, &admin.Member{Email: email, Role: role}).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	if out.structured() {
		return out.writeData(toMemberOutput(m))
	}
	out.writeMessage(fmt.Sprintf("Added %s to %s as %s", email, groupKey, role))
	return nil
}

// runMembersRemove removes one member, or every member listed on stdin
func runMembersRemove(ctx context.Context, conn *gshell.Connection, groupKey, email string, fromStdin bool, out *outputWriter) error {
	if groupKey == "" {
		return fmt.Errorf("group email or ID is required")
	}
	emails, err := collectIDs(email, fromStdin, "member email")
	if err != nil {
		return err
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	return runBatch(ctx, conn, emails, "removed", fmt.Sprintf("Removed %s from %s", email, groupKey), func(ctx context.Context, member string) error {
		return gshell.LogRPC("directory.Members.Delete", func() error {
			return svc.Members.Delete(groupKey, member).Context(ctx).Do()
		})
	}, out)
}

func runMembersHas(ctx context.Context, conn *gshell.Connection, groupKey, email string, out *outputWriter) error {
	if groupKey == "" || email == "" {
		return fmt.Errorf("group and member email are required")
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	var resp *admin.MembersHasMember
	if err := rpc(ctx, conn, "directory.Members.HasMember", func() (err error) {
		resp, err = svc.Members.HasMember(groupKey, email).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if out.structured() {
		return out.writeData(map[string]interface{}{"group": groupKey, "member": email, "isMember": resp.IsMember})
	}
	if resp.IsMember {
		out.writeMessage(fmt.Sprintf("%s is a member of %s", email, groupKey))
	} else {
		out.writeMessage(fmt.Sprintf("%s is not a member of %s", email, groupKey))
	}
	return nil
}
