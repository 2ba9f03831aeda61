package main

import (
	"context"
	"fmt"

	drive "google.golang.org/api/drive/v3"

	"github.com/wesnick/gshell/pkg/gshell"
)

var (
	permissionRoles = map[string]bool{"owner": true, "organizer": true, "fileOrganizer": true, "writer": true, "commenter": true, "reader": true}
	permissionTypes = map[string]bool{"user": true, "group": true, "domain": true, "anyone": true}
)

// permissionOutput is JSON output for Drive permissions
type permissionOutput struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Role         string `json:"role"`
	EmailAddress string `json:"emailAddress,omitempty"`
	Domain       string `json:"domain,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
}

func toPermissionOutput(p *drive.Permission) permissionOutput {
	return permissionOutput{
		ID:           p.Id,
		Type:         p.Type,
		Role:         p.Role,
		EmailAddress: p.EmailAddress,
		Domain:       p.Domain,
		DisplayName:  p.DisplayName,
	}
}

func runPermissionsList(ctx context.Context, conn *gshell.Connection, fileID string, out *outputWriter) error {
	if fileID == "" {
		return fmt.Errorf("file ID is required")
	}
	svc, err := driveService(conn)
	if err != nil {
		return err
	}
	var resp *drive.PermissionList
	if err := rpc(ctx, conn, "drive.Permissions.List", func() (err error) {
		resp, err = svc.Permissions.List(fileID).
			SupportsAllDrives(true).
			Fields("permissions(id, type, role, emailAddress, domain, displayName)").
			Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to list permissions: %w", err)
	}

	output := make([]permissionOutput, len(resp.Permissions))
	for i, p := range resp.Permissions {
		output[i] = toPermissionOutput(p)
	}
	if out.structured() {
		return out.writeData(output)
	}

	headers := []string{"ID", "TYPE", "ROLE", "WHO"}
	rows := make([][]string, len(output))
	for i, p := range output {
		who := p.EmailAddress
		if who == "" {
			who = p.Domain
		}
		rows[i] = []string{p.ID, p.Type, p.Role, who}
	}
	return out.writeTable(headers, rows)
}

// permissionOptions are the 'permissions create' flags
type permissionOptions struct {
	Role    string
	Type    string
	Email   string
	Domain  string
	Notify  bool
	Message string
}

func (o permissionOptions) validate() error {
	if !permissionRoles[o.Role] {
		return fmt.Errorf("invalid role %q", o.Role)
	}
	if !permissionTypes[o.Type] {
		return fmt.Errorf("invalid type %q (must be user, group, domain or anyone)", o.Type)
	}
	switch o.Type {
	case "user", "group":
		if o.Email == "" {
			return fmt.Errorf("--email is required for type %s", o.Type)
		}
	case "domain":
		if o.Domain == "" {
			return fmt.Errorf("--domain is required for type domain")
		}
	}
	return nil
}

func runPermissionsCreate(ctx context.Context, conn *gshell.Connection, fileID string, opts permissionOptions, out *outputWriter) error {
	if fileID == "" {
		return fmt.Errorf("file ID is required")
	}
	if err := opts.validate(); err != nil {
		return err
	}
	svc, err := driveService(conn)
	if err != nil {
		return err
	}

	p := &drive.Permission{
		Role:         opts.Role,
		Type:         opts.Type,
		EmailAddress: opts.Email,
		Domain:       opts.Domain,
	}
	var created *drive.Permission
	if err := rpc(ctx, conn, "drive.Permissions.Create", func() (err error) {
		call := svc.Permissions.Create(fileID, p).
			SupportsAllDrives(true).
			SendNotificationEmail(opts.Notify).
			Context(ctx)
		if opts.Notify && opts.Message != "" {
			call = call.EmailMessage(opts.Message)
		}
		if opts.Role == "owner" {
			call = call.TransferOwnership(true)
		}
		created, err = call.Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}

	if out.structured() {
		return out.writeData(toPermissionOutput(created))
	}
	out.writeMessage(fmt.Sprintf("Granted %s to %s (%s)", opts.Role, opts.Email+opts.Domain, created.Id))
	return nil
}

func runPermissionsDelete(ctx context.Context, conn *gshell.Connection, fileID, permissionID string, out *outputWriter) error {
	if fileID == "" || permissionID == "" {
		return fmt.Errorf("file ID and permission ID are required")
	}
	svc, err := driveService(conn)
	if err != nil {
		return err
	}
	if err := rpc(ctx, conn, "drive.Permissions.Delete", func() error {
		return svc.Permissions.Delete(fileID, permissionID).SupportsAllDrives(true).Context(ctx).Do()
	}); err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	if out.structured() {
		return out.writeData(map[string]string{"deleted": permissionID})
	}
	out.writeMessage(fmt.Sprintf("Removed permission %s from %s", permissionID, fileID))
	return nil
}
