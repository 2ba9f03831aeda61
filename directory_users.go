package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
	admin "google.golang.org/api/admin/directory/v1"

	"github.com/wesnick/gshell/pkg/gshell"
)

// directoryPageSize is the largest page the Directory API returns
const directoryPageSize = 500

// readPassword prompts on stderr and reads a password without echo
var readPassword = func(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--password is required when stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// userOutput is JSON output for directory users
type userOutput struct {
	ID            string `json:"id"`
	PrimaryEmail  string `json:"primaryEmail"`
	GivenName     string `json:"givenName,omitempty"`
	FamilyName    string `json:"familyName,omitempty"`
	FullName      string `json:"fullName,omitempty"`
	OrgUnitPath   string `json:"orgUnitPath,omitempty"`
	IsAdmin       bool   `json:"isAdmin"`
	Suspended     bool   `json:"suspended"`
	Archived      bool   `json:"archived,omitempty"`
	LastLoginTime string `json:"lastLoginTime,omitempty"`
	CreationTime  string `json:"creationTime,omitempty"`
	DeletionTime  string `json:"deletionTime,omitempty"`
}

func toUserOutput(u *admin.User) userOutput {
	o := userOutput{
		ID:            u.Id,
		PrimaryEmail:  u.PrimaryEmail,
		OrgUnitPath:   u.OrgUnitPath,
		IsAdmin:       u.IsAdmin,
		Suspended:     u.Suspended,
		Archived:      u.Archived,
		LastLoginTime: u.LastLoginTime,
		CreationTime:  u.CreationTime,
		DeletionTime:  u.DeletionTime,
	}
	if u.Name != nil {
		o.GivenName = u.Name.GivenName
		o.FamilyName = u.Name.FamilyName
		o.FullName = u.Name.FullName
	}
	return o
}

func writeUser(u userOutput, out *outputWriter) error {
	if out.structured() {
		return out.writeData(u)
	}
	return out.writeFields([][2]string{
		{"Email", u.PrimaryEmail},
		{"ID", u.ID},
		{"Name", u.FullName},
		{"Org Unit", u.OrgUnitPath},
		{"Admin", yesNo(u.IsAdmin)},
		{"Suspended", yesNo(u.Suspended)},
		{"Last Login", formatRFC3339(u.LastLoginTime)},
		{"Created", formatRFC3339(u.CreationTime)},
		{"Deleted", formatRFC3339(u.DeletionTime)},
	})
}

// userListOptions are the 'users list' flags
type userListOptions struct {
	Domain      string
	Query       string
	OrgUnit     string
	Limit       int
	ShowDeleted bool
}

// queryQuoter escapes a value for a single quoted Directory query term.
var queryQuoter = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func (o userListOptions) query() string {
	q := o.Query
	if o.OrgUnit != "" {
		ou := fmt.Sprintf("orgUnitPath='%s'", queryQuoter.Replace(o.OrgUnit))
		if q == "" {
			q = ou
		} else {
			q += " " + ou
		}
	}
	return q
}

func runUsersList(ctx context.Context, conn *gshell.Connection, opts userListOptions, out *outputWriter) error {
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}

	var users []*admin.User
	pageToken := ""
	for {
		call := svc.Users.List().OrderBy("email").Context(ctx)
		if opts.Domain != "" {
			call = call.Domain(opts.Domain)
		} else {
			call = call.Customer(conn.Customer())
		}
		if q := opts.query(); q != "" {
			call = call.Query(q)
		}
		if opts.ShowDeleted {
			call = call.ShowDeleted("true")
		}
		size := int64(directoryPageSize)
		if opts.Limit > 0 && opts.Limit-len(users) < directoryPageSize {
			size = int64(opts.Limit - len(users))
		}
		call = call.MaxResults(size)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *admin.Users
		if err := rpc(ctx, conn, "directory.Users.List", func() (err error) {
			resp, err = call.Do()
			return
		}); err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		users = append(users, resp.Users...)
		pageToken = resp.NextPageToken
		if pageToken == "" || (opts.Limit > 0 && len(users) >= opts.Limit) {
			break
		}
	}

	output := make([]userOutput, len(users))
	for i, u := range users {
		output[i] = toUserOutput(u)
	}
	if out.structured() {
		return out.writeData(output)
	}
	if len(output) == 0 {
		out.writeMessage("No users found")
		return nil
	}

	headers := []string{"EMAIL", "NAME", "ORG UNIT", "ADMIN", "SUSPENDED", "LAST LOGIN"}
	rows := make([][]string, len(output))
	for i, u := range output {
		rows[i] = []string{u.PrimaryEmail, u.FullName, u.OrgUnitPath, yesNo(u.IsAdmin), yesNo(u.Suspended), formatRFC3339(u.LastLoginTime)}
	}
	return out.writeTable(headers, rows)
}

func runUsersGet(ctx context.Context, conn *gshell.Connection, userKey string, out *outputWriter) error {
	if userKey == "" {
		return fmt.Errorf("user email or ID is required")
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	var u *admin.User
	if err := rpc(ctx, conn, "directory.Users.Get", func() (err error) {
		u, err = svc.Users.Get(userKey).Context(ctx).Do()
		return
	}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("user %s not found", userKey)
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	return writeUser(toUserOutput(u), out)
}

// userCreateOptions are the 'users create' flags
type userCreateOptions struct {
	Email          string
	GivenName      string
	FamilyName     string
	Password       string
	OrgUnit        string
	ChangePassword bool
}

func runUsersCreate(ctx context.Context, conn *gshell.Connection, opts userCreateOptions, out *outputWriter) error {
	if opts.Email == "" || opts.GivenName == "" || opts.FamilyName == "" {
		return fmt.Errorf("--email, --given-name and --family-name are required")
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	if opts.Password == "" {
		opts.Password, err = readPassword(fmt.Sprintf("Password for %s: ", opts.Email))
		if err != nil {
			return err
		}
	}
	if len(opts.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	u := &admin.User{
		PrimaryEmail:              opts.Email,
		Name:                      &admin.UserName{GivenName: opts.GivenName, FamilyName: opts.FamilyName},
		Password:                  opts.Password,
		OrgUnitPath:               opts.OrgUnit,
		ChangePasswordAtNextLogin: opts.ChangePassword,
	}
	var created *admin.User
	if err := rpc(ctx, conn, "directory.Users.Insert", func() (err error) {
		created, err = svc.Users.Insert(u).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if out.structured() {
		return out.writeData(toUserOutput(created))
	}
	out.writeMessage(fmt.Sprintf("Created user %s (%s)", created.PrimaryEmail, created.Id))
	return nil
}

// userUpdateOptions are the 'users update' flags; empty fields are left unchanged
type userUpdateOptions struct {
	GivenName  string
	FamilyName string
	OrgUnit    string
	Suspend    bool
	Unsuspend  bool
}

func runUsersUpdate(ctx context.Context, conn *gshell.Connection, userKey string, opts userUpdateOptions, out *outputWriter) error {
	if userKey == "" {
		return fmt.Errorf("user email or ID is required")
	}
	if opts.Suspend && opts.Unsuspend {
		return fmt.Errorf("--suspend and --unsuspend are mutually exclusive")
	}
	if opts == (userUpdateOptions{}) {
		return fmt.Errorf("nothing to update")
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}

	u := &admin.User{OrgUnitPath: opts.OrgUnit}
	if opts.GivenName != "" || opts.FamilyName != "" {
		u.Name = &admin.UserName{GivenName: opts.GivenName, FamilyName: opts.FamilyName}
	}
	if opts.Suspend || opts.Unsuspend {
		u.Suspended = opts.Suspend
		u.ForceSendFields = []string{"Suspended"}
	}

	var updated *admin.User
	if err := rpc(ctx, conn, "directory.Users.Patch", func() (err error) {
		updated, err = svc.Users.Patch(userKey, u).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if out.structured() {
		return out.writeData(toUserOutput(updated))
	}
	out.writeMessage(fmt.Sprintf("Updated user %s", updated.PrimaryEmail))
	return nil
}

func runUsersDelete(ctx context.Context, conn *gshell.Connection, userKey string, force bool, out *outputWriter) error {
	if userKey == "" {
		return fmt.Errorf("user email or ID is required")
	}
	if !force {
		return fmt.Errorf("deleting a user requires --force")
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	if err := rpc(ctx, conn, "directory.Users.Delete", func() error {
		return svc.Users.Delete(userKey).Context(ctx).Do()
	}); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if out.structured() {
		return out.writeData(map[string]string{"deleted": userKey})
	}
	out.writeMessage(fmt.Sprintf("Deleted user %s", userKey))
	return nil
}

// runUsersUndelete restores a deleted user. Deleted users are addressed by
// their unique ID only.
func runUsersUndelete(ctx context.Context, conn *gshell.Connection, userID, orgUnit string, out *outputWriter) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if strings.Contains(userID, "@") {
		return fmt.Errorf("undelete needs the user's unique ID; find it with 'directory users list --show-deleted'")
	}
	if orgUnit == "" {
		orgUnit = "/"
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	if err := rpc(ctx, conn, "directory.Users.Undelete", func() error {
		return svc.Users.Undelete(userID, &admin.UserUndelete{OrgUnitPath: orgUnit}).Context(ctx).Do()
	}); err != nil {
		return fmt.Errorf("failed to undelete user: %w", err)
	}
	if out.structured() {
		return out.writeData(map[string]string{"undeleted": userID, "orgUnitPath": orgUnit})
	}
	out.writeMessage(fmt.Sprintf("Restored user %s into %s", userID, orgUnit))
	return nil
}

func runUsersMakeAdmin(ctx context.Context, conn *gshell.Connection, userKey string, revoke bool, out *outputWriter) error {
	if userKey == "" {
		return fmt.Errorf("user email or ID is required")
	}
	svc, err := directoryService(conn)
	if err != nil {
		return err
	}
	req := &admin.UserMakeAdmin{Status: !revoke, ForceSendFields: []string{"Status"}}
	if err := rpc(ctx, conn, "directory.Users.MakeAdmin", func() error {
		return svc.Users.MakeAdmin(userKey, req).Context(ctx).Do()
	}); err != nil {
		return fmt.Errorf("failed to change admin status: %w", err)
	}
	if out.structured() {
		return out.writeData(map[string]interface{}{"user": userKey, "isAdmin": !revoke})
	}
	if revoke {
		out.writeMessage(fmt.Sprintf("Revoked super admin from %s", userKey))
	} else {
		out.writeMessage(fmt.Sprintf("Granted super admin to %s", userKey))
	}
	return nil
}
