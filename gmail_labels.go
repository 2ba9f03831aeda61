package main

import (
	"context"
	"fmt"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/wesnick/gshell/pkg/gshell"
)

// labelOutput is JSON output for labels
type labelOutput struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	MessageListView string `json:"messageListVisibility,omitempty"`
	LabelListView   string `json:"labelListVisibility,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	TextColor       string `json:"textColor,omitempty"`
	MessagesTotal   int64  `json:"messagesTotal,omitempty"`
	MessagesUnread  int64  `json:"messagesUnread,omitempty"`
}

func toLabelOutput(l *gmail.Label) labelOutput {
	o := labelOutput{
		ID:              l.Id,
		Name:            l.Name,
		Type:            l.Type,
		MessageListView: l.MessageListVisibility,
		LabelListView:   l.LabelListVisibility,
		MessagesTotal:   l.MessagesTotal,
		MessagesUnread:  l.MessagesUnread,
	}
	if l.Color != nil {
		o.BackgroundColor = l.Color.BackgroundColor
		o.TextColor = l.Color.TextColor
	}
	return o
}

// labelOptions are the mutable label properties; empty fields are left unchanged
type labelOptions struct {
	Name                  string
	LabelListVisibility   string
	MessageListVisibility string
	BackgroundColor       string
	TextColor             string
}

func (o labelOptions) apply(l *gmail.Label) {
	if o.Name != "" {
		l.Name = o.Name
	}
	if o.LabelListVisibility != "" {
		l.LabelListVisibility = o.LabelListVisibility
	}
	if o.MessageListVisibility != "" {
		l.MessageListVisibility = o.MessageListVisibility
	}
	if o.BackgroundColor != "" || o.TextColor != "" {
		if l.Color == nil {
			l.Color = &gmail.LabelColor{}
		}
		if o.BackgroundColor != "" {
			l.Color.BackgroundColor = o.BackgroundColor
		}
		if o.TextColor != "" {
			l.Color.TextColor = o.TextColor
		}
	}
}

func runLabelsList(ctx context.Context, conn *gshell.Connection, systemOnly, userOnly bool, out *outputWriter) error {
	if systemOnly && userOnly {
		return fmt.Errorf("--system and --user-only are mutually exclusive")
	}
	if _, err := gmailService(conn); err != nil {
		return err
	}
	labels, err := conn.Labels(ctx)
	if err != nil {
		return fmt.Errorf("failed to load labels: %w", err)
	}
	out.writeVerbose("Loaded %d labels", len(labels))

	output := []labelOutput{}
	for _, l := range labels {
		isSystem := l.Type == "system"
		if (systemOnly && !isSystem) || (userOnly && isSystem) {
			continue
		}
		output = append(output, toLabelOutput(l))
	}

	if out.structured() {
		return out.writeData(output)
	}

	headers := []string{"NAME", "TYPE", "ID"}
	rows := make([][]string, len(output))
	for i, l := range output {
		rows[i] = []string{l.Name, l.Type, l.ID}
	}
	return out.writeTable(headers, rows)
}

func runLabelsGet(ctx context.Context, conn *gshell.Connection, nameOrID string, out *outputWriter) error {
	if nameOrID == "" {
		return fmt.Errorf("label name or ID is required")
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	id, err := conn.ResolveLabel(ctx, nameOrID)
	if err != nil {
		return err
	}

	var l *gmail.Label
	if err := rpc(ctx, conn, "gmail.Users.Labels.Get", func() (err error) {
		l, err = svc.Users.Labels.Get(gshell.Me, id).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to get label: %w", err)
	}

	o := toLabelOutput(l)
	if out.structured() {
		return out.writeData(o)
	}
	return out.writeFields([][2]string{
		{"Name", o.Name},
		{"ID", o.ID},
		{"Type", o.Type},
		{"Label List", o.LabelListView},
		{"Message List", o.MessageListView},
		{"Background", o.BackgroundColor},
		{"Text Color", o.TextColor},
		{"Messages", fmt.Sprintf("%d (%d unread)", o.MessagesTotal, o.MessagesUnread)},
	})
}

func runLabelsCreate(ctx context.Context, conn *gshell.Connection, opts labelOptions, out *outputWriter) error {
	if opts.Name == "" {
		return fmt.Errorf("label name is required")
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}

	l := &gmail.Label{}
	opts.apply(l)
	var created *gmail.Label
	if err := rpc(ctx, conn, "gmail.Users.Labels.Create", func() (err error) {
		created, err = svc.Users.Labels.Create(gshell.Me, l).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to create label: %w", err)
	}
	conn.ForgetLabels()

	if out.structured() {
		return out.writeData(toLabelOutput(created))
	}
	out.writeMessage(fmt.Sprintf("Created label %s (%s)", created.Name, created.Id))
	return nil
}

func runLabelsUpdate(ctx context.Context, conn *gshell.Connection, nameOrID string, opts labelOptions, out *outputWriter) error {
	if nameOrID == "" {
		return fmt.Errorf("label name or ID is required")
	}
	if opts == (labelOptions{}) {
		return fmt.Errorf("nothing to update")
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	id, err := conn.ResolveLabel(ctx, nameOrID)
	if err != nil {
		return err
	}

	l := &gmail.Label{}
	opts.apply(l)
	var updated *gmail.Label
	if err := rpc(ctx, conn, "gmail.Users.Labels.Patch", func() (err error) {
		updated, err = svc.Users.Labels.Patch(gshell.Me, id, l).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to update label: %w", err)
	}
	conn.ForgetLabels()

	if out.structured() {
		return out.writeData(toLabelOutput(updated))
	}
	out.writeMessage(fmt.Sprintf("Updated label %s (%s)", updated.Name, updated.Id))
	return nil
}

func runLabelsDelete(ctx context.Context, conn *gshell.Connection, nameOrID string, out *outputWriter) error {
	if nameOrID == "" {
		return fmt.Errorf("label name or ID is required")
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	id, err := conn.ResolveLabel(ctx, nameOrID)
	if err != nil {
		return err
	}

	if err := rpc(ctx, conn, "gmail.Users.Labels.Delete", func() error {
		return svc.Users.Labels.Delete(gshell.Me, id).Context(ctx).Do()
	}); err != nil {
		return fmt.Errorf("failed to delete label: %w", err)
	}
	conn.ForgetLabels()

	if out.structured() {
		return out.writeData(map[string]string{"deleted": id})
	}
	out.writeMessage(fmt.Sprintf("Deleted label %s", nameOrID))
	return nil
}
