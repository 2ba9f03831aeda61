package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/wesnick/gshell/pkg/gshell"
)

const listPageSize = 100

// messageListOutput is JSON output format for message lists
type messageListOutput struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	Labels   []string `json:"labels"`
	Date     string   `json:"date"`
	From     string   `json:"from"`
	Subject  string   `json:"subject"`
	Snippet  string   `json:"snippet"`
}

func runMessagesList(ctx context.Context, conn *gshell.Connection, label, query string, limit int, includeSpamTrash bool, out *outputWriter) error {
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}

	var labelID string
	if label != "" {
		labelID, err = conn.ResolveLabel(ctx, label)
		if err != nil {
			return err
		}
		out.writeVerbose("Resolved label '%s' to ID '%s'", label, labelID)
	}

	var ids []*gmail.Message
	pageToken := ""
	for {
		call := svc.Users.Messages.List(gshell.Me).Q(query).IncludeSpamTrash(includeSpamTrash).Context(ctx)
		if labelID != "" {
			call = call.LabelIds(labelID)
		}
		size := int64(listPageSize)
		if limit > 0 && limit-len(ids) < listPageSize {
			size = int64(limit - len(ids))
		}
		call = call.MaxResults(size)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *gmail.ListMessagesResponse
		if err := rpc(ctx, conn, "gmail.Users.Messages.List", func() (err error) {
			resp, err = call.Do()
			return
		}); err != nil {
			return fmt.Errorf("failed to list messages: %w", err)
		}
		ids = append(ids, resp.Messages...)
		pageToken = resp.NextPageToken
		if pageToken == "" || (limit > 0 && len(ids) >= limit) {
			break
		}
	}
	out.writeVerbose("Found %d messages", len(ids))

	output := make([]messageListOutput, 0, len(ids))
	for _, m := range ids {
		var msg *gmail.Message
		err := rpc(ctx, conn, "gmail.Users.Messages.Get", func() (err error) {
			msg, err = svc.Users.Messages.Get(gshell.Me, m.Id).
				Format("metadata").
				MetadataHeaders("From", "Subject", "Date").
				Context(ctx).Do()
			return
		})
		if err != nil {
			// Keep listing; a message may vanish between list and get.
			out.writeVerbose("Failed to get message %s: %v", m.Id, err)
			output = append(output, messageListOutput{ID: m.Id, ThreadID: m.ThreadId})
			continue
		}
		output = append(output, messageListOutput{
			ID:       msg.Id,
			ThreadID: msg.ThreadId,
			Labels:   msg.LabelIds,
			Date:     formatDate(msg.InternalDate),
			From:     header(msg.Payload, "From"),
			Subject:  header(msg.Payload, "Subject"),
			Snippet:  msg.Snippet,
		})
	}

	if out.structured() {
		return out.writeData(output)
	}

	if len(output) == 0 {
		out.writeMessage("No messages found")
		return nil
	}

	names := labelNames(ctx, conn)
	headers := []string{"ID", "DATE", "FROM", "SUBJECT", "LABELS"}
	rows := make([][]string, len(output))
	for i, m := range output {
		var labels []string
		for _, id := range m.Labels {
			if n, ok := names[id]; ok {
				labels = append(labels, n)
			} else {
				labels = append(labels, id)
			}
		}
		rows[i] = []string{
			m.ID,
			m.Date,
			truncateString(m.From, 30),
			truncateString(m.Subject, 40),
			strings.Join(labels, ", "),
		}
	}
	return out.writeTable(headers, rows)
}

// labelNames maps label IDs to names, empty when labels cannot be loaded
func labelNames(ctx context.Context, conn *gshell.Connection) map[string]string {
	ret := map[string]string{}
	labels, err := conn.Labels(ctx)
	if err != nil {
		return ret
	}
	for _, l := range labels {
		ret[l.Id] = l.Name
	}
	return ret
}

// messageGetOutput is JSON output format for reading a message
type messageGetOutput struct {
	ID           string            `json:"id"`
	ThreadID     string            `json:"threadId"`
	LabelIDs     []string          `json:"labelIds"`
	Snippet      string            `json:"snippet"`
	SizeEstimate int64             `json:"sizeEstimate,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         string            `json:"body,omitempty"`
	BodyHTML     string            `json:"bodyHtml,omitempty"`
	BodyMarkdown string            `json:"bodyMarkdown,omitempty"`
	Attachments  []attachmentInfo  `json:"attachments,omitempty"`
	Raw          string            `json:"raw,omitempty"`
}

var messageFormats = map[string]bool{"full": true, "metadata": true, "minimal": true, "raw": true}

func runMessagesGet(ctx context.Context, conn *gshell.Connection, messageID, format string, markdown bool, out *outputWriter) error {
	if messageID == "" {
		return fmt.Errorf("message ID is required")
	}
	if format == "" {
		format = "full"
	}
	if !messageFormats[format] {
		return fmt.Errorf("invalid format %q (must be full, metadata, minimal or raw)", format)
	}
	if markdown && format != "full" {
		return fmt.Errorf("--markdown requires --format full")
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}

	var msg *gmail.Message
	if err := rpc(ctx, conn, "gmail.Users.Messages.Get", func() (err error) {
		msg, err = svc.Users.Messages.Get(gshell.Me, messageID).Format(format).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}

	output := messageGetOutput{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		LabelIDs:     msg.LabelIds,
		Snippet:      msg.Snippet,
		SizeEstimate: msg.SizeEstimate,
	}

	if format == "raw" {
		raw, err := decodeBody(msg.Raw)
		if err != nil {
			return fmt.Errorf("failed to decode raw message: %w", err)
		}
		if out.structured() {
			output.Raw = raw
			return out.writeData(output)
		}
		fmt.Fprint(out.writer, raw)
		return nil
	}

	if msg.Payload != nil {
		output.Headers = map[string]string{}
		for _, h := range []string{"From", "To", "Cc", "Subject", "Date"} {
			if v := header(msg.Payload, h); v != "" {
				output.Headers[h] = v
			}
		}
		output.Body = findPart(msg.Payload, "text/plain")
		output.BodyHTML = findPart(msg.Payload, "text/html")
		output.Attachments = attachments(msg.Payload)
		if markdown && output.BodyHTML != "" {
			output.BodyMarkdown, err = convertHTMLToMarkdown(output.BodyHTML)
			if err != nil {
				return err
			}
		}
	}

	if out.structured() {
		return out.writeData(output)
	}

	if markdown {
		body, note := output.BodyMarkdown, ""
		if body == "" {
			body = output.Body
			note = "HTML body not available, showing plain text"
		}
		text, err := formatEmailAsMarkdown(emailFrontmatter{
			MessageID: output.ID,
			ThreadID:  output.ThreadID,
			From:      output.Headers["From"],
			To:        output.Headers["To"],
			Cc:        output.Headers["Cc"],
			Subject:   output.Headers["Subject"],
			Date:      output.Headers["Date"],
			Labels:    output.LabelIDs,
			Note:      note,
		}, body, output.Attachments)
		if err != nil {
			return err
		}
		fmt.Fprint(out.writer, text)
		return nil
	}

	if err := out.writeFields([][2]string{
		{"ID", output.ID},
		{"Thread", output.ThreadID},
		{"From", output.Headers["From"]},
		{"To", output.Headers["To"]},
		{"Cc", output.Headers["Cc"]},
		{"Subject", output.Headers["Subject"]},
		{"Date", output.Headers["Date"]},
		{"Labels", strings.Join(output.LabelIDs, ", ")},
	}); err != nil {
		return err
	}

	body := output.Body
	if body == "" && output.BodyHTML != "" {
		body = htmlToText(output.BodyHTML)
	}
	if body == "" {
		body = output.Snippet
	}
	if body != "" {
		out.writeMessage("")
		out.writeMessage(strings.TrimRight(body, "\n"))
	}
	if len(output.Attachments) > 0 {
		out.writeMessage("")
		out.writeMessage("Attachments:")
		for _, a := range output.Attachments {
			out.writeMessage(fmt.Sprintf("  [%d] %s (%s, %s)", a.Index, a.Filename, a.MimeType, formatSize(a.Size)))
		}
	}
	return nil
}

// sendOptions describes an outgoing message
type sendOptions struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	HTML        bool
	ThreadID    string
	Attachments []string
}

// formatAddresses renders address flags as one header value. Display names
// are Q-encoded when they are not plain ASCII.
func formatAddresses(values []string) (string, error) {
	var parts []string
	for _, v := range values {
		addrs, err := mail.ParseAddressList(v)
		if err != nil {
			return "", fmt.Errorf("invalid address %q: %w", v, err)
		}
		for _, a := range addrs {
			if a.Name == "" {
				parts = append(parts, a.Address)
				continue
			}
			parts = append(parts, a.String())
		}
	}
	return strings.Join(parts, ", "), nil
}

// buildMIME renders opts as an RFC 822 message
func buildMIME(opts sendOptions) ([]byte, error) {
	var buf bytes.Buffer
	writeHeader := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	writeHeader("MIME-Version", "1.0")
	for _, h := range []struct {
		name   string
		values []string
	}{{"To", opts.To}, {"Cc", opts.Cc}, {"Bcc", opts.Bcc}} {
		if len(h.values) == 0 {
			continue
		}
		v, err := formatAddresses(h.values)
		if err != nil {
			return nil, err
		}
		writeHeader(h.name, v)
	}
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", opts.Subject))

	contentType := `text/plain; charset="UTF-8"`
	if opts.HTML {
		contentType = `text/html; charset="UTF-8"`
	}

	if len(opts.Attachments) == 0 {
		writeHeader("Content-Type", contentType)
		buf.WriteString("\r\n")
		buf.WriteString(opts.Body)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	writeHeader("Content-Type", fmt.Sprintf("multipart/mixed; boundary=%s", mw.Boundary()))
	buf.WriteString("\r\n")

	w, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":        {contentType},
		"Content-Disposition": {"inline"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, opts.Body); err != nil {
		return nil, err
	}

	for _, path := range opts.Attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", path, err)
		}
		filename := filepath.Base(path)
		mimeType := mime.TypeByExtension(filepath.Ext(filename))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {fmt.Sprintf("%s; name=%q", mimeType, filename)},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", filename)},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, err
		}
		enc := base64.NewEncoder(base64.StdEncoding, w)
		if _, err := enc.Write(data); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// runMessagesSend sends an email message
func runMessagesSend(ctx context.Context, conn *gshell.Connection, opts sendOptions, out *outputWriter) error {
	if len(opts.To) == 0 {
		return fmt.Errorf("--to is required")
	}
	if opts.Body == "" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("error reading body from stdin: %w", err)
		}
		opts.Body = string(b)
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}

	raw, err := buildMIME(opts)
	if err != nil {
		return err
	}

	var sent *gmail.Message
	if err := rpc(ctx, conn, "gmail.Users.Messages.Send", func() (err error) {
		sent, err = svc.Users.Messages.Send(gshell.Me, &gmail.Message{
			Raw:      base64.URLEncoding.EncodeToString(raw),
			ThreadId: opts.ThreadID,
		}).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	if out.structured() {
		return out.writeData(map[string]string{"status": "sent", "id": sent.Id, "threadId": sent.ThreadId})
	}
	out.writeMessage(fmt.Sprintf("Message sent (%s)", sent.Id))
	return nil
}

func runMessagesTrash(ctx context.Context, conn *gshell.Connection, messageID string, fromStdin bool, out *outputWriter) error {
	ids, err := collectIDs(messageID, fromStdin, "message ID")
	if err != nil {
		return err
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	return runBatch(ctx, conn, ids, "trashed", "Message moved to trash", func(ctx context.Context, id string) error {
		return gshell.LogRPC("gmail.Users.Messages.Trash", func() error {
			_, err := svc.Users.Messages.Trash(gshell.Me, id).Context(ctx).Do()
			return err
		})
	}, out)
}

func runMessagesUntrash(ctx context.Context, conn *gshell.Connection, messageID string, fromStdin bool, out *outputWriter) error {
	ids, err := collectIDs(messageID, fromStdin, "message ID")
	if err != nil {
		return err
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	return runBatch(ctx, conn, ids, "untrashed", "Message restored from trash", func(ctx context.Context, id string) error {
		return gshell.LogRPC("gmail.Users.Messages.Untrash", func() error {
			_, err := svc.Users.Messages.Untrash(gshell.Me, id).Context(ctx).Do()
			return err
		})
	}, out)
}

// runMessagesDelete permanently deletes messages, bypassing the trash
func runMessagesDelete(ctx context.Context, conn *gshell.Connection, messageID string, fromStdin, force bool, out *outputWriter) error {
	if !force {
		return fmt.Errorf("permanent deletion requires --force (use 'trash' to move to trash)")
	}
	ids, err := collectIDs(messageID, fromStdin, "message ID")
	if err != nil {
		return err
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	return runBatch(ctx, conn, ids, "deleted", "Message deleted", func(ctx context.Context, id string) error {
		return gshell.LogRPC("gmail.Users.Messages.Delete", func() error {
			return svc.Users.Messages.Delete(gshell.Me, id).Context(ctx).Do()
		})
	}, out)
}

// runMessagesModify adds and removes labels, given by name or ID
func runMessagesModify(ctx context.Context, conn *gshell.Connection, messageID string, fromStdin bool, add, remove []string, out *outputWriter) error {
	if len(add) == 0 && len(remove) == 0 {
		return fmt.Errorf("at least one of --add-label or --remove-label is required")
	}
	ids, err := collectIDs(messageID, fromStdin, "message ID")
	if err != nil {
		return err
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}

	req := &gmail.ModifyMessageRequest{}
	for _, l := range add {
		id, err := conn.ResolveLabel(ctx, l)
		if err != nil {
			return err
		}
		req.AddLabelIds = append(req.AddLabelIds, id)
	}
	for _, l := range remove {
		id, err := conn.ResolveLabel(ctx, l)
		if err != nil {
			return err
		}
		req.RemoveLabelIds = append(req.RemoveLabelIds, id)
	}
	out.writeVerbose("Adding %v, removing %v", req.AddLabelIds, req.RemoveLabelIds)

	return runBatch(ctx, conn, ids, "modified", "Message labels updated", func(ctx context.Context, id string) error {
		return gshell.LogRPC("gmail.Users.Messages.Modify", func() error {
			_, err := svc.Users.Messages.Modify(gshell.Me, id, req).Context(ctx).Do()
			return err
		})
	}, out)
}
