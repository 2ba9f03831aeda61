package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/wesnick/gshell/pkg/gshell"
)

func messageAttachments(ctx context.Context, conn *gshell.Connection, svc *gmail.Service, messageID string) ([]attachmentInfo, error) {
	var msg *gmail.Message
	if err := rpc(ctx, conn, "gmail.Users.Messages.Get", func() (err error) {
		msg, err = svc.Users.Messages.Get(gshell.Me, messageID).Format("full").Context(ctx).Do()
		return
	}); err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return attachments(msg.Payload), nil
}

// uniqueName returns name, or "name (n).ext" when an earlier attachment of
// the same download already took it.
func uniqueName(name string, used map[string]bool) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 1; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
	used[candidate] = true
	return candidate
}

// runAttachmentsList lists attachments in a message
func runAttachmentsList(ctx context.Context, conn *gshell.Connection, messageID string, out *outputWriter) error {
	if messageID == "" {
		return fmt.Errorf("message ID is required")
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	atts, err := messageAttachments(ctx, conn, svc, messageID)
	if err != nil {
		return err
	}

	if out.structured() {
		if atts == nil {
			atts = []attachmentInfo{}
		}
		return out.writeData(atts)
	}
	if len(atts) == 0 {
		out.writeMessage("No attachments found")
		return nil
	}

	headers := []string{"INDEX", "FILENAME", "TYPE", "SIZE"}
	rows := make([][]string, len(atts))
	for i, a := range atts {
		rows[i] = []string{fmt.Sprintf("%d", a.Index), a.Filename, a.MimeType, formatSize(a.Size)}
	}
	return out.writeTable(headers, rows)
}

// attachmentDownloadOptions are the 'attachments download' flags. With no
// Index or Pattern every attachment is saved.
type attachmentDownloadOptions struct {
	Index     []int
	Pattern   string
	OutputDir string
	Output    string
}

func (o attachmentDownloadOptions) selectFrom(atts []attachmentInfo) ([]attachmentInfo, error) {
	if len(o.Index) == 0 && o.Pattern == "" {
		return atts, nil
	}
	want := make(map[int]bool, len(o.Index))
	for _, i := range o.Index {
		if i < 0 || i >= len(atts) {
			return nil, fmt.Errorf("attachment index %d out of range (message has %d)", i, len(atts))
		}
		want[i] = true
	}
	var ret []attachmentInfo
	for _, a := range atts {
		if want[a.Index] {
			ret = append(ret, a)
			continue
		}
		if o.Pattern != "" {
			ok, err := filepath.Match(o.Pattern, a.Filename)
			if err != nil {
				return nil, fmt.Errorf("bad filename pattern: %w", err)
			}
			if ok {
				ret = append(ret, a)
			}
		}
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("no attachments match")
	}
	return ret, nil
}

func runAttachmentsDownload(ctx context.Context, conn *gshell.Connection, messageID string, opts attachmentDownloadOptions, out *outputWriter) error {
	if messageID == "" {
		return fmt.Errorf("message ID is required")
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	atts, err := messageAttachments(ctx, conn, svc, messageID)
	if err != nil {
		return err
	}
	if len(atts) == 0 {
		return fmt.Errorf("no attachments found in message")
	}
	toDownload, err := opts.selectFrom(atts)
	if err != nil {
		return err
	}
	if opts.Output != "" && len(toDownload) > 1 {
		return fmt.Errorf("--output needs exactly one attachment, %d selected", len(toDownload))
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}

	var downloaded []string
	used := map[string]bool{}
	for _, a := range toDownload {
		data := a.inline
		if a.AttachmentID != "" {
			var body *gmail.MessagePartBody
			if err := rpc(ctx, conn, "gmail.Users.Messages.Attachments.Get", func() (err error) {
				body, err = svc.Users.Messages.Attachments.Get(gshell.Me, messageID, a.AttachmentID).Context(ctx).Do()
				return
			}); err != nil {
				return fmt.Errorf("failed to download %s: %w", a.Filename, err)
			}
			data = body.Data
		}
		content, err := decodeBody(data)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", a.Filename, err)
		}

		outputPath := opts.Output
		if outputPath == "" {
			name, err := localFileName(a.Filename)
			if err != nil {
				name = fmt.Sprintf("attachment-%d", a.Index)
			}
			outputPath = filepath.Join(opts.OutputDir, uniqueName(name, used))
		}
		if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", outputPath, err)
		}
		downloaded = append(downloaded, outputPath)
		if !out.structured() {
			out.writeMessage(fmt.Sprintf("Downloaded: %s (%s)", outputPath, formatSize(int64(len(content)))))
		}
	}

	if out.structured() {
		return out.writeData(map[string]interface{}{
			"downloaded": len(downloaded),
			"files":      downloaded,
		})
	}
	return nil
}
