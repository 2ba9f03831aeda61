package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/wesnick/gshell/pkg/gshell"
	"github.com/wesnick/gshell/pkg/gshell/diff"
)

// confirm asks a yes/no question on stderr and reads the answer from stdin
var confirm = func(out *outputWriter, question string) bool {
	fmt.Fprintf(out.errOut, "%s [y/N]: ", question)
	line, _ := bufio.NewReader(stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// sendAsOutput is JSON output for send-as aliases
type sendAsOutput struct {
	Email       string `json:"sendAsEmail"`
	DisplayName string `json:"displayName,omitempty"`
	ReplyTo     string `json:"replyToAddress,omitempty"`
	IsPrimary   bool   `json:"isPrimary"`
	IsDefault   bool   `json:"isDefault"`
	Status      string `json:"verificationStatus,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

func runSendAsList(ctx context.Context, conn *gshell.Connection, out *outputWriter) error {
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	var resp *gmail.ListSendAsResponse
	if err := rpc(ctx, conn, "gmail.Users.Settings.SendAs.List", func() (err error) {
		resp, err = svc.Users.Settings.SendAs.List(gshell.Me).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to list send-as aliases: %w", err)
	}

	output := make([]sendAsOutput, len(resp.SendAs))
	for i, s := range resp.SendAs {
		output[i] = sendAsOutput{
			Email:       s.SendAsEmail,
			DisplayName: s.DisplayName,
			ReplyTo:     s.ReplyToAddress,
			IsPrimary:   s.IsPrimary,
			IsDefault:   s.IsDefault,
			Status:      s.VerificationStatus,
			Signature:   s.Signature,
		}
	}
	if out.structured() {
		return out.writeData(output)
	}

	headers := []string{"EMAIL", "NAME", "PRIMARY", "DEFAULT", "SIGNATURE"}
	rows := make([][]string, len(output))
	for i, s := range output {
		rows[i] = []string{s.Email, s.DisplayName, yesNo(s.IsPrimary), yesNo(s.IsDefault), yesNo(s.Signature != "")}
	}
	return out.writeTable(headers, rows)
}

// signatureOutput is JSON output for 'sendas signature'
type signatureOutput struct {
	Email   string `json:"sendAsEmail"`
	Changed bool   `json:"changed"`
	Applied bool   `json:"applied"`
	Diff    string `json:"diff,omitempty"`
}

// runSendAsSignature previews the signature change as a diff, then patches it
// unless dryRun is set. Without yes, text mode asks for confirmation.
func runSendAsSignature(ctx context.Context, conn *gshell.Connection, email, signature, file string, yes, dryRun bool, out *outputWriter) error {
	if email == "" {
		return fmt.Errorf("send-as email is required")
	}
	if (signature == "") == (file == "") {
		return fmt.Errorf("exactly one of --signature or --file is required")
	}
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read signature file: %w", err)
		}
		signature = string(b)
	}
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}

	var current *gmail.SendAs
	if err := rpc(ctx, conn, "gmail.Users.Settings.SendAs.Get", func() (err error) {
		current, err = svc.Users.Settings.SendAs.Get(gshell.Me, email).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to get send-as %s: %w", email, err)
	}

	d, err := diff.Unified(email, current.Signature, signature)
	if err != nil {
		return fmt.Errorf("failed to diff signatures: %w", err)
	}
	result := signatureOutput{Email: email, Changed: d != "", Diff: d}

	if !result.Changed {
		if out.structured() {
			return out.writeData(result)
		}
		out.writeMessage("Signature unchanged")
		return nil
	}

	if !out.structured() {
		out.writeDiff(d)
	}
	if dryRun {
		if out.structured() {
			return out.writeData(result)
		}
		return nil
	}
	if !yes {
		if out.structured() {
			return fmt.Errorf("--yes is required with structured output")
		}
		if !confirm(out, "Apply this signature?") {
			out.writeMessage("Aborted")
			return nil
		}
	}

	if err := rpc(ctx, conn, "gmail.Users.Settings.SendAs.Patch", func() error {
		_, err := svc.Users.Settings.SendAs.Patch(gshell.Me, email, &gmail.SendAs{Signature: signature}).Context(ctx).Do()
		return err
	}); err != nil {
		return fmt.Errorf("failed to update signature: %w", err)
	}
	result.Applied = true

	if out.structured() {
		return out.writeData(result)
	}
	out.writeMessage(fmt.Sprintf("Signature updated for %s", email))
	return nil
}

// vacationOutput is JSON output for the vacation responder
type vacationOutput struct {
	Enabled            bool   `json:"enableAutoReply"`
	Subject            string `json:"responseSubject,omitempty"`
	BodyPlainText      string `json:"responseBodyPlainText,omitempty"`
	BodyHTML           string `json:"responseBodyHtml,omitempty"`
	RestrictToContacts bool   `json:"restrictToContacts"`
	RestrictToDomain   bool   `json:"restrictToDomain"`
	StartTime          string `json:"startTime,omitempty"`
	EndTime            string `json:"endTime,omitempty"`
}

func toVacationOutput(v *gmail.VacationSettings) vacationOutput {
	o := vacationOutput{
		Enabled:            v.EnableAutoReply,
		Subject:            v.ResponseSubject,
		BodyPlainText:      v.ResponseBodyPlainText,
		BodyHTML:           v.ResponseBodyHtml,
		RestrictToContacts: v.RestrictToContacts,
		RestrictToDomain:   v.RestrictToDomain,
	}
	if v.StartTime > 0 {
		o.StartTime = time.UnixMilli(v.StartTime).UTC().Format(time.RFC3339)
	}
	if v.EndTime > 0 {
		o.EndTime = time.UnixMilli(v.EndTime).UTC().Format(time.RFC3339)
	}
	return o
}

func writeVacation(v vacationOutput, out *outputWriter) error {
	if out.structured() {
		return out.writeData(v)
	}
	body := v.BodyPlainText
	if body == "" && v.BodyHTML != "" {
		body = htmlToText(v.BodyHTML)
	}
	return out.writeFields([][2]string{
		{"Enabled", yesNo(v.Enabled)},
		{"Subject", v.Subject},
		{"Message", body},
		{"Contacts Only", yesNo(v.RestrictToContacts)},
		{"Domain Only", yesNo(v.RestrictToDomain)},
		{"Start", formatRFC3339(v.StartTime)},
		{"End", formatRFC3339(v.EndTime)},
	})
}

func getVacation(ctx context.Context, conn *gshell.Connection, svc *gmail.Service) (*gmail.VacationSettings, error) {
	var v *gmail.VacationSettings
	err := rpc(ctx, conn, "gmail.Users.Settings.GetVacation", func() (err error) {
		v, err = svc.Users.Settings.GetVacation(gshell.Me).Context(ctx).Do()
		return
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get vacation settings: %w", err)
	}
	return v, nil
}

func runVacationGet(ctx context.Context, conn *gshell.Connection, out *outputWriter) error {
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	v, err := getVacation(ctx, conn, svc)
	if err != nil {
		return err
	}
	return writeVacation(toVacationOutput(v), out)
}

// vacationOptions are the 'vacation set' flags; nil pointers leave a setting unchanged
type vacationOptions struct {
	Enable       *bool
	Subject      *string
	Message      *string
	HTML         bool
	Start        string
	End          string
	ContactsOnly *bool
	DomainOnly   *bool
}

func runVacationSet(ctx context.Context, conn *gshell.Connection, opts vacationOptions, out *outputWriter) error {
	svc, err := gmailService(conn)
	if err != nil {
		return err
	}
	v, err := getVacation(ctx, conn, svc)
	if err != nil {
		return err
	}

	if opts.Enable != nil {
		v.EnableAutoReply = *opts.Enable
	}
	if opts.Subject != nil {
		v.ResponseSubject = *opts.Subject
	}
	if opts.Message != nil {
		if opts.HTML {
			v.ResponseBodyHtml = *opts.Message
			v.ResponseBodyPlainText = ""
		} else {
			v.ResponseBodyPlainText = *opts.Message
			v.ResponseBodyHtml = ""
		}
	}
	if opts.ContactsOnly != nil {
		v.RestrictToContacts = *opts.ContactsOnly
	}
	if opts.DomainOnly != nil {
		v.RestrictToDomain = *opts.DomainOnly
	}
	if opts.Start != "" {
		t, err := parseTime(opts.Start)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		v.StartTime = t.UnixMilli()
	}
	if opts.End != "" {
		t, err := parseTime(opts.End)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
		v.EndTime = t.UnixMilli()
	}
	if v.StartTime > 0 && v.EndTime > 0 && v.EndTime < v.StartTime {
		return fmt.Errorf("--end is before --start")
	}
	// Zero values must be sent so the responder can be switched off.
	v.ForceSendFields = []string{"EnableAutoReply", "RestrictToContacts", "RestrictToDomain"}

	var updated *gmail.VacationSettings
	if err := rpc(ctx, conn, "gmail.Users.Settings.UpdateVacation", func() (err error) {
		updated, err = svc.Users.Settings.UpdateVacation(gshell.Me, v).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to update vacation settings: %w", err)
	}
	return writeVacation(toVacationOutput(updated), out)
}

// parseTime accepts YYYY-MM-DD (midnight UTC) or RFC3339
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
