package main

import (
	"context"
	"fmt"

	admin "google.golang.org/api/admin/directory/v1"
	reports "google.golang.org/api/admin/reports/v1"
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/wesnick/gshell/pkg/gshell"
)

func notAuthorized(api string) error {
	return fmt.Errorf("not authorized for %s; run 'gshell auth login --api %s'", api, api)
}

func gmailService(conn *gshell.Connection) (*gmail.Service, error) {
	if svc := conn.GmailService(); svc != nil {
		return svc, nil
	}
	return nil, notAuthorized(gshell.APIGmail)
}

func driveService(conn *gshell.Connection) (*drive.Service, error) {
	if svc := conn.DriveService(); svc != nil {
		return svc, nil
	}
	return nil, notAuthorized(gshell.APIDrive)
}

func directoryService(conn *gshell.Connection) (*admin.Service, error) {
	if svc := conn.DirectoryService(); svc != nil {
		return svc, nil
	}
	return nil, notAuthorized(gshell.APIDirectory)
}

func reportsService(conn *gshell.Connection) (*reports.Service, error) {
	if svc := conn.ReportsService(); svc != nil {
		return svc, nil
	}
	return nil, notAuthorized(gshell.APIReports)
}

// rpc waits for the rate limiter, then runs fn as a logged RPC
func rpc(ctx context.Context, conn *gshell.Connection, name string, fn func() error) error {
	if err := conn.Wait(ctx); err != nil {
		return err
	}
	err := gshell.LogRPC(name, fn)
	if isRateLimited(err) {
		conn.Backoff(0)
	}
	return err
}

// batchResult is JSON output for batch operations
type batchResult struct {
	Action    string `json:"action"`
	Succeeded int    `json:"succeeded"`
	Errors    int    `json:"errors"`
}

// runBatch applies fn to every ID and reports the outcome. done is the past
// tense shown for a single item, e.g. "Message trashed".
func runBatch(ctx context.Context, conn *gshell.Connection, ids []string, action, done string, fn func(context.Context, string) error, out *outputWriter) error {
	bp := newBatchProcessor(len(ids), out.verbose, conn)
	bp.errOut = out.errOut
	if err := bp.process(ctx, ids, fn); err != nil {
		return err
	}

	if out.structured() {
		if err := out.writeData(batchResult{Action: action, Succeeded: bp.succeeded(), Errors: bp.failed()}); err != nil {
			return err
		}
		return bp.err()
	}

	if len(ids) == 1 && bp.failed() == 0 {
		out.writeMessage(done)
		return nil
	}
	bp.report(out.writer)
	return bp.err()
}
