package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	reports "google.golang.org/api/admin/reports/v1"

	"github.com/wesnick/gshell/pkg/gshell"
)

// reportsPageSize is the largest activities page the Reports API returns
const reportsPageSize = 1000

// activityOutput is JSON output for audit activities
type activityOutput struct {
	Time        string        `json:"time"`
	Application string        `json:"application"`
	Actor       string        `json:"actor,omitempty"`
	IPAddress   string        `json:"ipAddress,omitempty"`
	Events      []eventOutput `json:"events"`
}

type eventOutput struct {
	Type       string            `json:"type,omitempty"`
	Name       string            `json:"name"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

func toActivityOutput(a *reports.Activity) activityOutput {
	o := activityOutput{IPAddress: a.IpAddress}
	if a.Id != nil {
		o.Time = a.Id.Time
		o.Application = a.Id.ApplicationName
	}
	if a.Actor != nil {
		o.Actor = a.Actor.Email
		if o.Actor == "" {
			o.Actor = a.Actor.ProfileId
		}
	}
	for _, e := range a.Events {
		ev := eventOutput{Type: e.Type, Name: e.Name}
		if len(e.Parameters) > 0 {
			ev.Parameters = make(map[string]string, len(e.Parameters))
			for _, p := range e.Parameters {
				ev.Parameters[p.Name] = eventParamValue(p)
			}
		}
		o.Events = append(o.Events, ev)
	}
	return o
}

func eventParamValue(p *reports.ActivityEventsParameters) string {
	switch {
	case p.Value != "":
		return p.Value
	case len(p.MultiValue) > 0:
		return strings.Join(p.MultiValue, ",")
	case p.IntValue != 0:
		return strconv.FormatInt(p.IntValue, 10)
	default:
		return strconv.FormatBool(p.BoolValue)
	}
}

// reportDate validates a YYYY-MM-DD usage report date
func reportDate(s string) (string, error) {
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return "", fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", s)
	}
	return s, nil
}

// reportTime normalizes --start/--end to the RFC3339 form the API expects
func reportTime(flag, s string) (string, error) {
	if s == "" {
		return "", nil
	}
	t, err := parseTime(s)
	if err != nil {
		return "", fmt.Errorf("invalid %s %q (expected YYYY-MM-DD or RFC3339)", flag, s)
	}
	return t.UTC().Format(time.RFC3339), nil
}

// activityListOptions are the 'reports activities list' flags
type activityListOptions struct {
	User    string
	Event   string
	Start   string
	End     string
	Filter  string
	OrgUnit string
	Limit   int
}

func runActivitiesList(ctx context.Context, conn *gshell.Connection, app string, opts activityListOptions, out *outputWriter) error {
	if app == "" {
		return fmt.Errorf("application name is required")
	}
	if opts.User == "" {
		opts.User = "all"
	}
	start, err := reportTime("--start", opts.Start)
	if err != nil {
		return err
	}
	end, err := reportTime("--end", opts.End)
	if err != nil {
		return err
	}
	if start != "" && end != "" && end < start {
		return fmt.Errorf("--end is before --start")
	}
	svc, err := reportsService(conn)
	if err != nil {
		return err
	}

	var activities []*reports.Activity
	pageToken := ""
	for {
		call := svc.Activities.List(opts.User, app).Context(ctx)
		if opts.Event != "" {
			call = call.EventName(opts.Event)
		}
		if start != "" {
			call = call.StartTime(start)
		}
		if end != "" {
			call = call.EndTime(end)
		}
		if opts.Filter != "" {
			call = call.Filters(opts.Filter)
		}
		if opts.OrgUnit != "" {
			call = call.OrgUnitID(opts.OrgUnit)
		}
		size := int64(reportsPageSize)
		if opts.Limit > 0 && opts.Limit-len(activities) < reportsPageSize {
			size = int64(opts.Limit - len(activities))
		}
		call = call.MaxResults(size)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *reports.Activities
		if err := rpc(ctx, conn, "reports.Activities.List", func() (err error) {
			resp, err = call.Do()
			return
		}); err != nil {
			return fmt.Errorf("failed to list activities: %w", err)
		}
		activities = append(activities, resp.Items...)
		out.writeVerbose("Fetched %d activities", len(activities))
		pageToken = resp.NextPageToken
		if pageToken == "" || (opts.Limit > 0 && len(activities) >= opts.Limit) {
			break
		}
	}

	output := make([]activityOutput, len(activities))
	for i, a := range activities {
		output[i] = toActivityOutput(a)
	}
	if out.structured() {
		return out.writeData(output)
	}
	if len(output) == 0 {
		out.writeMessage("No activities found")
		return nil
	}

	headers := []string{"TIME", "ACTOR", "EVENTS", "IP"}
	rows := make([][]string, len(output))
	for i, a := range output {
		names := make([]string, len(a.Events))
		for j, e := range a.Events {
			names[j] = e.Name
		}
		rows[i] = []string{formatRFC3339(a.Time), a.Actor, truncateString(strings.Join(names, ","), 50), a.IPAddress}
	}
	return out.writeTable(headers, rows)
}

// channelOutput is JSON output for push notification channels
type channelOutput struct {
	ID         string `json:"id"`
	ResourceID string `json:"resourceId"`
	Address    string `json:"address"`
	Expiration string `json:"expiration,omitempty"`
}

func runActivitiesWatch(ctx context.Context, conn *gshell.Connection, app, user, address, token string, ttl time.Duration, out *outputWriter) error {
	if app == "" {
		return fmt.Errorf("application name is required")
	}
	if !strings.HasPrefix(address, "https://") {
		return fmt.Errorf("--address must be an https:// URL")
	}
	if user == "" {
		user = "all"
	}
	svc, err := reportsService(conn)
	if err != nil {
		return err
	}

	ch := &reports.Channel{
		Id:      uuid.NewString(),
		Type:    "web_hook",
		Address: address,
		Token:   token,
	}
	if ttl > 0 {
		ch.Expiration = time.Now().Add(ttl).UnixMilli()
	}
	var created *reports.Channel
	if err := rpc(ctx, conn, "reports.Activities.Watch", func() (err error) {
		created, err = svc.Activities.Watch(user, app, ch).Context(ctx).Do()
		return
	}); err != nil {
		return fmt.Errorf("failed to watch activities: %w", err)
	}

	o := channelOutput{ID: created.Id, ResourceID: created.ResourceId, Address: address}
	if o.ID == "" {
		o.ID = ch.Id
	}
	if created.Expiration > 0 {
		o.Expiration = time.UnixMilli(created.Expiration).UTC().Format(time.RFC3339)
	}
	if out.structured() {
		return out.writeData(o)
	}
	return out.writeFields([][2]string{
		{"Channel", o.ID},
		{"Resource", o.ResourceID},
		{"Address", o.Address},
		{"Expires", formatRFC3339(o.Expiration)},
	})
}

func runChannelsStop(ctx context.Context, conn *gshell.Connection, channelID, resourceID string, out *outputWriter) error {
	if channelID == "" || resourceID == "" {
		return fmt.Errorf("channel ID and resource ID are required")
	}
	svc, err := reportsService(conn)
	if err != nil {
		return err
	}
	if err := rpc(ctx, conn, "reports.Channels.Stop", func() error {
		return svc.Channels.Stop(&reports.Channel{Id: channelID, ResourceId: resourceID}).Context(ctx).Do()
	}); err != nil {
		return fmt.Errorf("failed to stop channel: %w", err)
	}
	if out.structured() {
		return out.writeData(map[string]string{"stopped": channelID})
	}
	out.writeMessage(fmt.Sprintf("Stopped channel %s", channelID))
	return nil
}

// usageOutput is JSON output for one usage report entity
type usageOutput struct {
	Date       string            `json:"date"`
	Entity     string            `json:"entity"`
	Parameters map[string]string `json:"parameters"`
}

func toUsageOutput(r *reports.UsageReport) usageOutput {
	o := usageOutput{Date: r.Date, Parameters: make(map[string]string, len(r.Parameters))}
	if r.Entity != nil {
		o.Entity = r.Entity.UserEmail
		if o.Entity == "" {
			o.Entity = r.Entity.CustomerId
		}
	}
	for _, p := range r.Parameters {
		o.Parameters[p.Name] = usageParamValue(p)
	}
	return o
}

func usageParamValue(p *reports.UsageReportParameters) string {
	switch {
	case p.StringValue != "":
		return p.StringValue
	case p.DatetimeValue != "":
		return p.DatetimeValue
	case p.IntValue != 0:
		return strconv.FormatInt(p.IntValue, 10)
	default:
		return strconv.FormatBool(p.BoolValue)
	}
}

func writeUsage(reps []*reports.UsageReport, warnings []*reports.UsageReportsWarnings, out *outputWriter) error {
	for _, w := range warnings {
		out.writeVerbose("Warning %s: %s", w.Code, w.Message)
	}
	output := make([]usageOutput, len(reps))
	for i, r := range reps {
		output[i] = toUsageOutput(r)
	}
	if out.structured() {
		return out.writeData(output)
	}
	if len(output) == 0 {
		out.writeMessage("No usage data found")
		return nil
	}

	headers := []string{"ENTITY", "PARAMETER", "VALUE"}
	var rows [][]string
	for _, u := range output {
		names := make([]string, 0, len(u.Parameters))
		for n := range u.Parameters {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			rows = append(rows, []string{u.Entity, n, u.Parameters[n]})
		}
	}
	return out.writeTable(headers, rows)
}

func runUsageCustomer(ctx context.Context, conn *gshell.Connection, date, parameters string, out *outputWriter) error {
	date, err := reportDate(date)
	if err != nil {
		return err
	}
	svc, err := reportsService(conn)
	if err != nil {
		return err
	}

	var reps []*reports.UsageReport
	var warnings []*reports.UsageReportsWarnings
	pageToken := ""
	for {
		call := svc.CustomerUsageReports.Get(date).Context(ctx)
		if parameters != "" {
			call = call.Parameters(parameters)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var resp *reports.UsageReports
		if err := rpc(ctx, conn, "reports.CustomerUsageReports.Get", func() (err error) {
			resp, err = call.Do()
			return
		}); err != nil {
			return fmt.Errorf("failed to get customer usage: %w", err)
		}
		reps = append(reps, resp.UsageReports...)
		warnings = append(warnings, resp.Warnings...)
		if pageToken = resp.NextPageToken; pageToken == "" {
			break
		}
	}
	return writeUsage(reps, warnings, out)
}

func runUsageUser(ctx context.Context, conn *gshell.Connection, date, user, parameters, filter string, limit int, out *outputWriter) error {
	date, err := reportDate(date)
	if err != nil {
		return err
	}
	if user == "" {
		user = "all"
	}
	svc, err := reportsService(conn)
	if err != nil {
		return err
	}

	var reps []*reports.UsageReport
	var warnings []*reports.UsageReportsWarnings
	pageToken := ""
	for {
		call := svc.UserUsageReport.Get(user, date).Context(ctx)
		if parameters != "" {
			call = call.Parameters(parameters)
		}
		if filter != "" {
			call = call.Filters(filter)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var resp *reports.UsageReports
		if err := rpc(ctx, conn, "reports.UserUsageReport.Get", func() (err error) {
			resp, err = call.Do()
			return
		}); err != nil {
			return fmt.Errorf("failed to get user usage: %w", err)
		}
		reps = append(reps, resp.UsageReports...)
		warnings = append(warnings, resp.Warnings...)
		pageToken = resp.NextPageToken
		if pageToken == "" || (limit > 0 && len(reps) >= limit) {
			break
		}
	}
	if limit > 0 && len(reps) > limit {
		reps = reps[:limit]
	}
	return writeUsage(reps, warnings, out)
}
