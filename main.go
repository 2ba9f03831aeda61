package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	log "github.com/sirupsen/logrus"

	"github.com/wesnick/gshell/pkg/gshell"
	"github.com/wesnick/gshell/pkg/gshell/oauth2store"
)

var version = "dev"

type CLI struct {
	Config  string `help:"Config directory path" default:"~/.config/gshell" type:"path"`
	User    string `help:"Acting user (default: the stored default user)"`
	JSON    bool   `help:"JSON output format" xor:"format"`
	YAML    bool   `help:"YAML output format" xor:"format"`
	Verbose bool   `help:"Verbose logging"`
	NoColor bool   `help:"Disable colored output"`
	LogRPC  bool   `help:"Log every API call" name:"log-rpc"`

	Configure struct {
		Credentials string `required:"" help:"Client secrets JSON (installed app or service account)" type:"existingfile"`
		Domain      string `help:"Only use these credentials for this domain"`
	} `cmd:"" help:"Import OAuth client credentials"`
	Version struct{} `cmd:"" help:"Show version"`

	Auth struct {
		Login struct {
			API  []string `name:"api" help:"APIs to authorize (gmail, drive, directory, reports)" enum:"gmail,drive,directory,reports"`
			Port int      `help:"Local redirect port" default:"8080"`
		} `cmd:"" help:"Authorize the acting user"`

		List struct{} `cmd:"" help:"List stored credentials"`

		Remove struct {
			Domain string `help:"Remove a whole domain"`
			API    string `name:"api" help:"Only remove the token for this API (with --user)"`
		} `cmd:"" help:"Remove stored tokens"`

		Default struct {
			Domain string `help:"Set the default domain"`
		} `cmd:"" help:"Show or set the default domain and user"`

		TokenInfo struct {
			API string `name:"api" help:"API whose token to inspect" default:"gmail"`
		} `cmd:"" aliases:"token-info" help:"Show OAuth token information and scopes"`
	} `cmd:"" help:"Authentication operations"`

	Gmail struct {
		Messages struct {
			List struct {
				Label            string `help:"Label name or ID" default:"INBOX"`
				Query            string `help:"Gmail search query" short:"q"`
				Limit            int    `help:"Max messages" default:"50"`
				IncludeSpamTrash bool   `help:"Include spam and trash" name:"include-spam-trash"`
			} `cmd:"" help:"List messages"`

			Get struct {
				MessageID string `arg:"" name:"id" help:"Message ID"`
				Format    string `help:"Response format" enum:"full,metadata,minimal,raw" default:"full"`
				Markdown  bool   `help:"Render as markdown with YAML frontmatter"`
			} `cmd:"" help:"Show a message"`

			Send struct {
				To       []string `required:"" help:"Recipients"`
				Subject  string   `required:"" help:"Subject line"`
				Body     string   `help:"Message body (or read from stdin)"`
				Cc       []string `help:"CC recipients"`
				Bcc      []string `help:"BCC recipients"`
				Attach   []string `help:"File attachments" type:"existingfile"`
				HTML     bool     `help:"Send as HTML"`
				ThreadID string   `help:"Reply to thread" name:"thread-id"`
			} `cmd:"" help:"Send email"`

			Trash struct {
				MessageID string `arg:"" optional:"" name:"id" help:"Message ID"`
				Stdin     bool   `help:"Read IDs from stdin"`
			} `cmd:"" help:"Move messages to trash"`

			Untrash struct {
				MessageID string `arg:"" optional:"" name:"id" help:"Message ID"`
				Stdin     bool   `help:"Read IDs from stdin"`
			} `cmd:"" help:"Restore messages from trash"`

			Delete struct {
				MessageID string `arg:"" optional:"" name:"id" help:"Message ID"`
				Stdin     bool   `help:"Read IDs from stdin"`
				Force     bool   `help:"Confirm permanent deletion"`
			} `cmd:"" help:"Permanently delete messages"`

			Modify struct {
				MessageID   string   `arg:"" optional:"" name:"id" help:"Message ID"`
				Stdin       bool     `help:"Read IDs from stdin"`
				AddLabel    []string `help:"Label to add" name:"add-label"`
				RemoveLabel []string `help:"Label to remove" name:"remove-label"`
			} `cmd:"" help:"Add or remove labels"`
		} `cmd:"" help:"Message operations"`

		Attachments struct {
			List struct {
				MessageID string `arg:"" name:"id" help:"Message ID"`
			} `cmd:"" help:"List attachments"`

			Download struct {
				MessageID string `arg:"" name:"id" help:"Message ID"`
				Index     []int  `help:"Attachment index (0-based, repeatable)" short:"i"`
				Filename  string `help:"Filename pattern (glob)" short:"f"`
				OutputDir string `help:"Output directory" type:"path" default:"."`
				Output    string `help:"Output filename (single attachment only)" short:"o"`
			} `cmd:"" help:"Download attachments"`
		} `cmd:"" help:"Attachment operations"`

		Labels struct {
			List struct {
				System   bool `help:"System labels only"`
				UserOnly bool `help:"User labels only" name:"user-only"`
			} `cmd:"" help:"List labels"`

			Get struct {
				Label string `arg:"" name:"label" help:"Label name or ID"`
			} `cmd:"" help:"Show a label"`

			Create struct {
				Name                  string `arg:"" name:"name" help:"Label name"`
				LabelListVisibility   string `help:"labelShow, labelShowIfUnread or labelHide" name:"label-list-visibility"`
				MessageListVisibility string `help:"show or hide" name:"message-list-visibility"`
				BackgroundColor       string `help:"Background color (hex)" name:"background-color"`
				TextColor             string `help:"Text color (hex)" name:"text-color"`
			} `cmd:"" help:"Create a label"`

			Update struct {
				Label                 string `arg:"" name:"label" help:"Label name or ID"`
				Name                  string `help:"New name"`
				LabelListVisibility   string `help:"labelShow, labelShowIfUnread or labelHide" name:"label-list-visibility"`
				MessageListVisibility string `help:"show or hide" name:"message-list-visibility"`
				BackgroundColor       string `help:"Background color (hex)" name:"background-color"`
				TextColor             string `help:"Text color (hex)" name:"text-color"`
			} `cmd:"" help:"Update a label"`

			Delete struct {
				Label string `arg:"" name:"label" help:"Label name or ID"`
			} `cmd:"" help:"Delete a label"`
		} `cmd:"" help:"Label operations"`

		Filters struct {
			List struct{} `cmd:"" help:"List filters"`

			Get struct {
				FilterID string `arg:"" name:"id" help:"Filter ID"`
			} `cmd:"" help:"Show a filter"`

			Create struct {
				From           string   `help:"Sender"`
				To             string   `help:"Recipient"`
				Subject        string   `help:"Subject contains"`
				Query          string   `help:"Matches Gmail search query"`
				NegatedQuery   string   `help:"Does not match query" name:"negated-query"`
				HasAttachment  bool     `help:"Has an attachment" name:"has-attachment"`
				ExcludeChats   bool     `help:"Exclude chats" name:"exclude-chats"`
				Size           int64    `help:"Size in bytes"`
				SizeComparison string   `help:"larger or smaller" name:"size-comparison"`
				AddLabel       []string `help:"Label to add" name:"add-label"`
				RemoveLabel    []string `help:"Label to remove" name:"remove-label"`
				Forward        string   `help:"Forward to address"`
			} `cmd:"" help:"Create a filter"`

			Delete struct {
				FilterID string `arg:"" name:"id" help:"Filter ID"`
			} `cmd:"" help:"Delete a filter"`

			Export struct {
				Output string `help:"Output file (default: stdout)" short:"o"`
			} `cmd:"" help:"Write all filters as jsonnet"`

			Import struct {
				File   string `arg:"" name:"file" help:"Jsonnet file evaluating to a list of filters" type:"existingfile"`
				DryRun bool   `help:"Show the diff without applying it" name:"dry-run"`
				Prune  bool   `help:"Also delete filters the file does not list"`
			} `cmd:"" help:"Make filters match a jsonnet file"`
		} `cmd:"" help:"Filter operations"`

		SendAs struct {
			List struct{} `cmd:"" help:"List send-as aliases"`

			Signature struct {
				Email     string `arg:"" name:"email" help:"Send-as address"`
				Signature string `help:"New signature (HTML)" xor:"source"`
				File      string `help:"Read the new signature from a file" type:"existingfile" xor:"source"`
				Yes       bool   `help:"Apply without confirmation" short:"y"`
				DryRun    bool   `help:"Only show the diff" name:"dry-run"`
			} `cmd:"" help:"Preview and update a signature"`
		} `cmd:"" name:"sendas" help:"Send-as settings"`

		Vacation struct {
			Get struct{} `cmd:"" help:"Show the vacation responder"`

			Set struct {
				Enable       bool    `help:"Turn the responder on" xor:"state"`
				Disable      bool    `help:"Turn the responder off" xor:"state"`
				Subject      *string `help:"Response subject"`
				Message      *string `help:"Response body"`
				HTML         bool    `help:"Message is HTML"`
				Start        string  `help:"Start date (YYYY-MM-DD or RFC3339)"`
				End          string  `help:"End date (YYYY-MM-DD or RFC3339)"`
				ContactsOnly *bool   `help:"Only reply to contacts" name:"contacts-only" negatable:""`
				DomainOnly   *bool   `help:"Only reply within the domain" name:"domain-only" negatable:""`
			} `cmd:"" help:"Update the vacation responder"`
		} `cmd:"" help:"Vacation responder"`
	} `cmd:"" help:"Gmail operations"`

	Drive struct {
		Files struct {
			List struct {
				Query        string `help:"Drive search query" short:"q"`
				Limit        int    `help:"Max files" default:"100"`
				OrderBy      string `help:"Sort order, e.g. 'modifiedTime desc'" name:"order-by"`
				SharedDrives bool   `help:"Include shared drives" name:"shared-drives"`
			} `cmd:"" help:"List files"`

			Get struct {
				FileID string `arg:"" name:"id" help:"File ID"`
			} `cmd:"" help:"Show file metadata"`

			Mkdir struct {
				Name   string `arg:"" name:"name" help:"Folder name"`
				Parent string `help:"Parent folder ID"`
			} `cmd:"" help:"Create a folder"`

			Upload struct {
				Path     string `arg:"" name:"path" help:"Local file" type:"existingfile"`
				Parent   string `help:"Parent folder ID"`
				Name     string `help:"Name in Drive (default: local file name)"`
				MimeType string `help:"Content type" name:"mime-type"`
			} `cmd:"" help:"Upload a file"`

			Download struct {
				FileID     string `arg:"" name:"id" help:"File ID"`
				Output     string `help:"Output path, - for stdout (default: file name)" short:"o"`
				ExportMime string `help:"Export type for Google editor files" name:"export-mime"`
			} `cmd:"" help:"Download or export a file"`

			Copy struct {
				FileID string `arg:"" name:"id" help:"File ID"`
				Name   string `help:"Name of the copy"`
				Parent string `help:"Parent folder ID"`
			} `cmd:"" help:"Copy a file"`

			Trash struct {
				FileID  string `arg:"" name:"id" help:"File ID"`
				Restore bool   `help:"Restore from trash instead"`
			} `cmd:"" help:"Move a file to trash"`

			Delete struct {
				FileID string `arg:"" name:"id" help:"File ID"`
				Force  bool   `help:"Confirm permanent deletion"`
			} `cmd:"" help:"Permanently delete a file"`
		} `cmd:"" help:"File operations"`

		Permissions struct {
			List struct {
				FileID string `arg:"" name:"file" help:"File ID"`
			} `cmd:"" help:"List permissions"`

			Create struct {
				FileID  string `arg:"" name:"file" help:"File ID"`
				Role    string `required:"" help:"owner, organizer, fileOrganizer, writer, commenter or reader"`
				Type    string `required:"" help:"user, group, domain or anyone"`
				Email   string `help:"User or group email"`
				Domain  string `help:"Domain for type domain"`
				Notify  bool   `help:"Send a notification email"`
				Message string `help:"Notification message"`
			} `cmd:"" help:"Share a file"`

			Delete struct {
				FileID       string `arg:"" name:"file" help:"File ID"`
				PermissionID string `arg:"" name:"permission" help:"Permission ID"`
			} `cmd:"" help:"Remove a permission"`
		} `cmd:"" help:"Sharing operations"`
	} `cmd:"" help:"Drive operations"`

	Directory struct {
		Users struct {
			List struct {
				Domain      string `help:"Only users in this domain"`
				Query       string `help:"Directory search query" short:"q"`
				OrgUnit     string `help:"Only users in this org unit" name:"org-unit"`
				Limit       int    `help:"Max users"`
				ShowDeleted bool   `help:"List deleted users" name:"show-deleted"`
			} `cmd:"" help:"List users"`

			Get struct {
				UserKey string `arg:"" name:"user" help:"Email or ID"`
			} `cmd:"" help:"Show a user"`

			Create struct {
				Email          string `required:"" help:"Primary email"`
				GivenName      string `required:"" help:"Given name" name:"given-name"`
				FamilyName     string `required:"" help:"Family name" name:"family-name"`
				Password       string `help:"Initial password (prompted when omitted)"`
				OrgUnit        string `help:"Org unit path" name:"org-unit"`
				ChangePassword bool   `help:"Require a password change at next login" name:"change-password"`
			} `cmd:"" help:"Create a user"`

			Update struct {
				UserKey    string `arg:"" name:"user" help:"Email or ID"`
				GivenName  string `help:"Given name" name:"given-name"`
				FamilyName string `help:"Family name" name:"family-name"`
				OrgUnit    string `help:"Org unit path" name:"org-unit"`
				Suspend    bool   `help:"Suspend the user" xor:"suspend"`
				Unsuspend  bool   `help:"Reactivate the user" xor:"suspend"`
			} `cmd:"" help:"Update a user"`

			Delete struct {
				UserKey string `arg:"" name:"user" help:"Email or ID"`
				Force   bool   `help:"Confirm deletion"`
			} `cmd:"" help:"Delete a user"`

			Undelete struct {
				UserID  string `arg:"" name:"id" help:"Unique user ID"`
				OrgUnit string `help:"Org unit to restore into" name:"org-unit" default:"/"`
			} `cmd:"" help:"Restore a deleted user"`

			MakeAdmin struct {
				UserKey string `arg:"" name:"user" help:"Email or ID"`
				Revoke  bool   `help:"Revoke super admin instead"`
			} `cmd:"" name:"make-admin" help:"Grant super admin"`
		} `cmd:"" help:"User operations"`

		Groups struct {
			List struct {
				Domain string `help:"Only groups in this domain"`
				Member string `help:"Only groups this user or group belongs to"`
				Query  string `help:"Directory search query" short:"q"`
				Limit  int    `help:"Max groups"`
			} `cmd:"" help:"List groups"`

			Get struct {
				GroupKey string `arg:"" name:"group" help:"Email or ID"`
			} `cmd:"" help:"Show a group"`

			Create struct {
				Email       string `required:"" help:"Group email"`
				Name        string `help:"Display name"`
				Description string `help:"Description"`
			} `cmd:"" help:"Create a group"`

			Update struct {
				GroupKey    string `arg:"" name:"group" help:"Email or ID"`
				Email       string `help:"New email"`
				Name        string `help:"Display name"`
				Description string `help:"Description"`
			} `cmd:"" help:"Update a group"`

			Delete struct {
				GroupKey string `arg:"" name:"group" help:"Email or ID"`
				Force    bool   `help:"Confirm deletion"`
			} `cmd:"" help:"Delete a group"`
		} `cmd:"" help:"Group operations"`

		Members struct {
			List struct {
				GroupKey string `arg:"" name:"group" help:"Group email or ID"`
				Role     string `help:"Comma-separated roles (OWNER, MANAGER, MEMBER)"`
			} `cmd:"" help:"List members"`

			Add struct {
				GroupKey string `arg:"" name:"group" help:"Group email or ID"`
				Email    string `arg:"" name:"email" help:"Member email"`
				Role     string `help:"OWNER, MANAGER or MEMBER" default:"MEMBER"`
			} `cmd:"" help:"Add a member"`

			Remove struct {
				GroupKey string `arg:"" name:"group" help:"Group email or ID"`
				Email    string `arg:"" optional:"" name:"email" help:"Member email"`
				Stdin    bool   `help:"Read member emails from stdin"`
			} `cmd:"" help:"Remove members"`

			Has struct {
				GroupKey string `arg:"" name:"group" help:"Group email or ID"`
				Email    string `arg:"" name:"email" help:"Member email"`
			} `cmd:"" help:"Check membership"`
		} `cmd:"" help:"Group membership operations"`

		OrgUnits struct {
			List struct {
				Path string `help:"Parent org unit path"`
				Type string `help:"all, children or allIncludingParent" enum:"all,children,allIncludingParent" default:"all"`
			} `cmd:"" help:"List org units"`

			Get struct {
				Path string `arg:"" name:"path" help:"Org unit path"`
			} `cmd:"" help:"Show an org unit"`

			Create struct {
				Name        string `arg:"" name:"name" help:"Org unit name"`
				Parent      string `help:"Parent org unit path" default:"/"`
				Description string `help:"Description"`
			} `cmd:"" help:"Create an org unit"`

			Delete struct {
				Path string `arg:"" name:"path" help:"Org unit path"`
			} `cmd:"" help:"Delete an org unit"`
		} `cmd:"" name:"orgunits" help:"Org unit operations"`
	} `cmd:"" help:"Admin directory operations"`

	Reports struct {
		Activities struct {
			List struct {
				App     string `arg:"" name:"app" help:"Application name, e.g. login, admin, drive"`
				Actor   string `help:"User whose activity to list" name:"actor" default:"all"`
				Event   string `help:"Event name"`
				Start   string `help:"Start time (YYYY-MM-DD or RFC3339)"`
				End     string `help:"End time (YYYY-MM-DD or RFC3339)"`
				Filter  string `help:"Event parameter filter"`
				OrgUnit string `help:"Org unit ID" name:"org-unit-id"`
				Limit   int    `help:"Max activities" default:"100"`
			} `cmd:"" help:"List audit activities"`

			Watch struct {
				App     string        `arg:"" name:"app" help:"Application name"`
				Actor   string        `help:"User whose activity to watch" name:"actor" default:"all"`
				Address string        `required:"" help:"HTTPS webhook URL"`
				Token   string        `help:"Token echoed back with every notification"`
				TTL     time.Duration `help:"Channel lifetime" name:"ttl" default:"6h"`
			} `cmd:"" help:"Push activity notifications to a webhook"`
		} `cmd:"" help:"Audit activity reports"`

		Channels struct {
			Stop struct {
				ChannelID  string `arg:"" name:"id" help:"Channel ID"`
				ResourceID string `arg:"" name:"resource-id" help:"Resource ID"`
			} `cmd:"" help:"Stop a notification channel"`
		} `cmd:"" help:"Notification channels"`

		Usage struct {
			Customer struct {
				Date       string `arg:"" name:"date" help:"Report date (YYYY-MM-DD)"`
				Parameters string `help:"Comma-separated app:parameter names"`
			} `cmd:"" help:"Account-wide usage"`

			User struct {
				Date       string `arg:"" name:"date" help:"Report date (YYYY-MM-DD)"`
				Actor      string `help:"User to report on" name:"actor" default:"all"`
				Parameters string `help:"Comma-separated app:parameter names"`
				Filter     string `help:"Parameter filter, e.g. gmail:num_emails_received>10"`
				Limit      int    `help:"Max users"`
			} `cmd:"" help:"Per-user usage"`
		} `cmd:"" help:"Usage reports"`
	} `cmd:"" help:"Admin reports"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("gshell"),
		kong.Description("Google Workspace from the command line"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	log.SetOutput(os.Stderr)
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	gshell.SetLogRPC(cli.LogRPC)
	gshell.Version = version

	out := newOutputWriter(cli.JSON, cli.YAML, cli.NoColor, cli.Verbose)

	cmdCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// withStore and withConn exit 3 when the store or connection can't be
	// opened, and 2 when the command itself fails.
	withStore := func(fn func(*oauth2store.Consumer) error) {
		store, err := openStore(cli.Config)
		if err != nil {
			out.writeError(err)
			os.Exit(3)
		}
		if err := fn(store); err != nil {
			out.writeError(err)
			os.Exit(2)
		}
	}
	withConn := func(fn func(*gshell.Connection) error) {
		conn, err := getConnection(cmdCtx, cli.Config, cli.User, cli.Verbose)
		if err != nil {
			out.writeError(err)
			os.Exit(3)
		}
		if err := fn(conn); err != nil {
			out.writeError(err)
			os.Exit(2)
		}
	}

	switch ctx.Command() {
	case "configure":
		withStore(func(store *oauth2store.Consumer) error {
			paths, err := gshell.GetConfigPaths(cli.Config)
			if err != nil {
				return err
			}
			return runConfigure(store, paths.Settings, cli.Configure.Credentials, cli.Configure.Domain, out)
		})
	case "version":
		fmt.Printf("gshell %s\n", version)

	case "auth login":
		if cli.User == "" {
			out.writeError(fmt.Errorf("--user is required for login"))
			os.Exit(1)
		}
		withStore(func(store *oauth2store.Consumer) error {
			return runAuthLogin(cmdCtx, store, cli.User, cli.Auth.Login.API, cli.Auth.Login.Port, promptAuthCode, out)
		})
	case "auth list":
		withStore(func(store *oauth2store.Consumer) error {
			return runAuthList(store, out)
		})
	case "auth remove":
		withStore(func(store *oauth2store.Consumer) error {
			return runAuthRemove(store, cli.User, cli.Auth.Remove.Domain, cli.Auth.Remove.API, out)
		})
	case "auth default":
		withStore(func(store *oauth2store.Consumer) error {
			return runAuthDefault(store, cli.Auth.Default.Domain, cli.User, out)
		})
	case "auth token-info":
		withConn(func(conn *gshell.Connection) error {
			return runAuthTokenInfo(cmdCtx, conn, cli.Auth.TokenInfo.API, out)
		})

	case "gmail messages list":
		c := cli.Gmail.Messages.List
		withConn(func(conn *gshell.Connection) error {
			return runMessagesList(cmdCtx, conn, c.Label, c.Query, c.Limit, c.IncludeSpamTrash, out)
		})
	case "gmail messages get <id>":
		c := cli.Gmail.Messages.Get
		withConn(func(conn *gshell.Connection) error {
			return runMessagesGet(cmdCtx, conn, c.MessageID, c.Format, c.Markdown, out)
		})
	case "gmail messages send":
		c := cli.Gmail.Messages.Send
		withConn(func(conn *gshell.Connection) error {
			return runMessagesSend(cmdCtx, conn, sendOptions{
				To:          c.To,
				Cc:          c.Cc,
				Bcc:         c.Bcc,
				Subject:     c.Subject,
				Body:        c.Body,
				HTML:        c.HTML,
				ThreadID:    c.ThreadID,
				Attachments: c.Attach,
			}, out)
		})
	case "gmail messages trash", "gmail messages trash <id>":
		c := cli.Gmail.Messages.Trash
		withConn(func(conn *gshell.Connection) error {
			return runMessagesTrash(cmdCtx, conn, c.MessageID, c.Stdin, out)
		})
	case "gmail messages untrash", "gmail messages untrash <id>":
		c := cli.Gmail.Messages.Untrash
		withConn(func(conn *gshell.Connection) error {
			return runMessagesUntrash(cmdCtx, conn, c.MessageID, c.Stdin, out)
		})
	case "gmail messages delete", "gmail messages delete <id>":
		c := cli.Gmail.Messages.Delete
		withConn(func(conn *gshell.Connection) error {
			return runMessagesDelete(cmdCtx, conn, c.MessageID, c.Stdin, c.Force, out)
		})
	case "gmail messages modify", "gmail messages modify <id>":
		c := cli.Gmail.Messages.Modify
		withConn(func(conn *gshell.Connection) error {
			return runMessagesModify(cmdCtx, conn, c.MessageID, c.Stdin, c.AddLabel, c.RemoveLabel, out)
		})

	case "gmail attachments list <id>":
		withConn(func(conn *gshell.Connection) error {
			return runAttachmentsList(cmdCtx, conn, cli.Gmail.Attachments.List.MessageID, out)
		})
	case "gmail attachments download <id>":
		c := cli.Gmail.Attachments.Download
		withConn(func(conn *gshell.Connection) error {
			return runAttachmentsDownload(cmdCtx, conn, c.MessageID, attachmentDownloadOptions{
				Index:     c.Index,
				Pattern:   c.Filename,
				OutputDir: c.OutputDir,
				Output:    c.Output,
			}, out)
		})

	case "gmail labels list":
		withConn(func(conn *gshell.Connection) error {
			return runLabelsList(cmdCtx, conn, cli.Gmail.Labels.List.System, cli.Gmail.Labels.List.UserOnly, out)
		})
	case "gmail labels get <label>":
		withConn(func(conn *gshell.Connection) error {
			return runLabelsGet(cmdCtx, conn, cli.Gmail.Labels.Get.Label, out)
		})
	case "gmail labels create <name>":
		c := cli.Gmail.Labels.Create
		withConn(func(conn *gshell.Connection) error {
			return runLabelsCreate(cmdCtx, conn, labelOptions{
				Name:                  c.Name,
				LabelListVisibility:   c.LabelListVisibility,
				MessageListVisibility: c.MessageListVisibility,
				BackgroundColor:       c.BackgroundColor,
				TextColor:             c.TextColor,
			}, out)
		})
	case "gmail labels update <label>":
		c := cli.Gmail.Labels.Update
		withConn(func(conn *gshell.Connection) error {
			return runLabelsUpdate(cmdCtx, conn, c.Label, labelOptions{
				Name:                  c.Name,
				LabelListVisibility:   c.LabelListVisibility,
				MessageListVisibility: c.MessageListVisibility,
				BackgroundColor:       c.BackgroundColor,
				TextColor:             c.TextColor,
			}, out)
		})
	case "gmail labels delete <label>":
		withConn(func(conn *gshell.Connection) error {
			return runLabelsDelete(cmdCtx, conn, cli.Gmail.Labels.Delete.Label, out)
		})

	case "gmail filters list":
		withConn(func(conn *gshell.Connection) error {
			return runFiltersList(cmdCtx, conn, out)
		})
	case "gmail filters get <id>":
		withConn(func(conn *gshell.Connection) error {
			return runFiltersGet(cmdCtx, conn, cli.Gmail.Filters.Get.FilterID, out)
		})
	case "gmail filters create":
		c := cli.Gmail.Filters.Create
		withConn(func(conn *gshell.Connection) error {
			return runFiltersCreate(cmdCtx, conn, filterOptions{
				From:           c.From,
				To:             c.To,
				Subject:        c.Subject,
				Query:          c.Query,
				NegatedQuery:   c.NegatedQuery,
				HasAttachment:  c.HasAttachment,
				ExcludeChats:   c.ExcludeChats,
				Size:           c.Size,
				SizeComparison: c.SizeComparison,
				AddLabels:      c.AddLabel,
				RemoveLabels:   c.RemoveLabel,
				Forward:        c.Forward,
			}, out)
		})
	case "gmail filters delete <id>":
		withConn(func(conn *gshell.Connection) error {
			return runFiltersDelete(cmdCtx, conn, cli.Gmail.Filters.Delete.FilterID, out)
		})
	case "gmail filters export":
		withConn(func(conn *gshell.Connection) error {
			return runFiltersExport(cmdCtx, conn, cli.Gmail.Filters.Export.Output, out)
		})
	case "gmail filters import <file>":
		withConn(func(conn *gshell.Connection) error {
			return runFiltersImport(cmdCtx, conn, cli.Gmail.Filters.Import.File, cli.Gmail.Filters.Import.DryRun, cli.Gmail.Filters.Import.Prune, out)
		})

	case "gmail sendas list":
		withConn(func(conn *gshell.Connection) error {
			return runSendAsList(cmdCtx, conn, out)
		})
	case "gmail sendas signature <email>":
		c := cli.Gmail.SendAs.Signature
		withConn(func(conn *gshell.Connection) error {
			return runSendAsSignature(cmdCtx, conn, c.Email, c.Signature, c.File, c.Yes, c.DryRun, out)
		})

	case "gmail vacation get":
		withConn(func(conn *gshell.Connection) error {
			return runVacationGet(cmdCtx, conn, out)
		})
	case "gmail vacation set":
		c := cli.Gmail.Vacation.Set
		opts := vacationOptions{
			Subject:      c.Subject,
			Message:      c.Message,
			HTML:         c.HTML,
			Start:        c.Start,
			End:          c.End,
			ContactsOnly: c.ContactsOnly,
			DomainOnly:   c.DomainOnly,
		}
		if c.Enable || c.Disable {
			enable := c.Enable
			opts.Enable = &enable
		}
		withConn(func(conn *gshell.Connection) error {
			return runVacationSet(cmdCtx, conn, opts, out)
		})

	case "drive files list":
		c := cli.Drive.Files.List
		withConn(func(conn *gshell.Connection) error {
			return runFilesList(cmdCtx, conn, c.Query, c.Limit, c.OrderBy, c.SharedDrives, out)
		})
	case "drive files get <id>":
		withConn(func(conn *gshell.Connection) error {
			return runFilesGet(cmdCtx, conn, cli.Drive.Files.Get.FileID, out)
		})
	case "drive files mkdir <name>":
		withConn(func(conn *gshell.Connection) error {
			return runFilesMkdir(cmdCtx, conn, cli.Drive.Files.Mkdir.Name, cli.Drive.Files.Mkdir.Parent, out)
		})
	case "drive files upload <path>":
		c := cli.Drive.Files.Upload
		withConn(func(conn *gshell.Connection) error {
			return runFilesUpload(cmdCtx, conn, c.Path, c.Parent, c.Name, c.MimeType, out)
		})
	case "drive files download <id>":
		c := cli.Drive.Files.Download
		withConn(func(conn *gshell.Connection) error {
			return runFilesDownload(cmdCtx, conn, c.FileID, c.Output, c.ExportMime, out)
		})
	case "drive files copy <id>":
		c := cli.Drive.Files.Copy
		withConn(func(conn *gshell.Connection) error {
			return runFilesCopy(cmdCtx, conn, c.FileID, c.Name, c.Parent, out)
		})
	case "drive files trash <id>":
		withConn(func(conn *gshell.Connection) error {
			return runFilesTrash(cmdCtx, conn, cli.Drive.Files.Trash.FileID, cli.Drive.Files.Trash.Restore, out)
		})
	case "drive files delete <id>":
		withConn(func(conn *gshell.Connection) error {
			return runFilesDelete(cmdCtx, conn, cli.Drive.Files.Delete.FileID, cli.Drive.Files.Delete.Force, out)
		})

	case "drive permissions list <file>":
		withConn(func(conn *gshell.Connection) error {
			return runPermissionsList(cmdCtx, conn, cli.Drive.Permissions.List.FileID, out)
		})
	case "drive permissions create <file>":
		c := cli.Drive.Permissions.Create
		withConn(func(conn *gshell.Connection) error {
			return runPermissionsCreate(cmdCtx, conn, c.FileID, permissionOptions{
				Role:    c.Role,
				Type:    c.Type,
				Email:   c.Email,
				Domain:  c.Domain,
				Notify:  c.Notify,
				Message: c.Message,
			}, out)
		})
	case "drive permissions delete <file> <permission>":
		c := cli.Drive.Permissions.Delete
		withConn(func(conn *gshell.Connection) error {
			return runPermissionsDelete(cmdCtx, conn, c.FileID, c.PermissionID, out)
		})

	case "directory users list":
		c := cli.Directory.Users.List
		withConn(func(conn *gshell.Connection) error {
			return runUsersList(cmdCtx, conn, userListOptions{
				Domain:      c.Domain,
				Query:       c.Query,
				OrgUnit:     c.OrgUnit,
				Limit:       c.Limit,
				ShowDeleted: c.ShowDeleted,
			}, out)
		})
	case "directory users get <user>":
		withConn(func(conn *gshell.Connection) error {
			return runUsersGet(cmdCtx, conn, cli.Directory.Users.Get.UserKey, out)
		})
	case "directory users create":
		c := cli.Directory.Users.Create
		withConn(func(conn *gshell.Connection) error {
			return runUsersCreate(cmdCtx, conn, userCreateOptions{
				Email:          c.Email,
				GivenName:      c.GivenName,
				FamilyName:     c.FamilyName,
				Password:       c.Password,
				OrgUnit:        c.OrgUnit,
				ChangePassword: c.ChangePassword,
			}, out)
		})
	case "directory users update <user>":
		c := cli.Directory.Users.Update
		withConn(func(conn *gshell.Connection) error {
			return runUsersUpdate(cmdCtx, conn, c.UserKey, userUpdateOptions{
				GivenName:  c.GivenName,
				FamilyName: c.FamilyName,
				OrgUnit:    c.OrgUnit,
				Suspend:    c.Suspend,
				Unsuspend:  c.Unsuspend,
			}, out)
		})
	case "directory users delete <user>":
		withConn(func(conn *gshell.Connection) error {
			return runUsersDelete(cmdCtx, conn, cli.Directory.Users.Delete.UserKey, cli.Directory.Users.Delete.Force, out)
		})
	case "directory users undelete <id>":
		withConn(func(conn *gshell.Connection) error {
			return runUsersUndelete(cmdCtx, conn, cli.Directory.Users.Undelete.UserID, cli.Directory.Users.Undelete.OrgUnit, out)
		})
	case "directory users make-admin <user>":
		withConn(func(conn *gshell.Connection) error {
			return runUsersMakeAdmin(cmdCtx, conn, cli.Directory.Users.MakeAdmin.UserKey, cli.Directory.Users.MakeAdmin.Revoke, out)
		})

	case "directory groups list":
		c := cli.Directory.Groups.List
		withConn(func(conn *gshell.Connection) error {
			return runGroupsList(cmdCtx, conn, groupListOptions{Domain: c.Domain, User: c.Member, Query: c.Query, Limit: c.Limit}, out)
		})
	case "directory groups get <group>":
		withConn(func(conn *gshell.Connection) error {
			return runGroupsGet(cmdCtx, conn, cli.Directory.Groups.Get.GroupKey, out)
		})
	case "directory groups create":
		c := cli.Directory.Groups.Create
		withConn(func(conn *gshell.Connection) error {
			return runGroupsCreate(cmdCtx, conn, groupOptions{Email: c.Email, Name: c.Name, Description: c.Description}, out)
		})
	case "directory groups update <group>":
		c := cli.Directory.Groups.Update
		withConn(func(conn *gshell.Connection) error {
			return runGroupsUpdate(cmdCtx, conn, c.GroupKey, groupOptions{Email: c.Email, Name: c.Name, Description: c.Description}, out)
		})
	case "directory groups delete <group>":
		withConn(func(conn *gshell.Connection) error {
			return runGroupsDelete(cmdCtx, conn, cli.Directory.Groups.Delete.GroupKey, cli.Directory.Groups.Delete.Force, out)
		})

	case "directory members list <group>":
		withConn(func(conn *gshell.Connection) error {
			return runMembersList(cmdCtx, conn, cli.Directory.Members.List.GroupKey, cli.Directory.Members.List.Role, out)
		})
	case "directory members add <group> <email>":
		c := cli.Directory.Members.Add
		withConn(func(conn *gshell.Connection) error {
			return runMembersAdd(cmdCtx, conn, c.GroupKey, c.Email, c.Role, out)
		})
	case "directory members remove <group>", "directory members remove <group> <email>":
		c := cli.Directory.Members.Remove
		withConn(func(conn *gshell.Connection) error {
			return runMembersRemove(cmdCtx, conn, c.GroupKey, c.Email, c.Stdin, out)
		})
	case "directory members has <group> <email>":
		withConn(func(conn *gshell.Connection) error {
			return runMembersHas(cmdCtx, conn, cli.Directory.Members.Has.GroupKey, cli.Directory.Members.Has.Email, out)
		})

	case "directory orgunits list":
		withConn(func(conn *gshell.Connection) error {
			return runOrgUnitsList(cmdCtx, conn, cli.Directory.OrgUnits.List.Path, cli.Directory.OrgUnits.List.Type, out)
		})
	case "directory orgunits get <path>":
		withConn(func(conn *gshell.Connection) error {
			return runOrgUnitsGet(cmdCtx, conn, cli.Directory.OrgUnits.Get.Path, out)
		})
	case "directory orgunits create <name>":
		c := cli.Directory.OrgUnits.Create
		withConn(func(conn *gshell.Connection) error {
			return runOrgUnitsCreate(cmdCtx, conn, c.Name, c.Parent, c.Description, out)
		})
	case "directory orgunits delete <path>":
		withConn(func(conn *gshell.Connection) error {
			return runOrgUnitsDelete(cmdCtx, conn, cli.Directory.OrgUnits.Delete.Path, out)
		})

	case "reports activities list <app>":
		c := cli.Reports.Activities.List
		withConn(func(conn *gshell.Connection) error {
			return runActivitiesList(cmdCtx, conn, c.App, activityListOptions{
				User:    c.Actor,
				Event:   c.Event,
				Start:   c.Start,
				End:     c.End,
				Filter:  c.Filter,
				OrgUnit: c.OrgUnit,
				Limit:   c.Limit,
			}, out)
		})
	case "reports activities watch <app>":
		c := cli.Reports.Activities.Watch
		withConn(func(conn *gshell.Connection) error {
			return runActivitiesWatch(cmdCtx, conn, c.App, c.Actor, c.Address, c.Token, c.TTL, out)
		})
	case "reports channels stop <id> <resource-id>":
		withConn(func(conn *gshell.Connection) error {
			return runChannelsStop(cmdCtx, conn, cli.Reports.Channels.Stop.ChannelID, cli.Reports.Channels.Stop.ResourceID, out)
		})
	case "reports usage customer <date>":
		withConn(func(conn *gshell.Connection) error {
			return runUsageCustomer(cmdCtx, conn, cli.Reports.Usage.Customer.Date, cli.Reports.Usage.Customer.Parameters, out)
		})
	case "reports usage user <date>":
		c := cli.Reports.Usage.User
		withConn(func(conn *gshell.Connection) error {
			return runUsageUser(cmdCtx, conn, c.Date, c.Actor, c.Parameters, c.Filter, c.Limit, out)
		})

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", strings.TrimSpace(ctx.Command()))
		os.Exit(1)
	}
}
