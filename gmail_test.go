package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/wesnick/gshell/pkg/gshell"
)

const labelsJSON = `{"labels": [
	{"id": "INBOX", "name": "INBOX", "type": "system"},
	{"id": "UNREAD", "name": "UNREAD", "type": "system"},
	{"id": "Label_1", "name": "Receipts", "type": "user", "color": {"backgroundColor": "#000000", "textColor": "#ffffff"}}
]}`

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestRunMessagesList(t *testing.T) {
	var listQuery string
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/gmail/v1/users/me/labels":
			return jsonResponse(http.StatusOK, labelsJSON), nil
		case "/gmail/v1/users/me/messages":
			listQuery = req.URL.RawQuery
			return jsonResponse(http.StatusOK, `{"messages": [{"id": "m1", "threadId": "t1"}]}`), nil
		case "/gmail/v1/users/me/messages/m1":
			assert.Equal(t, "metadata", req.URL.Query().Get("format"))
			return jsonResponse(http.StatusOK, `{
				"id": "m1", "threadId": "t1", "labelIds": ["INBOX", "Label_1"],
				"snippet": "Your order", "internalDate": "1700000000000",
				"payload": {"headers": [
					{"name": "From", "value": "shop@example.com"},
					{"name": "Subject", "value": "Order shipped"}
				]}
			}`), nil
		}
		t.Fatalf("unexpected request: %s %s", req.Method, req.URL)
		return nil, nil
	})

	var buf bytes.Buffer
	require.NoError(t, runMessagesList(context.Background(), conn, "receipts", "is:unread", 5, false, jsonOut(&buf)))

	assert.Contains(t, listQuery, "labelIds=Label_1")
	assert.Contains(t, listQuery, "q=is%3Aunread")
	assert.Contains(t, listQuery, "maxResults=5")

	var result []messageListOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	require.Len(t, result, 1)
	assert.Equal(t, "m1", result[0].ID)
	assert.Equal(t, "shop@example.com", result[0].From)
	assert.Equal(t, "Order shipped", result[0].Subject)

	buf.Reset()
	require.NoError(t, runMessagesList(context.Background(), conn, "", "", 0, false, textOut(&buf)))
	assert.Contains(t, buf.String(), "INBOX, Receipts")
}

func TestRunMessagesListUnknownLabel(t *testing.T) {
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, labelsJSON), nil
	})
	var buf bytes.Buffer
	err := runMessagesList(context.Background(), conn, "nope", "", 0, false, jsonOut(&buf))
	assert.EqualError(t, err, "label not found: nope")
}

func TestRunMessagesListPaginates(t *testing.T) {
	calls := 0
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/gmail/v1/users/me/messages" {
			calls++
			if req.URL.Query().Get("pageToken") == "" {
				return jsonResponse(http.StatusOK, `{"messages": [{"id": "a"}], "nextPageToken": "p2"}`), nil
			}
			return jsonResponse(http.StatusOK, `{"messages": [{"id": "b"}]}`), nil
		}
		id := strings.TrimPrefix(req.URL.Path, "/gmail/v1/users/me/messages/")
		return jsonResponse(http.StatusOK, `{"id": "`+id+`"}`), nil
	})

	var buf bytes.Buffer
	require.NoError(t, runMessagesList(context.Background(), conn, "", "", 0, false, jsonOut(&buf)))
	assert.Equal(t, 2, calls)

	var result []messageListOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	require.Len(t, result, 2)
	assert.Equal(t, "b", result[1].ID)
}

func fullMessageJSON() string {
	return `{
		"id": "m1", "threadId": "t1", "labelIds": ["INBOX"], "snippet": "hi",
		"payload": {
			"mimeType": "multipart/mixed",
			"headers": [
				{"name": "From", "value": "a@example.com"},
				{"name": "To", "value": "b@example.com"},
				{"name": "Subject", "value": "Hello"}
			],
			"parts": [
				{"mimeType": "multipart/alternative", "parts": [
					{"mimeType": "text/plain", "body": {"data": "` + b64("Plain body\n") + `"}},
					{"mimeType": "text/html", "body": {"data": "` + b64("<p>Hello <b>world</b></p>") + `"}}
				]},
				{"mimeType": "application/pdf", "filename": "invoice.pdf", "body": {"attachmentId": "att1", "size": 2048}}
			]
		}
	}`
}

func TestRunMessagesGet(t *testing.T) {
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/gmail/v1/users/me/messages/m1", req.URL.Path)
		return jsonResponse(http.StatusOK, fullMessageJSON()), nil
	})

	var buf bytes.Buffer
	require.NoError(t, runMessagesGet(context.Background(), conn, "m1", "", true, jsonOut(&buf)))

	var result messageGetOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, "Hello", result.Headers["Subject"])
	assert.Equal(t, "Plain body\n", result.Body)
	assert.Equal(t, "<p>Hello <b>world</b></p>", result.BodyHTML)
	assert.Equal(t, "Hello **world**", result.BodyMarkdown)
	require.Len(t, result.Attachments, 1)
	assert.Equal(t, "invoice.pdf", result.Attachments[0].Filename)
	assert.Equal(t, "att1", result.Attachments[0].AttachmentID)

	buf.Reset()
	require.NoError(t, runMessagesGet(context.Background(), conn, "m1", "full", false, textOut(&buf)))
	out := buf.String()
	assert.Contains(t, out, "Subject: Hello")
	assert.Contains(t, out, "Plain body")
	assert.Contains(t, out, "[0] invoice.pdf (application/pdf, 2.0 KB)")

	buf.Reset()
	require.NoError(t, runMessagesGet(context.Background(), conn, "m1", "full", true, textOut(&buf)))
	assert.True(t, strings.HasPrefix(buf.String(), "---\nmessage_id: m1\n"))
	assert.Contains(t, buf.String(), "Hello **world**")
	assert.Contains(t, buf.String(), "filename: invoice.pdf")
}

func TestRunMessagesGetRaw(t *testing.T) {
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "raw", req.URL.Query().Get("format"))
		return jsonResponse(http.StatusOK, `{"id": "m1", "raw": "`+b64("Subject: x\r\n\r\nbody")+`"}`), nil
	})
	var buf bytes.Buffer
	require.NoError(t, runMessagesGet(context.Background(), conn, "m1", "raw", false, textOut(&buf)))
	assert.Equal(t, "Subject: x\r\n\r\nbody", buf.String())
}

func TestRunMessagesGetValidation(t *testing.T) {
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request: %s", req.URL)
		return nil, nil
	})
	var buf bytes.Buffer
	assert.Error(t, runMessagesGet(context.Background(), conn, "", "", false, jsonOut(&buf)))
	assert.Error(t, runMessagesGet(context.Background(), conn, "m1", "bogus", false, jsonOut(&buf)))
	assert.Error(t, runMessagesGet(context.Background(), conn, "m1", "raw", true, jsonOut(&buf)))
}

func TestHTMLToText(t *testing.T) {
	got := htmlToText(`<html><head><style>p{}</style></head><body><p>Hello   <b>there</b></p><script>x()</script><div>Line two</div></body></html>`)
	assert.Equal(t, "Hello there\n\nLine two", got)
}

func TestFormatAddresses(t *testing.T) {
	got, err := formatAddresses([]string{"x@example.com", "Ann Smith <ann@example.com>, b@example.com"})
	require.NoError(t, err)
	assert.Equal(t, `x@example.com, "Ann Smith" <ann@example.com>, b@example.com`, got)

	got, err = formatAddresses([]string{"Zoë Müller <zoe@example.com>"})
	require.NoError(t, err)
	assert.Equal(t, "=?utf-8?q?Zo=C3=AB_M=C3=BCller?= <zoe@example.com>", got)

	_, err = formatAddresses([]string{"not an address"})
	assert.Error(t, err)
}

func TestBuildMIMEEncodesDisplayNames(t *testing.T) {
	raw, err := buildMIME(sendOptions{To: []string{"Zoë <zoe@example.com>"}, Cc: []string{"c@example.com"}, Subject: "Grüße", Body: "hi"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "To: =?utf-8?q?Zo=C3=AB?= <zoe@example.com>\r\n")
	assert.Contains(t, string(raw), "Cc: c@example.com\r\n")
	assert.NotContains(t, string(raw), "Bcc:")
	for _, b := range raw {
		assert.Less(t, b, byte(0x80), "raw headers must be 7-bit")
	}
}

func TestRunMessagesSend(t *testing.T) {
	dir := t.TempDir()
	att := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(att, []byte("attached"), 0600))

	var sent gmail.Message
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "POST", req.Method)
		assert.Equal(t, "/gmail/v1/users/me/messages/send", req.URL.Path)
		require.NoError(t, json.Unmarshal([]byte(readBody(t, req)), &sent))
		return jsonResponse(http.StatusOK, `{"id": "s1", "threadId": "t9"}`), nil
	})

	var buf bytes.Buffer
	require.NoError(t, runMessagesSend(context.Background(), conn, sendOptions{
		To:          []string{"x@example.com", "y@example.com"},
		Cc:          []string{"z@example.com"},
		Subject:     "Report",
		Body:        "See attached",
		ThreadID:    "t9",
		Attachments: []string{att},
	}, jsonOut(&buf)))

	assert.Equal(t, "t9", sent.ThreadId)
	raw, err := decodeBody(sent.Raw)
	require.NoError(t, err)
	assert.Contains(t, raw, "To: x@example.com, y@example.com\r\n")
	assert.Contains(t, raw, "Cc: z@example.com\r\n")
	assert.Contains(t, raw, "Subject: Report\r\n")
	assert.Contains(t, raw, "multipart/mixed; boundary=")
	assert.Contains(t, raw, `filename="notes.txt"`)
	assert.Contains(t, raw, base64.StdEncoding.EncodeToString([]byte("attached")))

	var result map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, "s1", result["id"])
}

func TestRunMessagesSendBodyFromStdin(t *testing.T) {
	withStdin(t, "from stdin")
	var raw string
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		var m gmail.Message
		require.NoError(t, json.Unmarshal([]byte(readBody(t, req)), &m))
		raw, _ = decodeBody(m.Raw)
		return jsonResponse(http.StatusOK, `{"id": "s1"}`), nil
	})
	var buf bytes.Buffer
	require.NoError(t, runMessagesSend(context.Background(), conn, sendOptions{To: []string{"x@example.com"}, Subject: "s", HTML: true}, textOut(&buf)))
	assert.Contains(t, raw, `Content-Type: text/html; charset="UTF-8"`)
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nfrom stdin"))
	assert.Equal(t, "Message sent (s1)\n", buf.String())
}

func TestRunMessagesSendRequiresRecipient(t *testing.T) {
	var buf bytes.Buffer
	err := runMessagesSend(context.Background(), newFakeConn(t, nil), sendOptions{Body: "x"}, jsonOut(&buf))
	assert.EqualError(t, err, "--to is required")
}

func TestRunMessagesTrashBatch(t *testing.T) {
	withStdin(t, "m1\nm2\nm3\n")
	var trashed []string
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "POST", req.Method)
		id := strings.TrimSuffix(strings.TrimPrefix(req.URL.Path, "/gmail/v1/users/me/messages/"), "/trash")
		if id == "m2" {
			return notFound(), nil
		}
		trashed = append(trashed, id)
		return jsonResponse(http.StatusOK, `{"id": "`+id+`"}`), nil
	})

	var buf bytes.Buffer
	err := runMessagesTrash(context.Background(), conn, "", true, jsonOut(&buf))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ID m2")
	assert.Equal(t, []string{"m1", "m3"}, trashed)

	var result batchResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, batchResult{Action: "trashed", Succeeded: 2, Errors: 1}, result)
}

func TestRunMessagesUntrash(t *testing.T) {
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/gmail/v1/users/me/messages/m1/untrash", req.URL.Path)
		return jsonResponse(http.StatusOK, `{"id": "m1"}`), nil
	})
	var buf bytes.Buffer
	require.NoError(t, runMessagesUntrash(context.Background(), conn, "m1", false, textOut(&buf)))
	assert.Equal(t, "Message restored from trash\n", buf.String())
}

func TestRunMessagesDelete(t *testing.T) {
	var method string
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		method = req.Method
		return jsonResponse(http.StatusNoContent, ""), nil
	})

	var buf bytes.Buffer
	err := runMessagesDelete(context.Background(), conn, "m1", false, false, textOut(&buf))
	assert.Error(t, err)
	assert.Empty(t, method)

	require.NoError(t, runMessagesDelete(context.Background(), conn, "m1", false, true, textOut(&buf)))
	assert.Equal(t, "DELETE", method)
	assert.Equal(t, "Message deleted\n", buf.String())
}

func TestRunMessagesModify(t *testing.T) {
	var req gmail.ModifyMessageRequest
	conn := newFakeConn(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/gmail/v1/users/me/labels" {
			return jsonResponse(http.StatusOK, labelsJSON), nil
		}
		assert.Equal(t, "/gmail/v1/users/me/messages/m1/modify", r.URL.Path)
		require.NoError(t, json.Unmarshal([]byte(readBody(t, r)), &req))
		return jsonResponse(http.StatusOK, `{"id": "m1"}`), nil
	})

	var buf bytes.Buffer
	require.NoError(t, runMessagesModify(context.Background(), conn, "m1", false, []string{"Receipts"}, []string{"inbox", "UNREAD"}, textOut(&buf)))
	assert.Equal(t, []string{"Label_1"}, req.AddLabelIds)
	assert.Equal(t, []string{"INBOX", "UNREAD"}, req.RemoveLabelIds)

	assert.Error(t, runMessagesModify(context.Background(), conn, "m1", false, nil, nil, textOut(&buf)))
}

func TestRunLabelsList(t *testing.T) {
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, labelsJSON), nil
	})

	var buf bytes.Buffer
	require.NoError(t, runLabelsList(context.Background(), conn, false, true, jsonOut(&buf)))
	var result []labelOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	require.Len(t, result, 1)
	assert.Equal(t, "Receipts", result[0].Name)
	assert.Equal(t, "#000000", result[0].BackgroundColor)

	buf.Reset()
	require.NoError(t, runLabelsList(context.Background(), conn, false, false, textOut(&buf)))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "INBOX"))
	assert.True(t, strings.HasPrefix(lines[3], "Receipts"))
}

func TestRunLabelsCreateAndDelete(t *testing.T) {
	var created gmail.Label
	var deleted string
	labelCalls := 0
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		switch {
		case req.Method == "POST" && req.URL.Path == "/gmail/v1/users/me/labels":
			require.NoError(t, json.Unmarshal([]byte(readBody(t, req)), &created))
			return jsonResponse(http.StatusOK, `{"id": "Label_2", "name": "Travel", "type": "user"}`), nil
		case req.Method == "GET" && req.URL.Path == "/gmail/v1/users/me/labels":
			labelCalls++
			return jsonResponse(http.StatusOK, `{"labels": [{"id": "Label_2", "name": "Travel", "type": "user"}]}`), nil
		case req.Method == "DELETE":
			deleted = strings.TrimPrefix(req.URL.Path, "/gmail/v1/users/me/labels/")
			return jsonResponse(http.StatusNoContent, ""), nil
		}
		t.Fatalf("unexpected request: %s %s", req.Method, req.URL)
		return nil, nil
	})

	var buf bytes.Buffer
	require.NoError(t, runLabelsCreate(context.Background(), conn, labelOptions{Name: "Travel", BackgroundColor: "#16a766"}, textOut(&buf)))
	assert.Equal(t, "Travel", created.Name)
	assert.Equal(t, "#16a766", created.Color.BackgroundColor)
	assert.Equal(t, "Created label Travel (Label_2)\n", buf.String())

	buf.Reset()
	require.NoError(t, runLabelsDelete(context.Background(), conn, "travel", textOut(&buf)))
	assert.Equal(t, "Label_2", deleted)
	assert.Equal(t, 1, labelCalls)

	assert.Error(t, runLabelsCreate(context.Background(), conn, labelOptions{}, textOut(&buf)))
	assert.Error(t, runLabelsUpdate(context.Background(), conn, "Travel", labelOptions{}, textOut(&buf)))
}

func TestRunFiltersCreate(t *testing.T) {
	var f gmail.Filter
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/gmail/v1/users/me/labels":
			return jsonResponse(http.StatusOK, labelsJSON), nil
		case "/gmail/v1/users/me/settings/filters":
			require.NoError(t, json.Unmarshal([]byte(readBody(t, req)), &f))
			f.Id = "f1"
			b, _ := json.Marshal(f)
			return jsonResponse(http.StatusOK, string(b)), nil
		}
		t.Fatalf("unexpected request: %s", req.URL)
		return nil, nil
	})

	var buf bytes.Buffer
	require.NoError(t, runFiltersCreate(context.Background(), conn, filterOptions{
		From:         "shop@example.com",
		AddLabels:    []string{"Receipts"},
		RemoveLabels: []string{"INBOX"},
	}, jsonOut(&buf)))
	assert.Equal(t, "shop@example.com", f.Criteria.From)
	assert.Equal(t, []string{"Label_1"}, f.Action.AddLabelIds)

	var result filterOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, "f1", result.ID)

	assert.Error(t, runFiltersCreate(context.Background(), conn, filterOptions{AddLabels: []string{"x"}}, jsonOut(&buf)))
	assert.Error(t, runFiltersCreate(context.Background(), conn, filterOptions{From: "x"}, jsonOut(&buf)))
}

func TestRunFiltersList(t *testing.T) {
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/gmail/v1/users/me/labels" {
			return jsonResponse(http.StatusOK, labelsJSON), nil
		}
		return jsonResponse(http.StatusOK, `{"filter": [
			{"id": "f1", "criteria": {"from": "a@example.com", "hasAttachment": true}, "action": {"addLabelIds": ["Label_1"], "removeLabelIds": ["INBOX"]}}
		]}`), nil
	})
	var buf bytes.Buffer
	require.NoError(t, runFiltersList(context.Background(), conn, textOut(&buf)))
	assert.Contains(t, buf.String(), "from:a@example.com has:attachment")
	assert.Contains(t, buf.String(), "+Receipts -INBOX")
}

func TestRunFiltersImport(t *testing.T) {
	p := filepath.Join(t.TempDir(), "filters.jsonnet")
	require.NoError(t, os.WriteFile(p, []byte(`[
  { criteria: { from: 'a@example.com' }, action: { addLabelIds: ['Receipts'] } },
  { criteria: { from: 'b@example.com' }, action: { removeLabelIds: ['INBOX'] } },
]`), 0600))

	var creates, deletes []string
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		switch {
		case req.URL.Path == "/gmail/v1/users/me/labels":
			return jsonResponse(http.StatusOK, labelsJSON), nil
		case req.Method == "GET":
			return jsonResponse(http.StatusOK, `{"filter": [
				{"id": "f1", "criteria": {"from": "a@example.com"}, "action": {"addLabelIds": ["Label_1"]}},
				{"id": "f9", "criteria": {"from": "old@example.com"}, "action": {"addLabelIds": ["Label_1"]}}
			]}`), nil
		case req.Method == "DELETE":
			deletes = append(deletes, req.URL.Path)
			return jsonResponse(http.StatusNoContent, ""), nil
		default:
			creates = append(creates, readBody(t, req))
			return jsonResponse(http.StatusOK, `{"id": "f2"}`), nil
		}
	})

	var buf bytes.Buffer
	require.NoError(t, runFiltersImport(context.Background(), conn, p, true, false, textOut(&buf)))
	assert.Empty(t, creates)
	assert.Equal(t, `--- current/filters
+++ new/filters
@@ -1 +1,12 @@
-[]
+[
+  {
+    "criteria": {
+      "from": "b@example.com"
+    },
+    "action": {
+      "removeLabelIds": [
+        "INBOX"
+      ]
+    }
+  }
+]
Dry run: 1 filters to create, 0 to delete
`, buf.String())

	buf.Reset()
	require.NoError(t, runFiltersImport(context.Background(), conn, p, false, false, jsonOut(&buf)))
	require.Len(t, creates, 1)
	assert.Contains(t, creates[0], "b@example.com")
	assert.Empty(t, deletes)

	var result filtersImportResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	require.Len(t, result.Created, 1)
	assert.Equal(t, "f2", result.Created[0].ID)
	assert.Empty(t, result.Deleted)
}

func TestRunFiltersImportPrune(t *testing.T) {
	p := filepath.Join(t.TempDir(), "filters.jsonnet")
	require.NoError(t, os.WriteFile(p, []byte(`[
  { criteria: { from: 'a@example.com' }, action: { addLabelIds: ['Receipts'] } },
]`), 0600))

	var deletes []string
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		switch {
		case req.URL.Path == "/gmail/v1/users/me/labels":
			return jsonResponse(http.StatusOK, labelsJSON), nil
		case req.Method == "GET":
			return jsonResponse(http.StatusOK, `{"filter": [
				{"id": "f1", "criteria": {"from": "a@example.com"}, "action": {"addLabelIds": ["Label_1"]}},
				{"id": "f9", "criteria": {"from": "old@example.com"}, "action": {"addLabelIds": ["Label_1"]}}
			]}`), nil
		case req.Method == "DELETE":
			deletes = append(deletes, req.URL.Path)
			return jsonResponse(http.StatusNoContent, ""), nil
		}
		t.Fatalf("unexpected %s %s", req.Method, req.URL.Path)
		return nil, nil
	})

	var buf bytes.Buffer
	require.NoError(t, runFiltersImport(context.Background(), conn, p, true, true, textOut(&buf)))
	assert.Empty(t, deletes)
	assert.Contains(t, buf.String(), `-      "from": "old@example.com"`)
	assert.Contains(t, buf.String(), `-        "Receipts"`)
	assert.Contains(t, buf.String(), "Dry run: 0 filters to create, 1 to delete")

	buf.Reset()
	require.NoError(t, runFiltersImport(context.Background(), conn, p, false, true, textOut(&buf)))
	assert.Equal(t, []string{"/gmail/v1/users/me/settings/filters/f9"}, deletes)
	assert.Contains(t, buf.String(), "Created 0 filters, deleted 1")

	// without prune the extra filter is left alone
	buf.Reset()
	require.NoError(t, runFiltersImport(context.Background(), conn, p, false, false, textOut(&buf)))
	assert.Equal(t, "Filters are up to date\n", buf.String())
}

func TestRunFiltersExport(t *testing.T) {
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/gmail/v1/users/me/labels" {
			return jsonResponse(http.StatusOK, labelsJSON), nil
		}
		assert.Equal(t, "/gmail/v1/users/me/settings/filters", req.URL.Path)
		return jsonResponse(http.StatusOK, `{"filter": [
			{"id": "f1", "criteria": {"from": "a@example.com"}, "action": {"addLabelIds": ["Label_1"], "removeLabelIds": ["INBOX"]}}
		]}`), nil
	})

	p := filepath.Join(t.TempDir(), "exported.jsonnet")
	var buf bytes.Buffer
	require.NoError(t, runFiltersExport(context.Background(), conn, p, textOut(&buf)))
	assert.Equal(t, "Exported 1 filters to "+p+"\n", buf.String())

	filters, err := gshell.ReadFilters(p)
	require.NoError(t, err)
	require.Len(t, filters, 1)
	assert.Empty(t, filters[0].Id)
	assert.Equal(t, []string{"Receipts"}, filters[0].Action.AddLabelIds)
	assert.Equal(t, []string{"INBOX"}, filters[0].Action.RemoveLabelIds)
}

func TestRunSendAsSignature(t *testing.T) {
	var patched gmail.SendAs
	patches := 0
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		assert.Contains(t, req.URL.Path, "/gmail/v1/users/me/settings/sendAs/")
		if req.Method == "PATCH" {
			patches++
			require.NoError(t, json.Unmarshal([]byte(readBody(t, req)), &patched))
			return jsonResponse(http.StatusOK, `{}`), nil
		}
		return jsonResponse(http.StatusOK, `{"sendAsEmail": "me@example.com", "signature": "Old line\nKeep"}`), nil
	})

	var buf bytes.Buffer
	require.NoError(t, runSendAsSignature(context.Background(), conn, "me@example.com", "New line\nKeep", "", false, true, textOut(&buf)))
	assert.Equal(t, 0, patches)
	assert.Contains(t, buf.String(), "--- current/me@example.com")
	assert.Contains(t, buf.String(), "-Old line")
	assert.Contains(t, buf.String(), "+New line")

	buf.Reset()
	require.NoError(t, runSendAsSignature(context.Background(), conn, "me@example.com", "New line\nKeep", "", true, false, jsonOut(&buf)))
	assert.Equal(t, 1, patches)
	assert.Equal(t, "New line\nKeep", patched.Signature)

	var result signatureOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.True(t, result.Changed)
	assert.True(t, result.Applied)

	buf.Reset()
	require.NoError(t, runSendAsSignature(context.Background(), conn, "me@example.com", "Old line\nKeep", "", false, false, textOut(&buf)))
	assert.Equal(t, "Signature unchanged\n", buf.String())
}

func TestRunSendAsSignatureDeclined(t *testing.T) {
	withStdin(t, "n\n")
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		if req.Method == "PATCH" {
			t.Fatal("signature must not be patched")
		}
		return jsonResponse(http.StatusOK, `{"signature": "a"}`), nil
	})
	var buf bytes.Buffer
	require.NoError(t, runSendAsSignature(context.Background(), conn, "me@example.com", "b", "", false, false, textOut(&buf)))
	assert.Contains(t, buf.String(), "Aborted")

	assert.Error(t, runSendAsSignature(context.Background(), conn, "me@example.com", "b", "sig.html", false, false, textOut(&buf)))
	assert.Error(t, runSendAsSignature(context.Background(), conn, "me@example.com", "b", "", false, false, jsonOut(&buf)))
}

func TestRunVacationSet(t *testing.T) {
	var updated map[string]interface{}
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/gmail/v1/users/me/settings/vacation", req.URL.Path)
		if req.Method == "PUT" {
			body := readBody(t, req)
			require.NoError(t, json.Unmarshal([]byte(body), &updated))
			return jsonResponse(http.StatusOK, body), nil
		}
		return jsonResponse(http.StatusOK, `{"enableAutoReply": true, "responseSubject": "Away", "restrictToDomain": true}`), nil
	})

	enable := false
	msg := "Back Monday"
	var buf bytes.Buffer
	require.NoError(t, runVacationSet(context.Background(), conn, vacationOptions{
		Enable:  &enable,
		Message: &msg,
		Start:   "2026-01-02",
		End:     "2026-01-05T12:00:00Z",
	}, jsonOut(&buf)))

	assert.Equal(t, false, updated["enableAutoReply"])
	assert.Equal(t, "Away", updated["responseSubject"])
	assert.Equal(t, "Back Monday", updated["responseBodyPlainText"])
	assert.Equal(t, true, updated["restrictToDomain"])

	var result vacationOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.False(t, result.Enabled)
	assert.Equal(t, "2026-01-02T00:00:00Z", result.StartTime)
	assert.Equal(t, "2026-01-05T12:00:00Z", result.EndTime)

	err := runVacationSet(context.Background(), conn, vacationOptions{Start: "2026-02-01", End: "2026-01-01"}, jsonOut(&buf))
	assert.EqualError(t, err, "--end is before --start")
}

func TestGmailNotAuthorized(t *testing.T) {
	var buf bytes.Buffer
	err := runVacationGet(context.Background(), &gshell.Connection{}, jsonOut(&buf))
	assert.EqualError(t, err, "not authorized for gmail; run 'gshell auth login --api gmail'")
}

const attachmentMessageJSON = `{"id": "m1", "payload": {"mimeType": "multipart/mixed", "parts": [
	{"mimeType": "text/plain", "body": {"data": "aGk"}},
	{"mimeType": "application/pdf", "filename": "invoice.pdf", "body": {"attachmentId": "att1", "size": 7}},
	{"mimeType": "text/csv", "filename": "rows.csv", "body": {"data": "YSxiCg", "size": 4}}
]}}`

func TestRunAttachmentsList(t *testing.T) {
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "full", req.URL.Query().Get("format"))
		return jsonResponse(http.StatusOK, attachmentMessageJSON), nil
	})
	var buf bytes.Buffer
	require.NoError(t, runAttachmentsList(context.Background(), conn, "m1", jsonOut(&buf)))

	var result []attachmentInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	require.Len(t, result, 2)
	assert.Equal(t, "rows.csv", result[1].Filename)
	assert.Equal(t, 1, result[1].Index)
}

func TestRunAttachmentsDownloadDuplicateNames(t *testing.T) {
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"id": "m2", "payload": {"mimeType": "multipart/mixed", "parts": [
			{"mimeType": "text/plain", "filename": "notes.txt", "body": {"data": "b25l", "size": 3}},
			{"mimeType": "text/plain", "filename": "../notes.txt", "body": {"data": "dHdv", "size": 3}},
			{"mimeType": "text/plain", "filename": "notes.txt", "body": {"data": "dGhyZWU", "size": 5}}
		]}}`), nil
	})

	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, runAttachmentsDownload(context.Background(), conn, "m2", attachmentDownloadOptions{OutputDir: dir}, textOut(&buf)))
	for name, want := range map[string]string{
		"notes.txt":     "one",
		"notes (1).txt": "two",
		"notes (2).txt": "three",
	} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, want, string(b))
	}
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dir), "notes.txt"))
}

func TestUniqueName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "a.tar.gz", uniqueName("a.tar.gz", used))
	assert.Equal(t, "a.tar (1).gz", uniqueName("a.tar.gz", used))
	assert.Equal(t, "README", uniqueName("README", used))
	assert.Equal(t, "README (1)", uniqueName("README", used))
}

func TestRunAttachmentsDownload(t *testing.T) {
	var fetched []string
	conn := newFakeConn(t, func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "/attachments/") {
			fetched = append(fetched, req.URL.Path)
			return jsonResponse(http.StatusOK, `{"data": "`+base64.URLEncoding.EncodeToString([]byte("%PDF-1.4"))+`"}`), nil
		}
		return jsonResponse(http.StatusOK, attachmentMessageJSON), nil
	})

	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, runAttachmentsDownload(context.Background(), conn, "m1", attachmentDownloadOptions{OutputDir: dir}, textOut(&buf)))
	assert.Equal(t, []string{"/gmail/v1/users/me/messages/m1/attachments/att1"}, fetched)

	pdf, err := os.ReadFile(filepath.Join(dir, "invoice.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(pdf))
	csv, err := os.ReadFile(filepath.Join(dir, "rows.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(csv))

	single := filepath.Join(dir, "renamed.csv")
	buf.Reset()
	require.NoError(t, runAttachmentsDownload(context.Background(), conn, "m1", attachmentDownloadOptions{Pattern: "*.csv", Output: single}, jsonOut(&buf)))
	assert.FileExists(t, single)
	assert.Contains(t, buf.String(), `"downloaded": 1`)

	assert.EqualError(t, runAttachmentsDownload(context.Background(), conn, "m1", attachmentDownloadOptions{Output: single}, textOut(&buf)),
		"--output needs exactly one attachment, 2 selected")
	assert.EqualError(t, runAttachmentsDownload(context.Background(), conn, "m1", attachmentDownloadOptions{Index: []int{5}}, textOut(&buf)),
		"attachment index 5 out of range (message has 2)")
}
