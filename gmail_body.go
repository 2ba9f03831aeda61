package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"unicode"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	gmail "google.golang.org/api/gmail/v1"
	"gopkg.in/yaml.v3"
)

// decodeBody decodes Gmail's base64url body data, padded or not
func decodeBody(data string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return "", err
		}
	}
	return string(b), nil
}

// findPart returns the decoded body of the first part with mimeType,
// searching multipart containers depth first.
func findPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if part.MimeType == mimeType && part.Filename == "" && part.Body != nil && part.Body.Data != "" {
		decoded, err := decodeBody(part.Body.Data)
		if err != nil {
			return ""
		}
		return decoded
	}
	for _, p := range part.Parts {
		if s := findPart(p, mimeType); s != "" {
			return s
		}
	}
	return ""
}

type attachmentInfo struct {
	Index        int    `json:"index" yaml:"index"`
	Filename     string `json:"filename" yaml:"filename"`
	MimeType     string `json:"mimeType" yaml:"mime_type"`
	Size         int64  `json:"size" yaml:"size"`
	AttachmentID string `json:"attachmentId,omitempty" yaml:"-"`

	// inline holds the body of small attachments sent along with the message
	inline string
}

// attachments lists the parts carrying a filename
func attachments(part *gmail.MessagePart) []attachmentInfo {
	var ret []attachmentInfo
	var walk func(p *gmail.MessagePart)
	walk = func(p *gmail.MessagePart) {
		if p == nil {
			return
		}
		if p.Filename != "" && p.Body != nil {
			ret = append(ret, attachmentInfo{
				Index:        len(ret),
				Filename:     p.Filename,
				MimeType:     p.MimeType,
				Size:         p.Body.Size,
				AttachmentID: p.Body.AttachmentId,
				inline:       p.Body.Data,
			})
		}
		for _, c := range p.Parts {
			walk(c)
		}
	}
	walk(part)
	return ret
}

// header returns the first header named name, case-insensitively
func header(part *gmail.MessagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// convertHTMLToMarkdown converts an HTML email body to markdown
func convertHTMLToMarkdown(htmlBody string) (string, error) {
	markdown, err := md.ConvertString(htmlBody)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}
	return strings.TrimSpace(markdown), nil
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Blockquote: true, atom.Table: true, atom.Hr: true,
}

// htmlToText extracts readable text from an HTML body. Scripts and styles
// are dropped and block elements become line breaks.
func htmlToText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return strings.TrimSpace(b.String())
			}
			return collapseBlankLines(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style, atom.Head:
				if tok.Type == html.StartTagToken {
					skip++
				}
			default:
				if blockElements[tok.DataAtom] {
					b.WriteString("\n")
				}
			}
		case html.EndTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style, atom.Head:
				if skip > 0 {
					skip--
				}
			default:
				if blockElements[tok.DataAtom] {
					b.WriteString("\n")
				}
			}
		case html.TextToken:
			if skip == 0 {
				b.WriteString(squashSpace(string(z.Text())))
			}
		}
	}
}

// squashSpace collapses runs of whitespace to one space, keeping a single
// leading or trailing space so adjacent inline elements stay separated.
func squashSpace(s string) string {
	words := strings.Join(strings.Fields(s), " ")
	if words == "" {
		if s != "" {
			return " "
		}
		return ""
	}
	if strings.TrimLeftFunc(s, unicode.IsSpace) != s {
		words = " " + words
	}
	if strings.TrimRightFunc(s, unicode.IsSpace) != s {
		words += " "
	}
	return words
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// emailFrontmatter is the YAML header of a message rendered as markdown
type emailFrontmatter struct {
	MessageID string   `yaml:"message_id"`
	ThreadID  string   `yaml:"thread_id"`
	From      string   `yaml:"from"`
	To        string   `yaml:"to"`
	Cc        string   `yaml:"cc,omitempty"`
	Subject   string   `yaml:"subject"`
	Date      string   `yaml:"date"`
	Labels    []string `yaml:"labels,omitempty"`
	Note      string   `yaml:"note,omitempty"`
}

// formatEmailAsMarkdown renders YAML frontmatter, the body, and an attachments block
func formatEmailAsMarkdown(fm emailFrontmatter, body string, atts []attachmentInfo) (string, error) {
	var b strings.Builder
	b.WriteString("---\n")
	head, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("failed to marshal frontmatter: %w", err)
	}
	b.Write(head)
	b.WriteString("---\n\n")
	b.WriteString(body)
	b.WriteString("\n")

	if len(atts) > 0 {
		tail, err := yaml.Marshal(map[string][]attachmentInfo{"attachments": atts})
		if err != nil {
			return "", fmt.Errorf("failed to marshal attachments: %w", err)
		}
		b.WriteString("\n---\n")
		b.Write(tail)
	}
	return b.String(), nil
}
