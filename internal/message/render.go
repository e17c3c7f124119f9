// internal/message/render.go
//
// Placeholder filling and HTML rendering.
//
// Context
//   Subjects and bodies mark variables as `$[name]`.  A variable is replaced
//   only when the caller supplied a non-empty value for it; unknown or empty
//   variables stay in the text verbatim so a broken template is visible in
//   the delivered mail rather than silently blank.
//
//   The markdown body becomes the HTML part through goldmark and is wrapped
//   in a small inline-styled layout that shows the sender name above and
//   below the content.
//
//------------------------------------------------------------------------------

package message

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var varRx = regexp.MustCompile(`\$\[(.*?)\]`)

// Variables returns the distinct placeholder names in text, in order of
// first appearance.
func Variables(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range varRx.FindAllStringSubmatch(text, -1) {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// Fill replaces the placeholders of b that have a non-empty value in params.
func Fill(b Body, params map[string]string) Body {
	vars := append(Variables(b.Text), Variables(b.Subject)...)
	for _, v := range vars {
		val := params[v]
		if val == "" {
			continue
		}
		ph := "$[" + v + "]"
		b.Subject = strings.ReplaceAll(b.Subject, ph, val)
		b.Text = strings.ReplaceAll(b.Text, ph, val)
	}
	return b
}

var (
	md     goldmark.Markdown
	mdOnce sync.Once
)

func markdown() goldmark.Markdown {
	mdOnce.Do(func() {
		md = goldmark.New(goldmark.WithExtensions(extension.GFM, extension.Linkify))
	})
	return md
}

// layout wraps rendered content.  Content is already HTML.
var layout = template.Must(template.New("email").Parse(`<div style="margin:0;padding:0;background:#f7f7f7;">
<table width="100%" style="min-width:320px" border="0" cellspacing="0" cellpadding="0" role="presentation">
<tr align="center"><td>
<table width="100%" style="max-width:600px" cellspacing="0" cellpadding="0" role="presentation">
<tr><td style="padding:20px 30px;font-family:'Segoe UI',Helvetica,Arial,sans-serif;"><h3 style="margin:10px 0;">{{.From}}</h3></td></tr>
<tr><td style="background:#ffffff;border:1px solid #f0f0f0;border-radius:10px;padding:10px 30px 15px;font-size:16px;font-family:'Segoe UI',Helvetica,Arial,sans-serif;">{{.Content}}</td></tr>
<tr><td align="center" style="padding:20px 30px;font-family:'Segoe UI',Helvetica,Arial,sans-serif;"><b style="font-size:12px;">{{.From}}</b></td></tr>
</table>
</td></tr>
</table>
</div>`))

// RenderHTML converts the markdown text to the HTML part of a message.
func RenderHTML(text, fromName string) (string, error) {
	var body bytes.Buffer
	if err := markdown().Convert([]byte(text), &body); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	var out bytes.Buffer
	err := layout.Execute(&out, struct {
		From    string
		Content template.HTML
	}{From: fromName, Content: template.HTML(body.String())})
	if err != nil {
		return "", fmt.Errorf("render email layout: %w", err)
	}
	return out.String(), nil
}
