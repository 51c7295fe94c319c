package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"
)

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; font-size: 14px; line-height: 1.5; color: #222;">
{{- range .Paragraphs}}
<p>{{.}}</p>
{{- end}}
{{- if .Signature}}
<p style="color: #555;">{{.Signature}}</p>
{{- end}}
</body>
</html>
`))

var (
	boldPattern = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	urlPattern  = regexp.MustCompile(`https?://[^\s<>"']+[^\s<>"'.,;:!?)]`)
)

// RenderHTML turns a plain-text body into simple HTML paragraphs. **bold**
// becomes <strong> and bare URLs become links.
func RenderHTML(body, signature string) (string, error) {
	data := struct {
		Paragraphs []template.HTML
		Signature  template.HTML
	}{}
	for _, para := range splitParagraphs(body) {
		data.Paragraphs = append(data.Paragraphs, formatInline(para))
	}
	if strings.TrimSpace(signature) != "" {
		data.Signature = formatInline(strings.TrimSpace(signature))
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("mailer: render html: %w", err)
	}
	return buf.String(), nil
}

// RenderText strips markdown emphasis and appends the signature.
func RenderText(body, signature string) string {
	text := boldPattern.ReplaceAllString(strings.TrimSpace(body), "$1")
	if sig := strings.TrimSpace(signature); sig != "" {
		text += "\n\n" + sig
	}
	return text
}

func splitParagraphs(body string) []string {
	body = strings.ReplaceAll(strings.TrimSpace(body), "\r\n", "\n")
	var out []string
	for _, para := range strings.Split(body, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			out = append(out, para)
		}
	}
	return out
}

func formatInline(text string) template.HTML {
	escaped := template.HTMLEscapeString(text)
	escaped = boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
	escaped = urlPattern.ReplaceAllStringFunc(escaped, func(u string) string {
		return fmt.Sprintf(`<a href="%s">%s</a>`, u, u)
	})
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	return template.HTML(escaped)
}
