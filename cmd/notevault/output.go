package main

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/MrEthical07/notevault/client"
	"github.com/fatih/color"
)

type printer struct {
	w io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

var (
	userTmpl = template.Must(template.New("user").Funcs(templateFuncs()).Parse(userTemplate))
	noteTmpl = template.Must(template.New("note").Funcs(templateFuncs()).Parse(noteTemplate))
)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"bold":   color.New(color.Bold).Sprint,
		"faint":  color.New(color.Faint).Sprint,
		"cyan":   color.CyanString,
		"green":  color.GreenString,
		"yellow": color.YellowString,
		"red":    color.RedString,
		"formatTime": func(t time.Time) string {
			return t.Local().Format("2006-01-02 15:04:05")
		},
	}
}

func (p *printer) ok(format string, args ...any) {
	fmt.Fprintln(p.w, color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func (p *printer) warn(format string, args ...any) {
	fmt.Fprintln(p.w, color.YellowString("!"), fmt.Sprintf(format, args...))
}

func (p *printer) user(u *client.User) error {
	return userTmpl.Execute(p.w, u)
}

func (p *printer) note(n client.Note) error {
	return noteTmpl.Execute(p.w, n)
}

func (p *printer) backupCodes(codes []string) {
	fmt.Fprintf(p.w, "\n%s\n", color.New(color.Bold).Sprint("Backup codes (each works once, store them offline):"))
	for _, c := range codes {
		fmt.Fprintf(p.w, "  %s\n", color.CyanString(c))
	}
	fmt.Fprintln(p.w)
}

func (p *printer) noteList(list []client.Note) {
	if len(list) == 0 {
		fmt.Fprintln(p.w, "No notes found")
		return
	}

	fmt.Fprintf(p.w, "\n%s (%d):\n\n", color.New(color.Bold).Sprint("Notes"), len(list))
	for _, n := range list {
		title := n.Title
		switch {
		case n.Unreadable:
			title = color.RedString("<unreadable>")
		case title == "":
			title = color.New(color.Faint).Sprint("(untitled)")
		default:
			title = color.New(color.Bold).Sprint(title)
		}

		var marks []string
		if n.IsFavorite {
			marks = append(marks, color.YellowString("★"))
		}
		if n.IsDeleted {
			marks = append(marks, color.RedString("trashed"))
		}
		for _, tag := range n.Tags {
			marks = append(marks, color.GreenString("#"+tag))
		}

		fmt.Fprintf(p.w, "  %s %s\n", title, strings.Join(marks, " "))
		fmt.Fprintf(p.w, "    ID: %s\n", color.New(color.Faint).Sprint(n.ID))
		fmt.Fprintf(p.w, "    Updated: %s\n\n", n.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
}

const userTemplate = `{{ bold "Name:" }} {{ cyan .Name }}
{{ bold "Email:" }} {{ .Email }}
{{ bold "ID:" }} {{ faint .ID }}
{{ bold "MFA:" }} {{ if .MFAEnabled }}{{ green "enabled" }}{{ else }}{{ red "not enrolled" }}{{ end }}
{{ bold "Encryption:" }} {{ if .EncryptionSalt }}{{ green "configured" }}{{ else }}{{ yellow "passphrase not set" }}{{ end }}
{{- if .LastLogin }}
{{ bold "Last login:" }} {{ formatTime .LastLogin.UTC }}
{{- end }}
{{ bold "Member since:" }} {{ formatTime .CreatedAt }}
`

const noteTemplate = `
{{ if .Unreadable }}{{ red "This note cannot be decrypted with the given passphrase." }}{{ else }}{{ bold "Title:" }} {{ cyan .Title }}{{ end }}
{{ bold "ID:" }} {{ faint .ID }}
{{- if .Tags }}
{{ bold "Tags:" }} {{ range .Tags }}{{ green . }} {{ end }}
{{- end }}
{{- if .IsFavorite }}
{{ bold "Favorite:" }} {{ yellow "★" }}
{{- end }}
{{- if .IsDeleted }}
{{ bold "Status:" }} {{ red "in trash" }}
{{- end }}
{{ if not .Unreadable }}
{{ .Body }}
{{ end }}
{{ bold "Created:" }} {{ formatTime .CreatedAt }}
{{ bold "Updated:" }} {{ formatTime .UpdatedAt }}
`
