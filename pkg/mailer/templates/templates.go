package templates

import (
	"bytes"
	"embed"
	"fmt"
	htmpl "html/template"
)

//go:embed *.tmpl
var FS embed.FS

// ResetPasswordData feeds the reset_password template.
type ResetPasswordData struct {
	Name      string
	AppName   string
	ResetURL  string
	ExpiresIn string
}

// RenderHTML renders the named template (without the .tmpl suffix) with data.
func RenderHTML(name string, data any) (string, error) {
	t, err := htmpl.ParseFS(FS, name+".tmpl")
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Subject returns the email subject for a template name.
func Subject(name string) string {
	switch name {
	case "reset_password":
		return "Reset your password"
	default:
		return "Notification"
	}
}
