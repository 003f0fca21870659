package export

import (
	"bytes"
	"embed"
	"html/template"
	"regexp"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var projectTemplate = template.Must(
	template.New("project.html").Funcs(template.FuncMap{
		"join":     strings.Join,
		"cssColor": cssColor,
	}).ParseFS(templateFS, "templates/project.html"),
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{3,8}$`)

// cssColor passes through hex colors and replaces anything else with a
// neutral default, so user input never reaches the stylesheet verbatim.
func cssColor(value string) template.CSS {
	if hexColor.MatchString(value) {
		return template.CSS(value)
	}
	return template.CSS("#333")
}

// RenderProjectHTML renders the project template.
func RenderProjectHTML(project Project) (string, error) {
	var buf bytes.Buffer
	if err := projectTemplate.Execute(&buf, project); err != nil {
		return "", err
	}
	return buf.String(), nil
}
