package http

import (
	"embed"
	"html/template"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type pageData struct {
	UploadPlaceholder string
	RecordPlaceholder string
	Recording         bool
	RecordingID       string
	Provider          string
}
