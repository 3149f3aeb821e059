package httpapi

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/logger"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorObject `json:"error"`
}

type errorObject struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Details map[string]any   `json:"details,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps err to its status and JSON body. INTERNAL errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, log logger.Logger, err error) {
	pErr, ok := errors.As(err)
	if !ok || pErr.Code == errors.ErrInternal {
		log.Error("request failed", logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorObject{
			Code:    errors.ErrInternal,
			Message: "an internal error occurred",
		}})
		return
	}

	msg := pErr.Message
	if err != error(pErr) {
		msg = err.Error()
	}
	writeJSON(w, pErr.Status, errorBody{Error: errorObject{
		Code:    pErr.Code,
		Message: msg,
		Details: pErr.Details,
	}})
}

var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<article>
<h1>{{.Title}}</h1>
<p><small>Updated {{.Updated}} &middot; {{.Versions}} version(s) &middot; copied {{.CopyCount}} time(s)</small></p>
{{.Body}}
</article>
</body>
</html>
`))

type previewData struct {
	Title     string
	Updated   string
	Versions  int
	CopyCount int
	Body      template.HTML
}

// renderMarkdown converts markdown text to HTML using goldmark. Raw HTML in
// the source is omitted by goldmark's default renderer.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(md) + "</pre>")
	}
	return template.HTML(buf.String())
}

// formatMillis formats an epoch-millisecond timestamp as "2006-01-02 15:04" UTC.
func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}
