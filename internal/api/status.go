package api

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

var statusTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Archive Logs</title>
<style>
body { background-color: black; color: white; font-family: monospace; white-space: pre-wrap; padding: 20px; }
</style>
</head>
<body>{{.}}</body>
</html>
`))

func (s *Server) statusPage(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := statusTemplate.Execute(&buf, strings.Join(s.events.Snapshot(), "\n")); err != nil {
		s.logger.Error("render status page failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("write status page failed", zap.Error(err))
	}
}
