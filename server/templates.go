package server

import (
	"bytes"
	"html/template"
	"net/http"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Sequencing files</title>
<style>
body { font-family: Arial, sans-serif; margin: 2rem auto; max-width: 960px; color: #1d1d1f; }
nav a { margin-right: 1rem; }
ul { padding-left: 1.2rem; }
.error { border: 1px solid #d32f2f; background: #fbeaea; padding: 0.75rem 1rem; border-radius: 8px; }
button { padding: 0.4rem 1rem; cursor: pointer; }
</style>
</head>
<body>
<h1>Sequencing files</h1>
{{if .Authorized}}
<nav>
  <a href="/files/sample">Sample files</a>
  <a href="/files/own">My files</a>
  <a href="/files/all">All files</a>
</nav>
<form method="post" action="/logout"><button type="submit">Log out</button></form>
{{else}}
<p><a href="/login">Sign in with Sequencing.com</a></p>
{{end}}
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Kind}}
<h2>{{.Kind}}</h2>
{{if .Files}}
<ul>
{{range .Files}}  <li>{{.String}}</li>
{{end}}</ul>
{{else if not .Error}}<p>No files.</p>{{end}}
{{end}}
</body>
</html>`))

func (a *App) render(w http.ResponseWriter, status int, data PageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		a.Logger.Error("failed to render page", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
