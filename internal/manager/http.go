package manager

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const indexTemplate = `<!DOCTYPE html>
<html>
<head><title>messip manager</title></head>
<body>
<h1>messip manager</h1>
<h2>Connections</h2>
<table border="1">
<tr><th>sock</th><th>id</th><th>addr</th><th>created</th></tr>
{{range .Connections}}<tr><td>{{.Sock}}</td><td>{{.ID}}</td><td>{{.Addr}}</td><td>{{.Created}}</td></tr>
{{end}}
</table>
<h2>Channels</h2>
<table border="1">
<tr><th>name</th><th>owner</th><th>owner sock</th><th>max buffered</th><th>queue depth</th><th>clients</th><th>death notify</th></tr>
{{range .Channels}}<tr><td>{{.Name}}</td><td>{{.OwnerID}}</td><td>{{.OwnerSock}}</td><td>{{.MaxBuffered}}</td><td>{{.QueueDepth}}</td><td>{{.NClients}}</td><td>{{.NotifyOnDeath}}</td></tr>
{{end}}
</table>
</body>
</html>
`

// NewHTTPHandler returns the chi router serving the manager's
// introspection endpoints.
func NewHTTPHandler(reg *Registry) http.Handler {
	tmpl := template.Must(template.New("index").Parse(indexTemplate))

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, reg.Snapshot())
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	return r
}
