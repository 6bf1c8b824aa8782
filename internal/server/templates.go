package server

import (
	"html/template"
	"log"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/js"
)

// reloadJS keeps the page synchronized with the notification channel:
// any frame from /ws triggers a full reload, and a dropped socket is
// retried so a restarted server picks the viewer back up.
const reloadJS = `
(function () {
	var retry = 1000;
	function connect() {
		var proto = location.protocol === "https:" ? "wss://" : "ws://";
		var ws = new WebSocket(proto + location.host + "/ws");
		ws.onmessage = function () { location.reload(); };
		ws.onclose = function () { setTimeout(connect, retry); };
	}
	connect();
})();
`

// reloadScript is the minified form of reloadJS, produced once at init.
var reloadScript template.JS

func init() {
	m := minify.New()
	m.AddFunc("application/javascript", js.Minify)
	out, err := m.String("application/javascript", reloadJS)
	if err != nil {
		log.Printf("SERVER: minify warning: %v (using original script)", err)
		out = reloadJS
	}
	reloadScript = template.JS(out)
}

type sidebarEntry struct {
	Path   string
	Href   string
	Active bool
}

type pageVM struct {
	Title   string
	Sidebar []sidebarEntry // nil outside watch mode
	Body    template.HTML
	Script  template.JS
}

var shellTmpl = template.Must(template.New("shell").Parse(shellHTML))

const shellHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
:root{
  --bg:#ffffff; --text:#1f2328; --muted:#59636e;
  --line:#d1d9e0; --accent:#0969da; --side:#f6f8fa;
  --mono:ui-monospace,SFMono-Regular,Menlo,Consolas,monospace;
}
*{box-sizing:border-box}
body{
  margin:0;
  font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif;
  color:var(--text); background:var(--bg);
  display:flex; min-height:100vh;
}
nav.files{
  width:240px; flex-shrink:0;
  background:var(--side); border-right:1px solid var(--line);
  padding:16px 0; overflow-y:auto;
}
nav.files a{
  display:block; padding:4px 16px;
  color:var(--muted); text-decoration:none;
  font-size:14px; white-space:nowrap;
  overflow:hidden; text-overflow:ellipsis;
}
nav.files a:hover{color:var(--accent)}
nav.files a.active{color:var(--accent); font-weight:600}
main{
  flex:1; max-width:860px;
  padding:32px 40px 80px; overflow-x:auto;
}
main h1,main h2{border-bottom:1px solid var(--line); padding-bottom:.3em}
main pre{background:var(--side); padding:12px; border-radius:6px; overflow-x:auto}
main code{font-family:var(--mono); font-size:85%}
main table{border-collapse:collapse}
main th,main td{border:1px solid var(--line); padding:6px 13px}
main blockquote{margin-left:0; padding-left:1em; border-left:4px solid var(--line); color:var(--muted)}
main img{max-width:100%}
.diagnostic{
  border:1px solid #cf222e; border-radius:6px;
  background:#fff1f1; color:#cf222e; padding:12px 16px;
}
.diagnostic .kind{font-family:var(--mono); font-size:85%; display:block; margin-bottom:4px}
</style>
</head>
<body>
{{if .Sidebar}}<nav class="files">
{{range .Sidebar}}<a href="{{.Href}}"{{if .Active}} class="active"{{end}}>{{.Path}}</a>
{{end}}</nav>{{end}}
<main>
{{.Body}}
</main>
<script>{{.Script}}</script>
</body>
</html>
`
