package server

import (
	"bytes"
	"html/template"

	"github.com/gofiber/fiber/v3"
)

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

type indexData struct {
	Theme string
	Model string
}

func (s *Server) handleIndex(c fiber.Ctx) error {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, indexData{Theme: s.cfg.Server.Theme, Model: s.cfg.Model.ID}); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, err)
	}
	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(buf.Bytes())
}

// indexHTML is the whole app shell. The page owns no view logic: every
// pointer event is forwarded to the server, which answers with a fresh SVG.
const indexHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>pipeloom</title>
<style>
  :root { color-scheme: dark light; }
  * { box-sizing: border-box; }
  body { margin: 0; font: 14px/1.45 system-ui, sans-serif; display: flex; height: 100vh; }
  body.dark { background: #16161e; color: #c0caf5; }
  body.light { background: #e6e7ed; color: #343b58; }
  #side { width: 340px; display: flex; flex-direction: column; padding: 12px; gap: 8px;
          border-right: 1px solid rgba(127,127,127,.35); }
  #side h1 { font-size: 16px; margin: 0; }
  #side .model { opacity: .6; font-size: 12px; }
  #transcript { flex: 1; overflow-y: auto; display: flex; flex-direction: column; gap: 6px; }
  .entry { padding: 6px 8px; border-radius: 6px; white-space: pre-wrap; }
  .entry.request { background: rgba(122,162,247,.15); }
  .entry.reply { background: rgba(158,206,106,.12); }
  .entry.error { background: rgba(247,118,142,.18); }
  #findings { max-height: 120px; overflow-y: auto; font-size: 12px; }
  .finding.error { color: #f7768e; }
  .finding.warning { color: #e0af68; }
  details { font-size: 12px; }
  details pre { max-height: 160px; overflow: auto; margin: 4px 0 0; padding: 6px;
                background: rgba(127,127,127,.12); border-radius: 6px; }
  textarea { resize: vertical; min-height: 64px; background: inherit; color: inherit;
             border: 1px solid rgba(127,127,127,.4); border-radius: 6px; padding: 6px; }
  .row { display: flex; gap: 6px; flex-wrap: wrap; }
  button, select { background: rgba(122,162,247,.2); color: inherit; border: 1px solid rgba(127,127,127,.4);
           border-radius: 6px; padding: 5px 10px; cursor: pointer; }
  button:disabled { opacity: .4; cursor: default; }
  #status { font-size: 12px; opacity: .7; min-height: 16px; }
  #canvas { flex: 1; overflow: hidden; touch-action: none; }
  #canvas svg { display: block; }
</style>
</head>
<body class="{{.Theme}}">
<div id="side">
  <h1>pipeloom</h1>
  <div class="model">{{.Model}}</div>
  <div id="transcript"></div>
  <div id="findings"></div>
  <details><summary>Pipeline JSON</summary><pre id="code-json"></pre></details>
  <details><summary>Dockerfile</summary><pre id="code-docker"></pre></details>
  <textarea id="prompt" placeholder="Describe the pipeline you need..."></textarea>
  <div class="row">
    <button id="send">Describe</button>
    <button id="accept" disabled>Accept</button>
    <button id="save" disabled>Save layout</button>
  </div>
  <div class="row">
    <button id="run" disabled>Run</button>
    <button id="stop" disabled>Stop</button>
    <button id="export" disabled>Export</button>
    <button id="theme">Theme</button>
  </div>
  <div class="row">
    <select id="stored"></select>
    <button id="open">Open</button>
  </div>
  <div id="status"></div>
</div>
<div id="canvas"></div>
<script>
"use strict";
var session = null, hasPipeline = false, accepted = false, pipelineId = null;
var themeName = document.body.className;
var canvas = document.getElementById("canvas");
var statusEl = document.getElementById("status");

function el(id) { return document.getElementById(id); }

function api(path, body, method) {
  var opts = { method: method || (body !== undefined ? "POST" : "GET") };
  if (body !== undefined) {
    opts.headers = { "Content-Type": "application/json" };
    opts.body = JSON.stringify(body);
  }
  return fetch(path, opts).then(function (res) {
    if (res.status === 204) return null;
    return res.json().then(function (data) {
      if (!res.ok) throw new Error(data.error || res.statusText);
      return data;
    });
  });
}

function setStatus(msg) { statusEl.textContent = msg || ""; }

function applyState(state) {
  session = state.session_id;
  hasPipeline = !!state.pipeline;
  accepted = hasPipeline && state.pipeline.accepted;
  pipelineId = hasPipeline ? state.pipeline.id : null;
  themeName = state.theme;
  document.body.className = themeName;
  canvas.innerHTML = state.svg;
  canvas.style.cursor = state.cursor;

  var tr = el("transcript");
  tr.innerHTML = "";
  (state.transcript || []).forEach(function (e) {
    var div = document.createElement("div");
    div.className = "entry " + e.kind;
    div.textContent = e.text;
    tr.appendChild(div);
  });
  tr.scrollTop = tr.scrollHeight;

  var fd = el("findings");
  fd.innerHTML = "";
  (state.findings || []).forEach(function (f) {
    var div = document.createElement("div");
    div.className = "finding " + f.severity;
    div.textContent = f.severity + ": " + f.message;
    fd.appendChild(div);
  });

  el("code-json").textContent = hasPipeline ? JSON.stringify(state.pipeline, null, 2) : "";
  el("code-docker").textContent = state.dockerfile || "";

  el("send").textContent = hasPipeline ? "Refine" : "Describe";
  el("accept").disabled = !hasPipeline;
  el("save").disabled = !hasPipeline;
  el("run").disabled = !hasPipeline || state.running;
  el("stop").disabled = !state.running;
  el("export").disabled = !accepted;
}

// ── event forwarding ──

var queue = [], flushing = false;
function push(ev) {
  queue.push(ev);
  if (!flushing) { flushing = true; requestAnimationFrame(flush); }
}
function flush() {
  flushing = false;
  if (!session || queue.length === 0) return;
  var batch = queue.splice(0, queue.length);
  api("/api/sessions/" + session + "/events", batch).then(function (res) {
    canvas.innerHTML = res.svg;
    canvas.style.cursor = res.cursor;
  }).catch(function (err) { setStatus(err.message); });
}

function coords(e) {
  var r = canvas.getBoundingClientRect();
  return { x: e.clientX - r.left, y: e.clientY - r.top };
}

canvas.addEventListener("pointerdown", function (e) {
  e.preventDefault();
  canvas.setPointerCapture(e.pointerId);
  var c = coords(e);
  push({ kind: "pointerdown", x: c.x, y: c.y });
});
canvas.addEventListener("pointermove", function (e) {
  var c = coords(e);
  push({ kind: "pointermove", x: c.x, y: c.y });
});
canvas.addEventListener("pointerup", function (e) {
  var c = coords(e);
  push({ kind: "pointerup", x: c.x, y: c.y });
});
canvas.addEventListener("wheel", function (e) {
  e.preventDefault();
  var c = coords(e);
  push({ kind: "wheel", x: c.x, y: c.y, delta_y: e.deltaY });
}, { passive: false });
canvas.addEventListener("dblclick", function (e) {
  var c = coords(e);
  push({ kind: "dblclick", x: c.x, y: c.y });
});
window.addEventListener("resize", function () {
  push({ kind: "resize", width: canvas.clientWidth });
});

// ── conversation ──

el("send").addEventListener("click", function () {
  var text = el("prompt").value.trim();
  if (!text || !session) return;
  var path = hasPipeline ? "/refine" : "/describe";
  var body = hasPipeline ? { request: text } : { description: text };
  setStatus("Thinking...");
  el("send").disabled = true;
  api("/api/sessions/" + session + path, body).then(function (state) {
    el("prompt").value = "";
    setStatus("");
    applyState(state);
    push({ kind: "resize", width: canvas.clientWidth });
  }).catch(function (err) { setStatus(err.message); })
    .finally(function () { el("send").disabled = false; });
});

el("accept").addEventListener("click", function () {
  api("/api/sessions/" + session + "/accept", {}).then(function (state) {
    setStatus("Saved pipeline " + state.pipeline.id);
    applyState(state);
  }).catch(function (err) { setStatus(err.message); });
});

el("save").addEventListener("click", function () {
  api("/api/sessions/" + session + "/positions/save", {}).then(function (res) {
    setStatus("Saved " + res.saved + " positions");
  }).catch(function (err) { setStatus(err.message); });
});

el("theme").addEventListener("click", function () {
  var next = themeName === "dark" ? "light" : "dark";
  api("/api/sessions/" + session + "/theme", { theme: next }).then(applyState)
    .catch(function (err) { setStatus(err.message); });
});

el("export").addEventListener("click", function () {
  if (pipelineId) window.location = "/api/pipelines/" + pipelineId + "/export";
});

// ── simulated runs ──

var pollTimer = null;
function poll() {
  api("/api/sessions/" + session + "/view").then(function (res) {
    canvas.innerHTML = res.svg;
    canvas.style.cursor = res.cursor;
    if (!res.running) {
      clearInterval(pollTimer);
      pollTimer = null;
      el("run").disabled = !hasPipeline;
      el("stop").disabled = true;
      setStatus("");
    }
  }).catch(function (err) { setStatus(err.message); });
}

el("run").addEventListener("click", function () {
  api("/api/sessions/" + session + "/run", {}).then(function () {
    el("run").disabled = true;
    el("stop").disabled = false;
    setStatus("Running...");
    pollTimer = setInterval(poll, 250);
  }).catch(function (err) { setStatus(err.message); });
});

el("stop").addEventListener("click", function () {
  api("/api/sessions/" + session + "/run/stop", {}).catch(function (err) { setStatus(err.message); });
});

// ── stored pipelines ──

function refreshStored() {
  api("/api/pipelines").then(function (res) {
    var sel = el("stored");
    sel.innerHTML = "";
    (res.pipelines || []).forEach(function (p) {
      var opt = document.createElement("option");
      opt.value = p.id;
      opt.textContent = p.name + " (rev " + p.revision + ")";
      sel.appendChild(opt);
    });
  }).catch(function () {});
}

el("open").addEventListener("click", function () {
  var id = el("stored").value;
  if (!id) return;
  api("/api/sessions", { pipeline_id: id }).then(function (state) {
    applyState(state);
    push({ kind: "resize", width: canvas.clientWidth });
  }).catch(function (err) { setStatus(err.message); });
});

// ── boot ──

api("/api/sessions", {}).then(function (state) {
  applyState(state);
  push({ kind: "resize", width: canvas.clientWidth });
  refreshStored();
}).catch(function (err) { setStatus(err.message); });
</script>
</body>
</html>
`
