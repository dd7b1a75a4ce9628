package routes

import (
	"html/template"
	"net/http"

	"interpserve/logger"
	"interpserve/settings"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>SVFI Frame Interpolation</title>
<style>
body { font-family: sans-serif; max-width: 1100px; margin: 2em auto; }
.row { display: flex; gap: 2em; }
.col { flex: 1; }
label { display: block; margin-top: 1em; }
textarea { width: 100%; }
video { width: 100%; background: #111; }
</style>
</head>
<body>
<h1>SVFI Video Frame Interpolation</h1>
<p>Upload a video, set the parameters, then press "Start processing".</p>
<div class="row">
<div class="col">
<form method="post" action="/process" enctype="multipart/form-data">
<label>Input video <input type="file" name="video" accept="video/*"></label>
<h3>Interpolation settings</h3>
<label>Target frame rate
<input type="range" name="target_fps" min="24" max="120" step="1" value="{{.Params.TargetFPS}}" oninput="this.nextElementSibling.value=this.value"><output>{{.Params.TargetFPS}}</output></label>
<label><input type="hidden" name="use_fp16" value="false"><input type="checkbox" name="use_fp16" value="true"{{if .Params.UseFP16}} checked{{end}}> Half precision (saves GPU memory)</label>
<label>Flow scale (smaller uses less GPU memory)
<input type="range" name="flow_scale" min="0.1" max="1.0" step="0.1" value="{{.Params.FlowScale}}" oninput="this.nextElementSibling.value=this.value"><output>{{.Params.FlowScale}}</output></label>
<label>Scene-cut detection threshold
<input type="range" name="scdet_threshold" min="1" max="30" step="1" value="{{.Params.SceneCutThreshold}}" oninput="this.nextElementSibling.value=this.value"><output>{{.Params.SceneCutThreshold}}</output></label>
<label>CRF (lower is higher quality)
<input type="range" name="crf" min="0" max="51" step="1" value="{{.Params.CRF}}" oninput="this.nextElementSibling.value=this.value"><output>{{.Params.CRF}}</output></label>
<p><button type="submit">Start processing</button></p>
</form>
</div>
<div class="col">
<label>Output video</label>
{{if .VideoURL}}<video controls src="{{.VideoURL}}"></video>{{else}}<video controls></video>{{end}}
<label>Processing info
<textarea rows="4" readonly>{{.Message}}</textarea></label>
</div>
</div>
<h2>Usage</h2>
<ol>
<li>Upload a video file (most common formats are supported).</li>
<li>Adjust the parameters:
<ul>
<li><b>Target frame rate</b>: frame rate of the output, usually an integer multiple of the source rate.</li>
<li><b>Half precision</b>: saves GPU memory, may lower quality slightly.</li>
<li><b>Flow scale</b>: precision of the optical flow; smaller values save GPU memory.</li>
<li><b>Scene-cut detection threshold</b>: sensitivity of scene-cut detection; smaller is more sensitive.</li>
<li><b>CRF</b>: output quality; smaller means higher quality and larger files.</li>
</ul></li>
<li>Press "Start processing".</li>
<li>Download the result once processing finishes.</li>
</ol>
<p><b>Note</b>: large videos can take a long time to process.</p>
</body>
</html>
`))

type pageData struct {
	Params   settings.Overrides
	VideoURL string
	Message  string
}

func renderPage(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		logger.Errorf("Failed to render page: %v", err)
	}
}

// FormHandler renders the empty form.
func (s *Server) FormHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	renderPage(w, http.StatusOK, pageData{Params: settings.DefaultOverrides()})
}
