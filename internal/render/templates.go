package render

const tmplStateOptions = `{{define "state-options"}}
{{- if .States -}}
<option value="">{{.Placeholder}}</option>
{{- range .States}}<option value="{{.}}">{{.}}</option>{{end -}}
{{- else -}}
<option value="">{{.Empty}}</option>
{{- end -}}
{{end}}`

const tmplMessage = `{{define "message"}}<div class="food-pantry-message food-pantry-{{.Kind}}"{{if .Role}} role="{{.Role}}"{{end}}><p>{{.Text}}</p></div>{{end}}`

const tmplError = `{{define "error"}}<div class="food-pantry-message food-pantry-error" role="alert"><p class="food-pantry-error-title">Unable to load pantry data.</p><p class="food-pantry-error-detail">{{.}}</p></div>{{end}}`

const tmplList = `{{define "list"}}<div class="food-pantry-list" data-state="{{.StateCode}}">
<h3 class="food-pantry-count">{{.Shown}} of {{.Total}} shown</h3>
<ul class="food-pantry-items">
{{- range .Items}}
<li class="food-pantry-item" data-id="{{.ID}}" tabindex="0" role="button"><span class="food-pantry-item-name">{{.Name}}</span> <span class="food-pantry-item-location">{{.Location}}</span></li>
{{- end}}
</ul>
</div>{{end}}`

const tmplDetail = `{{define "detail"}}<div class="food-pantry-detail" data-id="{{.ID}}">
<button type="button" class="food-pantry-back" data-action="back">&larr; Back to list</button>
<div class="food-pantry-detail-header"><h3 class="food-pantry-detail-title">{{.Title}}</h3> <span class="food-pantry-id-badge">{{.ID}}</span></div>
{{- range .Sections}}
<section class="food-pantry-section food-pantry-section-{{.Key}}">
<h4>{{.Title}}</h4>
<dl>
{{- range .Rows}}
<dt>{{.Label}}</dt><dd class="food-pantry-field-{{.Key}}">{{.Value}}</dd>
{{- end}}
</dl>
</section>
{{- end}}
<p class="food-pantry-scraped-at">{{.ScrapedAt}}</p>
</div>{{end}}`
