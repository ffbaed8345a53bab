package templates

const defaultChangePrompt = `A web page I monitor ({{.URL}}) has changed. Below is a line diff of its text: lines starting with "- " were removed and lines starting with "+ " were added. After the diff comes the full text of the page, unchanged lines included, for context.
Describe what changed and judge how much the change matters to someone following this page. Cosmetic churn such as dates, counters, ads or session tokens deserves a low score.`

const defaultPagePrompt = `Please provide a summary of the content of the web page at {{.URL}}, including all relevant sections, with specific details.`

const defaultNamePrompt = `I would like to create a short alphanumeric name (using - between words) for the web page at {{.URL}}. Prefer simplicity and directness. The hostname is the most important hint about what the page is; the rest of the URL and the content can refine it. For example, for http://nytimes.com the name would be 'new-york-times'. Keep it to about four words at most.`

const defaultChangeEmail = `<html><body>
<h2>{{.JobName}}</h2>
<p><a href="{{.URL}}">{{.URL}}</a></p>
<p><b>{{.BriefSummary}}</b> (score {{.Score}}/10)</p>
<div>{{.SummaryHTML}}</div>
<h3>Compared snapshots</h3>
<table>
<tr><th></th><th>Snapshot</th><th>Captured</th></tr>
<tr><td>Baseline</td><td>{{.Baseline.Filename}}</td><td>{{.Baseline.CapturedAt.Format "2006-01-02 15:04:05"}}</td></tr>
<tr><td>Current</td><td>{{.Current.Filename}}</td><td>{{.Current.CapturedAt.Format "2006-01-02 15:04:05"}}</td></tr>
</table>
<p>{{.Stats.Added}} lines added, {{.Stats.Removed}} removed.</p>
<h3>Raw diff</h3>
<pre>{{.Diff}}</pre>
</body></html>`

const defaultPageEmail = `<html><body>
<h2>New job added: {{.JobName}}</h2>
<p><a href="{{.URL}}">{{.URL}}</a></p>
<p><b>{{.BriefSummary}}</b></p>
<div>{{.SummaryHTML}}</div>
<p>First snapshot: {{.Current.Filename}}</p>
</body></html>`

const defaultFailureEmail = `<html><body>
<h2>gptdiff failed</h2>
<p>Command: <code>{{.Command}}</code></p>
<p>Time: {{.Time.Format "2006-01-02 15:04:05"}}</p>
<pre>{{.Error}}</pre>
</body></html>`

const defaultBackupEmail = `<html><body>
<p>Backup of the job registry as of {{.Time.Format "2006/01/02"}}:</p>
<pre>{{.Registry}}</pre>
</body></html>`
