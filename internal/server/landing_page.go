package server

import (
	"html/template"

	"github.com/mbd888/tenantdesk/internal/plan"
)

const landingName = "landing"

type landingData struct {
	BaseDomain string
	Plans      []*plan.Plan
}

var landingTemplate = template.Must(template.New(landingName).Funcs(template.FuncMap{
	"limit": plan.Limit,
}).Parse(landingHTML))

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Tenantdesk</title>
    <style>
        * { box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; margin: 0; background: #f6f7f9; color: #1d2330; }
        header { padding: 48px 24px 24px; text-align: center; }
        header h1 { margin: 0 0 8px; font-size: 32px; }
        header p { margin: 0; color: #5a6275; }
        .plans { display: flex; flex-wrap: wrap; gap: 16px; justify-content: center; padding: 24px; }
        .plan { background: #fff; border: 1px solid #e2e5eb; border-radius: 8px; padding: 20px; width: 240px; }
        .plan h2 { margin: 0 0 4px; font-size: 20px; }
        .price { font-size: 24px; font-weight: 600; margin: 8px 0 16px; }
        .plan ul { list-style: none; margin: 0; padding: 0; font-size: 14px; line-height: 1.8; color: #3b4254; }
        .empty { text-align: center; color: #5a6275; }
        footer { text-align: center; padding: 24px; font-size: 13px; color: #8a91a3; }
    </style>
</head>
<body>
    <header>
        <h1>Tenantdesk</h1>
        <p>Workspaces live at <code>&lt;name&gt;.{{.BaseDomain}}</code></p>
    </header>
    {{if .Plans}}
    <section class="plans">
        {{range .Plans}}
        <div class="plan">
            <h2>{{.DisplayName}}</h2>
            <div class="price">NPR {{.PriceNPR}}</div>
            <ul>
                <li>{{.MaxUsers}} users</li>
                <li>{{limit .MaxLeadForms}} lead forms</li>
                <li>{{.StorageGBPerUser}} GB storage per user</li>
                <li>{{limit .BulkEmailLimit}} bulk emails</li>
                <li>Bulk SMS: {{if .BulkSMS}}yes{{else}}no{{end}}</li>
            </ul>
        </div>
        {{end}}
    </section>
    {{else}}
    <p class="empty">No plans are available yet.</p>
    {{end}}
    <footer>Tenantdesk</footer>
</body>
</html>
`
