package journal

import (
	"io"
	"strings"
	"text/template"
)

var orgFuncs = template.FuncMap{
	"join": strings.Join,
}

var orgTemplate = template.Must(template.New("run").Funcs(orgFuncs).Parse(OrgTemplate))

// WriteOrg renders r as an org-mode heading for a research notebook.
func WriteOrg(w io.Writer, r Run) error {
	return orgTemplate.Execute(w, r)
}

const OrgTemplate = `* BACKTEST: {{.Strategy}} {{join .Symbols " "}}
:PROPERTIES:
:RUN_ID:      {{.RunID}}
:STRATEGY:    {{.Strategy}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_BAL:   {{printf "%.2f" .InitialBudget}}
:END_CASH:    {{printf "%.2f" .FinalCash}}
:END_EQUITY:  {{printf "%.2f" .FinalEquity}}
:NET_PL:      {{printf "%.2f" .ProfitLoss}}
:ROI_PCT:     {{printf "%.2f" .ROI}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:WIN_RATE:    {{printf "%.2f" .WinRate}}
:CREATED:     [{{.Created.Format "2006-01-02 Mon 15:04"}}]
:END:

** Performance Summary
- Net P/L:   *{{printf "%.2f" .ProfitLoss}}*
- ROI:       *{{printf "%.2f" .ROI}}%*
- Win Rate:  *{{printf "%.2f" .WinRate}}%*
- Fills:     {{.Fills}}
`
