package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"fraud-workbench/internal/alerts"
	"fraud-workbench/internal/analytics"
	"fraud-workbench/internal/dispute"
	wberrors "fraud-workbench/internal/errors"
	"fraud-workbench/internal/rules"
	"fraud-workbench/internal/workflow"
)

// table writes tab separated rows aligned in columns.
func (c *cli) table(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	tw.Flush()
}

func newFlagSet(c *cli, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.SetOutput(c.errOut)
	return fs
}

// selectByLookup resolves query and selects it under rule. Case actions
// under the search-only policy need rule ALL.
func selectByLookup(ctx context.Context, wb *workflow.Workbench, rule, query string) error {
	if rule != "" {
		if _, err := wb.SetRule(rule); err != nil {
			return err
		}
	}
	_, err := wb.Lookup(ctx, query)
	return err
}

func alertAnchor(a alerts.Alert) string {
	switch {
	case a.AccountID != "":
		return a.AccountID
	case a.DeviceID != "":
		return a.DeviceID
	default:
		return a.AnchorID
	}
}

func (c *cli) runAlerts(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "alerts")
	sf := addSessionFlags(fs)
	rule := fs.String("rule", "", "Rule key (R1, R2, R3, R7, R8, R9, R10 or ALL); defaults to the configured rule")
	family := fs.String("family", "", "Load an alert family such as FAF instead of a rule")
	params := paramFlag{}
	fs.Var(params, "p", "Rule parameter key=value (repeatable)")
	fs.Parse(args)

	a, closer, err := c.open(ctx, sf)
	if err != nil {
		return err
	}
	defer closer.Close()
	wb := a.Workbench

	if *family != "" {
		_, err = wb.LoadFamily(ctx, *family)
	} else {
		if *rule != "" {
			if _, err := wb.SetRule(*rule); err != nil {
				return err
			}
		}
		_, err = wb.LoadAlerts(ctx, rules.Params(params))
	}
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(wb.Alerts()))
	for _, al := range wb.Alerts() {
		rows = append(rows, []string{string(al.ID), al.RuleKey, al.Severity, alertAnchor(al), al.Summary})
	}
	c.table([]string{"ID", "RULE", "SEVERITY", "ANCHOR", "SUMMARY"}, rows)
	fmt.Fprintln(c.out, wb.Status())
	fmt.Fprintln(c.out, wb.Selection().Label)
	return nil
}

func (c *cli) runLookup(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "lookup")
	sf := addSessionFlags(fs)
	fs.Parse(args)

	query := strings.Join(fs.Args(), " ")
	a, closer, err := c.open(ctx, sf)
	if err != nil {
		return err
	}
	defer closer.Close()

	snap, err := a.Workbench.Lookup(ctx, query)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, a.Workbench.Status())
	fmt.Fprintln(c.out, snap.Label)
	return nil
}

func (c *cli) runGraph(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "graph")
	sf := addSessionFlags(fs)
	rule := fs.String("rule", "", "Rule to select the anchor under")
	fs.Parse(args)

	a, closer, err := c.open(ctx, sf)
	if err != nil {
		return err
	}
	defer closer.Close()
	wb := a.Workbench

	if err := selectByLookup(ctx, wb, *rule, strings.Join(fs.Args(), " ")); err != nil {
		return err
	}
	g, err := wb.LoadGraph(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		var marks []string
		if n.IsSubject {
			marks = append(marks, "subject")
		}
		if n.IsFlagged {
			marks = append(marks, "flagged")
		}
		rows = append(rows, []string{n.ID, n.Type, n.DisplayLabel(), strings.Join(marks, ",")})
	}
	c.table([]string{"NODE", "TYPE", "LABEL", "MARKS"}, rows)

	edges := make([][]string, 0, len(g.Edges))
	for _, e := range g.Edges {
		edges = append(edges, []string{e.Source, e.Type, e.Target})
	}
	fmt.Fprintln(c.out)
	c.table([]string{"SOURCE", "REL", "TARGET"}, edges)
	fmt.Fprintln(c.out, wb.Status())
	return nil
}

func (c *cli) runNote(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "note")
	sf := addSessionFlags(fs)
	rule := fs.String("rule", rules.All, "Rule to select the anchor under")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return wberrors.Validation("note", "usage: workbench-cli note [flags] <account-or-identifier> <text>")
	}
	a, closer, err := c.open(ctx, sf)
	if err != nil {
		return err
	}
	defer closer.Close()
	wb := a.Workbench

	if err := selectByLookup(ctx, wb, *rule, fs.Arg(0)); err != nil {
		return err
	}
	if _, err := wb.AddNote(ctx, strings.Join(fs.Args()[1:], " ")); err != nil {
		return err
	}
	fmt.Fprintln(c.out, wb.Status())
	return nil
}

func (c *cli) runAction(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "action")
	sf := addSessionFlags(fs)
	rule := fs.String("rule", rules.All, "Rule to select the anchor under")
	fs.Parse(args)

	if fs.NArg() != 2 {
		return wberrors.Validation("action", "usage: workbench-cli action [flags] <account-or-identifier> <BLOCK|SAFE|ESCALATE>")
	}
	a, closer, err := c.open(ctx, sf)
	if err != nil {
		return err
	}
	defer closer.Close()
	wb := a.Workbench

	if err := selectByLookup(ctx, wb, *rule, fs.Arg(0)); err != nil {
		return err
	}
	act, err := wb.RecordAction(ctx, fs.Arg(1))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, wb.Status())
	fmt.Fprintf(c.out, "Case status: %s\n", act.Status)
	return nil
}

func (c *cli) runFlag(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "flag")
	sf := addSessionFlags(fs)
	rule := fs.String("rule", rules.All, "Rule to select the anchor under")
	fs.Parse(args)

	a, closer, err := c.open(ctx, sf)
	if err != nil {
		return err
	}
	defer closer.Close()
	wb := a.Workbench

	if err := selectByLookup(ctx, wb, *rule, strings.Join(fs.Args(), " ")); err != nil {
		return err
	}
	if err := wb.Flag(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, wb.Status())
	return nil
}

func (c *cli) runRefresh(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "refresh")
	sf := addSessionFlags(fs)
	ruleID := fs.String("rule-id", "", "Restrict regeneration to one detector rule id")
	fs.Parse(args)

	a, closer, err := c.open(ctx, sf)
	if err != nil {
		return err
	}
	defer closer.Close()

	if _, err := a.Workbench.Refresh(ctx, *ruleID); err != nil {
		return err
	}
	fmt.Fprintln(c.out, a.Workbench.Status())
	return nil
}

func (c *cli) runDispute(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return wberrors.Validation("dispute", "usage: workbench-cli dispute <create|summary> [flags]")
	}
	switch args[0] {
	case "create":
		return c.runDisputeCreate(ctx, args[1:])
	case "summary":
		return c.runDisputeSummary(ctx, args[1:])
	default:
		return wberrors.Validation("dispute", "unknown dispute command "+args[0])
	}
}

func (c *cli) runDisputeCreate(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "dispute create")
	sf := addSessionFlags(fs)
	family := fs.String("family", "FAF", "Alert family to find the alert in")
	rule := fs.String("rule", "", "Rule to find the alert in instead of a family")
	alertID := fs.String("alert", "", "Alert id (required)")
	txID := fs.String("tx", "", "Original transaction id; defaults to the alert's")
	reason := fs.String("reason", "", "Reason category")
	suspicion := fs.String("suspicion", "", "Suspicion type")
	hold := fs.Bool("hold", false, "Place the dispute on hold after creating it")
	release := fs.String("release", "", "Release with decision RELEASE, RESTITUTION or ESCALATE")
	notes := fs.String("notes", "", "Release notes")
	fs.Parse(args)

	if *alertID == "" {
		return wberrors.Validation("dispute.create", "-alert is required")
	}
	a, closer, err := c.open(ctx, sf)
	if err != nil {
		return err
	}
	defer closer.Close()
	wb := a.Workbench

	if *rule != "" {
		if _, err := wb.SetRule(*rule); err != nil {
			return err
		}
		_, err = wb.LoadAlerts(ctx, nil)
	} else {
		_, err = wb.LoadFamily(ctx, *family)
	}
	if err != nil {
		return err
	}

	var found *alerts.Alert
	for _, al := range wb.Alerts() {
		if string(al.ID) == *alertID {
			found = &al
			break
		}
	}
	if found == nil {
		return wberrors.New("dispute.create", wberrors.KindNotFound, "alert "+*alertID+" is not in the loaded alerts")
	}
	wb.SelectAlert(ctx, *found)

	d, err := wb.CreateDispute(ctx, dispute.CreateOptions{
		TxID:           *txID,
		ReasonCategory: *reason,
		SuspicionType:  *suspicion,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, wb.Status())

	if *hold {
		if d, err = wb.HoldDispute(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, wb.Status())
	}
	if *release != "" {
		if d, err = wb.ReleaseDispute(ctx, *release, *notes); err != nil {
			return err
		}
		fmt.Fprintln(c.out, wb.Status())
	}
	fmt.Fprintf(c.out, "Dispute #%d: %s\n", d.ID, d.Status)
	return nil
}

func (c *cli) runDisputeSummary(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "dispute summary")
	sf := addSessionFlags(fs)
	fs.Parse(args)

	a, closer, err := c.open(ctx, sf)
	if err != nil {
		return err
	}
	defer closer.Close()

	s, err := a.Workbench.DisputeSummary(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Total disputes: %d\n\n", s.Total)
	c.table([]string{"STATUS", "COUNT"}, countRows(s.ByStatus))
	fmt.Fprintln(c.out)
	c.table([]string{"SUSPICION", "COUNT"}, countRows(s.BySuspicion))
	return nil
}

func countRows(m map[string]int) [][]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, strconv.Itoa(m[k])})
	}
	return rows
}

func (c *cli) runAnalytics(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "analytics")
	sf := addSessionFlags(fs)
	timeRange := fs.String("range", "24h", "Time range: 24h, 7d or 30d")
	severity := fs.String("severity", "", "Only count alerts of this severity")
	ruleID := fs.String("rule-id", "", "Only count alerts of this rule id")
	fs.Parse(args)

	a, closer, err := c.open(ctx, sf)
	if err != nil {
		return err
	}
	defer closer.Close()

	d, err := a.Workbench.Dashboard(ctx, analytics.Filter{
		TimeRange: *timeRange,
		Severity:  *severity,
		RuleID:    *ruleID,
	})
	if err != nil {
		return err
	}

	c.table([]string{"ALERTS", "OPEN", "OPEN CASES", "FLAGGED"}, [][]string{{
		strconv.Itoa(d.KPIs.AlertsTotal),
		strconv.Itoa(d.KPIs.AlertsOpen),
		strconv.Itoa(d.KPIs.CasesOpen),
		strconv.Itoa(d.KPIs.SuspectsFlagged),
	}})

	if len(d.Tables.TopSuspects) > 0 {
		rows := make([][]string, 0, len(d.Tables.TopSuspects))
		for _, sp := range d.Tables.TopSuspects {
			rows = append(rows, []string{
				string(sp.ID),
				strconv.FormatFloat(sp.RiskScore, 'f', 2, 64),
				strconv.Itoa(sp.Flags),
				strconv.Itoa(sp.Degree),
				sp.LastSeen,
			})
		}
		fmt.Fprintln(c.out)
		c.table([]string{"SUSPECT", "RISK", "FLAGS", "DEGREE", "LAST SEEN"}, rows)
	}
	fmt.Fprintln(c.out, a.Workbench.Status())
	return nil
}

func (c *cli) runRules(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "rules")
	sf := addSessionFlags(fs)
	fs.Parse(args)

	a, closer, err := c.open(ctx, sf)
	if err != nil {
		return err
	}
	defer closer.Close()

	defs := a.Workbench.Rules(ctx)
	rows := make([][]string, 0, len(defs))
	for _, d := range defs {
		rows = append(rows, []string{d.Key, strconv.Itoa(d.ID), d.Name, d.Severity, strconv.FormatBool(d.Enabled)})
	}
	c.table([]string{"KEY", "ID", "NAME", "SEVERITY", "ENABLED"}, rows)
	return nil
}

func (c *cli) runExport(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "export")
	sf := addSessionFlags(fs)
	rule := fs.String("rule", "", "Rule to select the anchor under")
	fs.Parse(args)

	a, closer, err := c.open(ctx, sf)
	if err != nil {
		return err
	}
	defer closer.Close()
	wb := a.Workbench

	if err := selectByLookup(ctx, wb, *rule, strings.Join(fs.Args(), " ")); err != nil {
		return err
	}
	// The bundle carries graph counts when a neighborhood is available.
	if _, err := wb.LoadGraph(ctx); err != nil && !wberrors.Is(err, wberrors.ErrGraphNotFound) {
		return err
	}
	location, err := wb.Export(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, location)
	return nil
}
