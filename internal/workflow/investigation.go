package workflow

import (
	"context"
	"fmt"
	"strconv"

	"fraud-workbench/internal/analytics"
	"fraud-workbench/internal/audit"
	"fraud-workbench/internal/dispute"
	wberrors "fraud-workbench/internal/errors"
	"fraud-workbench/internal/export"
)

// CreateDispute files a dispute against the alert behind the selection.
func (w *Workbench) CreateDispute(ctx context.Context, opts dispute.CreateOptions) (dispute.Dispute, error) {
	const op = "workflow.CreateDispute"
	alert, ok := w.machine.CurrentAlert()
	if !ok {
		return dispute.Dispute{}, w.fail(wberrors.New(op, wberrors.KindNoSelection, "select an alert first"))
	}
	a, err := w.machine.RequireAnchor(op)
	if err != nil {
		return dispute.Dispute{}, w.fail(err)
	}

	d, err := w.disputes.Create(ctx, alert, opts)
	if err != nil {
		return dispute.Dispute{}, w.fail(err)
	}
	w.recorder.Emit(ctx, audit.TypeDisputeCreated, a, map[string]string{
		"dispute_id": strconv.Itoa(d.ID),
		"alert_id":   strconv.FormatInt(d.AlertID, 10),
	})
	w.setStatus(fmt.Sprintf("Dispute #%d created (%s).", d.ID, d.Status))
	return d, nil
}

// HoldDispute places the active dispute on hold.
func (w *Workbench) HoldDispute(ctx context.Context) (dispute.Dispute, error) {
	d, err := w.disputes.Hold(ctx)
	if err != nil {
		return dispute.Dispute{}, w.fail(err)
	}
	w.recorder.Emit(ctx, audit.TypeDisputeHeld, w.machine.Snapshot().Anchor, map[string]string{
		"dispute_id": strconv.Itoa(d.ID),
	})
	w.setStatus(fmt.Sprintf("Dispute #%d on hold.", d.ID))
	return d, nil
}

// ReleaseDispute releases the active dispute with decision (RELEASE when
// empty).
func (w *Workbench) ReleaseDispute(ctx context.Context, decision, notes string) (dispute.Dispute, error) {
	d, err := w.disputes.Release(ctx, decision, notes)
	if err != nil {
		return dispute.Dispute{}, w.fail(err)
	}
	w.recorder.Emit(ctx, audit.TypeDisputeReleased, w.machine.Snapshot().Anchor, map[string]string{
		"dispute_id": strconv.Itoa(d.ID),
		"status":     d.Status,
	})
	w.setStatus(fmt.Sprintf("Dispute #%d %s.", d.ID, d.Status))
	return d, nil
}

// Dispute returns the active dispute and its lifecycle state.
func (w *Workbench) Dispute() (dispute.Dispute, dispute.State, bool) {
	return w.disputes.Active()
}

// DisputeSummary reads the AFASA report summary.
func (w *Workbench) DisputeSummary(ctx context.Context) (dispute.Summary, error) {
	s, err := w.disputes.FetchSummary(ctx)
	if err != nil {
		return s, w.fail(err)
	}
	return s, nil
}

// Export uploads the case bundle of the current anchor and returns its
// location.
func (w *Workbench) Export(ctx context.Context) (string, error) {
	const op = "workflow.Export"
	if w.exporter == nil {
		return "", w.fail(wberrors.Validation(op, "case export is not configured"))
	}
	a, err := w.machine.RequireAnchor(op)
	if err != nil {
		return "", w.fail(err)
	}

	b := export.NewBundle(a, w.store, w.actor, w.now())
	if alert, ok := w.machine.CurrentAlert(); ok {
		b.Alert = &alert
	}
	if d, _, ok := w.disputes.Active(); ok {
		b.Dispute = &d
	}
	if g := w.Graph(); g != nil {
		b.GraphNodes = g.CountByType()
	}

	loc, err := w.exporter.Export(ctx, b)
	if err != nil {
		return "", w.fail(wberrors.Wrap(op, wberrors.KindPersistence, err))
	}
	w.recorder.Emit(ctx, audit.TypeCaseExported, a, map[string]string{
		"bundle_id": b.ID,
		"location":  loc,
	})
	w.setStatus("Case exported to " + loc + ".")
	return loc, nil
}

// Dashboard reads the analytics dashboard for f.
func (w *Workbench) Dashboard(ctx context.Context, f analytics.Filter) (analytics.Dashboard, error) {
	const op = "workflow.Dashboard"
	if w.analytics == nil {
		return analytics.Dashboard{}, w.fail(wberrors.Validation(op, "analytics is not configured"))
	}
	d, cached, err := w.analytics.Dashboard(ctx, f)
	if err != nil {
		return d, w.fail(err)
	}
	src := "live"
	if cached {
		src = "cached"
	}
	w.setStatus(fmt.Sprintf("Dashboard: %d alerts, %d open cases (%s).", d.KPIs.AlertsTotal, d.KPIs.CasesOpen, src))
	return d, nil
}
