package main

import (
	"context"
	"log/slog"

	"github.com/nexcrm/approvalflow/internal/engine"
	"github.com/nexcrm/approvalflow/pkg/approvalflow"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
)

func main() {

	//you may do your own logger setup here or use this default one with slog
	approvalflow.SetupLogger()

	approvalflow.CallbackRegistry = map[string]engine.EntityCallback{
		"INVOICE": notifyInvoiceDecided,
	}
	if err := approvalflow.Start(nil); err != nil {
		slog.Error("Engine exited with error", "error", err)
	}
}

// notifyInvoiceDecided is a sample callback. Replace it with whatever your
// ERP needs to do once an invoice approval reaches a terminal status.
func notifyInvoiceDecided(ctx context.Context, rec *domain.ApprovalRecord) error {
	slog.Info("Invoice approval decided", "entityId", rec.EntityID, "status", rec.Status)
	return nil
}
