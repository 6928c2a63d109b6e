package app

import (
	"log/slog"

	"github.com/flemzord/toolgate/internal/approval"
	"github.com/flemzord/toolgate/internal/config"
	"github.com/flemzord/toolgate/internal/gateway"
	"github.com/flemzord/toolgate/internal/metrics"
	"github.com/flemzord/toolgate/internal/provider"
)

// buildApprover selects the approver for mode. The remote approver is
// returned separately so the gateway can serve it. With ModelReview set
// and a provider available, the model is asked first and the selected
// approver decides whatever the model does not clear.
func buildApprover(
	mode string,
	cfg config.ApprovalConfig,
	completer provider.Completer,
	collector *metrics.Collector,
	logger *slog.Logger,
) (approval.Approver, *gateway.RemoteApprover) {
	var (
		base   approval.Approver
		remote *gateway.RemoteApprover
	)
	switch mode {
	case config.ApprovalAuto:
		base = approval.Auto{}
	case config.ApprovalDeny:
		base = approval.Deny{}
	case config.ApprovalRemote:
		remote = gateway.NewRemoteApprover(gateway.WithPendingGauge(collector.SetPendingApprovals))
		base = remote
	default:
		base = approval.NewTerminal(approval.TerminalConfig{Accessible: cfg.Accessible})
	}

	if cfg.ModelReview && completer != nil && asksHuman(mode) {
		logger.Info("approval: model review enabled")
		return approval.Chain{approval.NewModelReview(completer, logger), base}, remote
	}
	return base, remote
}

func asksHuman(mode string) bool {
	return mode == config.ApprovalTerminal || mode == config.ApprovalRemote || mode == ""
}
