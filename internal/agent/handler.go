package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/leadsync/internal/protocol"
	"github.com/desertthunder/leadsync/internal/shared"
)

// Handle serves the collection-control requests routed to the agent.
func (a *Agent) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	cmd, err := req.Command()
	if err != nil {
		return protocol.Fail(err)
	}

	switch c := cmd.(type) {
	case protocol.Collect:
		// an explicit version switches namespaces first; an absent one keeps the current namespace
		if req.Version != "" && c.Version != a.Version() {
			if err := a.SetVersion(ctx, c.Version); err != nil {
				a.logger.Warn("reload after version switch failed", "error", err)
			}
		}
		if _, err := a.Collect(ctx); err != nil {
			resp := protocol.Fail(err)
			if errors.Is(err, shared.ErrAlreadyCollecting) {
				resp.Status = protocol.StatusCollecting
			}
			return resp
		}
		return protocol.UsersResponse(a.Snapshot().SavedUserList)

	case protocol.Stop:
		return protocol.StatusResponse(a.Stop())

	case protocol.SetVersion:
		if err := a.SetVersion(ctx, c.Version); err != nil {
			a.logger.Warn("reload after version switch failed", "error", err)
		}
		return protocol.OK()

	case protocol.GetData:
		if err := a.Load(ctx); err != nil {
			a.logger.Warn("returning working snapshot, dataset may be stale", "error", err)
		}
		return protocol.UsersResponse(a.Snapshot().SavedUserList)

	case protocol.UpdateData:
		a.Replace(c.Snapshot)
		return protocol.OK()

	case protocol.ClearData:
		a.Reset(c.Version)
		return protocol.StatusResponse(protocol.StatusSuccess)

	case protocol.Download:
		id, err := a.ExportTXT(ctx)
		if err != nil {
			return protocol.Fail(err)
		}
		return protocol.Response{Success: true, Status: protocol.StatusSuccess, DownloadID: id}

	case protocol.Ping:
		return protocol.OK()

	default:
		return protocol.Fail(fmt.Errorf("%w: %s is not served by the agent", shared.ErrUnknownAction, cmd.Action()))
	}
}
