package broker

import (
	"context"
	"fmt"

	"github.com/desertthunder/leadsync/internal/protocol"
	"github.com/desertthunder/leadsync/internal/services"
	"github.com/desertthunder/leadsync/internal/shared"
)

// Handle serves one request. It never panics past the boundary and never returns an error: failures are
// reported in the response.
func (b *Broker) Handle(ctx context.Context, req protocol.Request) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("request handler panicked", "action", req.Action, "panic", r)
			resp = protocol.Fail(fmt.Errorf("internal error handling %s", req.Action))
		}
		status := "ok"
		if !resp.Success {
			status = "error"
		}
		b.metrics.Requests.WithLabelValues(string(req.Action), status).Inc()
	}()

	cmd, err := req.Command()
	if err != nil {
		return protocol.Fail(err)
	}

	switch c := cmd.(type) {
	case protocol.SaveData:
		if err := b.SaveData(ctx, c.Version, c.Snapshot); err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK()

	case protocol.GetSavedData:
		snap, err := b.GetSavedData(ctx, c.Version)
		if err != nil {
			return protocol.Fail(err)
		}
		return protocol.SnapshotResponse(snap)

	case protocol.ClearData:
		if err := b.ClearData(ctx, c.Version); err != nil {
			return protocol.Fail(err)
		}
		return protocol.OK()

	case protocol.Download:
		id, err := b.download(ctx, services.DownloadRequest{URL: c.URL, Filename: c.Filename})
		if err != nil {
			b.logger.Error("download failed", "filename", c.Filename, "error", err)
			return protocol.Fail(err)
		}
		b.logger.Info("download stored", "filename", c.Filename, "id", id)
		return protocol.Response{Success: true, DownloadID: id}

	case protocol.UpdateProgress:
		b.publish(Progress{Version: c.Version, Percent: c.Progress})
		return protocol.OK()

	case protocol.Ping:
		return protocol.OK()

	default:
		return protocol.Fail(fmt.Errorf("%w: %s is not served by the broker", shared.ErrUnknownAction, cmd.Action()))
	}
}
