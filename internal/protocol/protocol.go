package protocol

import (
	"errors"
	"fmt"

	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/shared"
)

// Action is the discriminator of a [Request].
type Action string

const (
	ActionSaveData       Action = "saveData"
	ActionGetSavedData   Action = "getSavedData"
	ActionClearData      Action = "clearData"
	ActionDownloadTXT    Action = "downloadTXT"
	ActionExportTXT      Action = "exportTXT"
	ActionUpdateProgress Action = "updateProgress"
	ActionCollect        Action = "collect"
	ActionStop           Action = "stop"
	ActionSetVersion     Action = "setVersion"
	ActionGetData        Action = "getData"
	ActionUpdateData     Action = "updateData"
	ActionPing           Action = "ping"
)

// Actions lists every known action.
var Actions = []Action{
	ActionSaveData, ActionGetSavedData, ActionClearData, ActionDownloadTXT, ActionExportTXT, ActionUpdateProgress,
	ActionCollect, ActionStop, ActionSetVersion, ActionGetData, ActionUpdateData, ActionPing,
}

// Response statuses.
const (
	StatusSuccess    = "success"
	StatusError      = "error"
	StatusStopped    = "stopped"
	StatusCollecting = "collecting"
)

// Request is the flat message envelope. Fields not used by an action are left empty.
type Request struct {
	Action   Action           `json:"action"`
	Version  models.Version   `json:"version,omitempty"`
	Data     *models.Snapshot `json:"data,omitempty"`
	URL      string           `json:"url,omitempty"`
	Filename string           `json:"filename,omitempty"`
	Progress *int             `json:"progress,omitempty"`
}

// Response is the flat reply envelope.
type Response struct {
	Success        bool                `json:"success"`
	CollectedUsers []string            `json:"collectedUsers,omitempty"`
	SavedUserList  []models.UserRecord `json:"savedUserList,omitempty"`
	Users          []models.UserRecord `json:"users,omitempty"`
	Error          string              `json:"error,omitempty"`
	Status         string              `json:"status,omitempty"`
	DownloadID     string              `json:"downloadId,omitempty"`
}

// Snapshot returns the snapshot carried by a getSavedData reply.
func (r Response) Snapshot() models.Snapshot {
	return models.Snapshot{CollectedUsers: r.CollectedUsers, SavedUserList: r.SavedUserList}.Clone()
}

// Err converts a failed reply back into an error.
func (r Response) Err() error {
	switch {
	case r.Success:
		return nil
	case r.Error != "":
		return errors.New(r.Error)
	case r.Status == StatusError:
		return errors.New(StatusError)
	default:
		return nil
	}
}

// OK builds a successful reply.
func OK() Response { return Response{Success: true} }

// Fail builds a failed reply from err.
func Fail(err error) Response {
	return Response{Success: false, Error: err.Error(), Status: StatusError}
}

// SnapshotResponse builds a getSavedData reply.
func SnapshotResponse(snap models.Snapshot) Response {
	snap = snap.Clone()
	return Response{Success: true, CollectedUsers: snap.CollectedUsers, SavedUserList: snap.SavedUserList}
}

// UsersResponse builds a reply listing saved records, as returned by the agent.
func UsersResponse(users []models.UserRecord) Response {
	return Response{Success: true, Users: append([]models.UserRecord{}, users...)}
}

// StatusResponse builds a reply carrying only a status.
func StatusResponse(status string) Response {
	return Response{Success: status != StatusError, Status: status}
}

// Command is a decoded [Request].
type Command interface {
	Action() Action
}

type (
	SaveData struct {
		Version  models.Version
		Snapshot models.Snapshot
	}
	GetSavedData struct{ Version models.Version }
	ClearData    struct{ Version models.Version }
	// Download asks the broker to persist an export. ExportTXT requests are decoded into Download as well.
	Download struct {
		URL      string
		Filename string
	}
	UpdateProgress struct {
		Version  models.Version
		Progress int
	}
	Collect    struct{ Version models.Version }
	Stop       struct{}
	SetVersion struct{ Version models.Version }
	GetData    struct{ Version models.Version }
	UpdateData struct{ Snapshot models.Snapshot }
	Ping       struct{}
)

func (SaveData) Action() Action       { return ActionSaveData }
func (GetSavedData) Action() Action   { return ActionGetSavedData }
func (ClearData) Action() Action      { return ActionClearData }
func (Download) Action() Action       { return ActionDownloadTXT }
func (UpdateProgress) Action() Action { return ActionUpdateProgress }
func (Collect) Action() Action        { return ActionCollect }
func (Stop) Action() Action           { return ActionStop }
func (SetVersion) Action() Action     { return ActionSetVersion }
func (GetData) Action() Action        { return ActionGetData }
func (UpdateData) Action() Action     { return ActionUpdateData }
func (Ping) Action() Action           { return ActionPing }

// Command decodes r into its typed command.
//
// A missing version selects [models.VersionBasic]; an unknown one is rejected.
func (r Request) Command() (Command, error) {
	version, err := models.ParseVersion(string(r.Version))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	switch r.Action {
	case ActionSaveData:
		if r.Data == nil {
			return nil, fmt.Errorf("%w: saveData without data", shared.ErrInvalidInput)
		}
		return SaveData{Version: version, Snapshot: r.Data.Clone()}, nil
	case ActionGetSavedData:
		return GetSavedData{Version: version}, nil
	case ActionClearData:
		return ClearData{Version: version}, nil
	case ActionDownloadTXT, ActionExportTXT:
		if r.URL == "" && r.Action == ActionDownloadTXT {
			return nil, fmt.Errorf("%w: downloadTXT without url", shared.ErrInvalidInput)
		}
		return Download{URL: r.URL, Filename: r.Filename}, nil
	case ActionUpdateProgress:
		if r.Progress == nil {
			return nil, fmt.Errorf("%w: updateProgress without progress", shared.ErrInvalidInput)
		}
		return UpdateProgress{Version: version, Progress: clampProgress(*r.Progress)}, nil
	case ActionCollect:
		return Collect{Version: version}, nil
	case ActionStop:
		return Stop{}, nil
	case ActionSetVersion:
		return SetVersion{Version: version}, nil
	case ActionGetData:
		return GetData{Version: version}, nil
	case ActionUpdateData:
		if r.Data == nil {
			return nil, fmt.Errorf("%w: updateData without data", shared.ErrInvalidInput)
		}
		return UpdateData{Snapshot: r.Data.Clone()}, nil
	case ActionPing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", shared.ErrUnknownAction, r.Action)
	}
}

func clampProgress(p int) int {
	return max(0, min(p, 100))
}

// NewSaveData builds a saveData request carrying a copy of snap.
func NewSaveData(version models.Version, snap models.Snapshot) Request {
	data := snap.Clone()
	return Request{Action: ActionSaveData, Version: version, Data: &data}
}

// NewUpdateData builds an updateData request carrying a copy of snap.
func NewUpdateData(snap models.Snapshot) Request {
	data := snap.Clone()
	return Request{Action: ActionUpdateData, Data: &data}
}

// NewGetSavedData builds a getSavedData request.
func NewGetSavedData(version models.Version) Request {
	return Request{Action: ActionGetSavedData, Version: version}
}

// NewClearData builds a clearData request.
func NewClearData(version models.Version) Request {
	return Request{Action: ActionClearData, Version: version}
}

// NewDownload builds a downloadTXT request.
func NewDownload(url, filename string) Request {
	return Request{Action: ActionDownloadTXT, URL: url, Filename: filename}
}

// NewUpdateProgress builds an updateProgress notification.
func NewUpdateProgress(version models.Version, progress int) Request {
	p := clampProgress(progress)
	return Request{Action: ActionUpdateProgress, Version: version, Progress: &p}
}

// NewCollect builds a collect request.
func NewCollect(version models.Version) Request {
	return Request{Action: ActionCollect, Version: version}
}

// NewStop builds a stop request.
func NewStop() Request { return Request{Action: ActionStop} }

// NewSetVersion builds a setVersion request.
func NewSetVersion(version models.Version) Request {
	return Request{Action: ActionSetVersion, Version: version}
}

// NewPing builds a liveness probe.
func NewPing() Request { return Request{Action: ActionPing} }
