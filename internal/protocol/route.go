package protocol

// Target names the context that serves an action.
type Target int

const (
	TargetUnknown Target = iota
	TargetBroker
	TargetAgent
	TargetDisplay
)

func (t Target) String() string {
	switch t {
	case TargetBroker:
		return "broker"
	case TargetAgent:
		return "agent"
	case TargetDisplay:
		return "display"
	default:
		return "unknown"
	}
}

// TargetOf returns the context owning action.
//
// Storage actions belong to the broker, collection control to the active agent, and progress notifications are
// broadcast to display clients.
func TargetOf(action Action) Target {
	switch action {
	case ActionSaveData, ActionGetSavedData, ActionClearData, ActionDownloadTXT, ActionPing:
		return TargetBroker
	case ActionCollect, ActionStop, ActionSetVersion, ActionGetData, ActionUpdateData, ActionExportTXT:
		return TargetAgent
	case ActionUpdateProgress:
		return TargetDisplay
	default:
		return TargetUnknown
	}
}
