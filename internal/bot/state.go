package bot

// State is where a chat is in its current dialog. Every prompt that expects
// the next message to mean something moves the chat out of StateIdle.
type State int

const (
	StateIdle State = iota
	StateAwaitingNoteText
	StateAwaitingDeleteSelection
	StateInAdminPanel
	StateAwaitingGrantTargetID
	StateAwaitingRevokeTargetID
	StateInReferralMenu
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingNoteText:
		return "awaiting_note_text"
	case StateAwaitingDeleteSelection:
		return "awaiting_delete_selection"
	case StateInAdminPanel:
		return "in_admin_panel"
	case StateAwaitingGrantTargetID:
		return "awaiting_grant_target"
	case StateAwaitingRevokeTargetID:
		return "awaiting_revoke_target"
	case StateInReferralMenu:
		return "in_referral_menu"
	default:
		return "unknown"
	}
}
