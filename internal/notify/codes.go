package notify

// Notification codes. Confirmations are CFM_, errors ERR_, and operator
// notices NTF_.
const (
	CodeCheckoutOK       = "CFM_USR_COT_001"
	CodeReturnOK         = "CFM_USR_RET_001"
	CodeReturnFriendOK   = "CFM_USR_RET_002"
	CodeUnknownOperation = "ERR_USR_OPR_001"
	CodeInvalidEmail     = "ERR_USR_EML_001"
	CodeSystemInactive   = "ERR_USR_SYS_001"
	CodeBikeNotFound     = "ERR_USR_BNF_001"
	CodeBikeUnavailable  = "ERR_USR_COT_001"
	CodeUnreturnedBike   = "ERR_USR_COT_002"
	CodeNotCheckedOut    = "ERR_USR_RET_001"
	CodeNotHolder        = "ERR_USR_RET_002"
	CodeNameMismatch     = "ERR_USR_RET_003"
	CodeInvalidFriend    = "ERR_USR_RET_004"
	CodeDuplicate        = "ERR_USR_DUP_001"
	CodeLockTimeout      = "ERR_SYS_LCK_001"
	CodeConfigLoad       = "ERR_SYS_CFG_001"
	CodeStateLoad        = "ERR_SYS_LOD_001"
	CodeMutation         = "ERR_SYS_MUT_001"
	CodeCommit           = "ERR_SYS_COM_001"
	CodeNoHolder         = "ERR_SYS_HLD_001"
	CodeOverdue          = "NTF_ADM_OVD_001"
	CodeIssueCleared     = "NTF_SHT_ISS_001"
)

var channels = map[string]Channel{
	CodeLockTimeout:  ChannelAdmin,
	CodeConfigLoad:   ChannelAdmin,
	CodeStateLoad:    ChannelAdmin,
	CodeCommit:       ChannelAdmin,
	CodeOverdue:      ChannelAdmin,
	CodeNoHolder:     ChannelAdmin,
	CodeMutation:     ChannelDeveloper,
	CodeIssueCleared: ChannelSheetNote,
}

// ChannelOf returns the channel a code is delivered on. Codes without an
// explicit route go to the user.
func ChannelOf(code string) Channel {
	if ch, ok := channels[code]; ok {
		return ch
	}
	return ChannelUser
}
