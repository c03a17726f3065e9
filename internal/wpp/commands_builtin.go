package wpp

const (
	CmdError          CommandID = 256
	CmdProbe          CommandID = 257
	CmdBatteryPercent CommandID = 261
	CmdDisconnect     CommandID = 272
	CmdDebugSet       CommandID = 279
	CmdDebugDump      CommandID = 280
	CmdProbeChallenge CommandID = 296
	CmdDebugDumpAck   CommandID = 309
	CmdTrackerUserGet CommandID = 1283
	CmdBatteryStatus  CommandID = 1284
	CmdSwimStatusSet  CommandID = 2334
	CmdFlashRead      CommandID = 2386
)

// BuiltinCommands returns a fresh copy of the builtin command schema table.
// Slot order is the order values are emitted on encode.
func BuiltinCommands() []CommandSchema {
	return []CommandSchema{
		{ID: CmdError, Name: "Error", Slots: []Slot{
			Req("error", TypeCmdError),
		}},
		{ID: CmdProbe, Name: "Probe", Slots: []Slot{
			Opt("response", TypeProbeChallengeResponse),
			Opt("reply", TypeProbeReply),
			Opt("factory_state", TypeFactoryState),
		}},
		{ID: CmdBatteryPercent, Name: "BatteryPercent", Slots: []Slot{
			Opt("percent", TypeBatteryPercent),
			Opt("voltage", TypeBatteryVoltage),
		}},
		{ID: CmdDisconnect, Name: "Disconnect", Slots: []Slot{
			Opt("null", TypeNull),
		}},
		{ID: CmdDebugSet, Name: "DebugSet", Slots: []Slot{
			Opt("mask", TypeDebugDumpMask),
			Opt("null", TypeNull),
		}},
		{ID: CmdDebugDump, Name: "DebugDump", Slots: []Slot{
			Opt("anchor", TypeDebugDumpAnchor),
			Opt("read_mode", TypeRawDataReadMode),
			Opt("type", TypeDebugDumpType),
			List("data", TypeDebugDumpData),
			Opt("null", TypeNull),
		}},
		{ID: CmdProbeChallenge, Name: "ProbeChallenge", Slots: []Slot{
			Opt("response", TypeProbeChallengeResponse),
			Req("challenge", TypeProbeChallenge),
		}},
		{ID: CmdDebugDumpAck, Name: "DebugDumpAck", Slots: []Slot{
			Opt("null", TypeNull),
		}},
		{ID: CmdTrackerUserGet, Name: "TrackerUserGet", Slots: []Slot{
			Opt("user", TypeTrackerUser),
		}},
		{ID: CmdBatteryStatus, Name: "BatteryStatus", Slots: []Slot{
			Opt("status", TypeBatteryStatus),
		}},
		{ID: CmdSwimStatusSet, Name: "SwimStatusSet", Slots: []Slot{
			Opt("status", TypeSwimStatus),
			Opt("null", TypeNull),
		}},
		{ID: CmdFlashRead, Name: "FlashRead", Slots: []Slot{
			Opt("cmd", TypeSpiFlashCmd),
			List("chunks", TypeSpiFlashChunk),
			Opt("null", TypeNull),
		}},
	}
}
