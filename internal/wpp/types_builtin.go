package wpp

// Value type ids known to the firmware. Only the ones the host uses are
// described in BuiltinTypes.
const (
	TypeNull                   TypeID = 256
	TypeProbeReply             TypeID = 257
	TypeBatteryPercent         TypeID = 263
	TypeCmdError               TypeID = 272
	TypeDebugDumpData          TypeID = 285
	TypeDebugDumpMask          TypeID = 286
	TypeDebugDumpType          TypeID = 287
	TypeProbeChallenge         TypeID = 290
	TypeProbeChallengeResponse TypeID = 291
	TypeBatteryVoltage         TypeID = 292
	TypeFactoryState           TypeID = 300
	TypeGpio                   TypeID = 516
	TypeTrackerUser            TypeID = 1283
	TypeBatteryStatus          TypeID = 1284
	TypeSwimStatus             TypeID = 2331
	TypeSpiFlashCmd            TypeID = 2372
	TypeSpiFlashChunk          TypeID = 2373
	TypeBatteryStateOpt        TypeID = 2388
	TypeRawDataReadMode        TypeID = 2402
	TypeDebugDumpAnchor        TypeID = 2424
)

const (
	// NonceSize is the length of a probe challenge nonce.
	NonceSize = 16
	// DigestSize is the length of a probe challenge answer.
	DigestSize = 20
	// FlashChunkSize is the payload carried by one SPI flash chunk.
	FlashChunkSize = 16
)

// BuiltinTypes returns a fresh copy of the builtin value schema table.
func BuiltinTypes() []TypeSchema {
	return []TypeSchema{
		{ID: TypeNull, Name: "Null"},
		{ID: TypeProbeReply, Name: "ProbeReply", Fields: []FieldDesc{
			Uint16("vid"),
			Uint16("pid"),
			Text("name"),
			Text("mac"),
			Text("secret"),
			Uint32("hard_version"),
			Text("mfg_id"),
			Uint32("bl_version"),
			Uint32("soft_version"),
			Uint32("rescue_version"),
		}},
		{ID: TypeBatteryPercent, Name: "BatteryPercent", Fields: []FieldDesc{
			Uint16("percent"),
		}},
		{ID: TypeCmdError, Name: "CmdError", Fields: []FieldDesc{
			Uint16("cmd"),
			Int32("err"),
		}},
		{ID: TypeDebugDumpData, Name: "DebugDumpData", Fields: []FieldDesc{
			Bytes("buf"),
		}},
		{ID: TypeDebugDumpMask, Name: "DebugDumpMask", Fields: []FieldDesc{
			Uint32("mask"),
		}},
		{ID: TypeDebugDumpType, Name: "DebugDumpType", Fields: []FieldDesc{
			Uint32("type"),
			Uint32("size"),
		}},
		{ID: TypeProbeChallenge, Name: "ProbeChallenge", Fields: []FieldDesc{
			Text("mac"),
			FixedBytes("challenge", NonceSize),
		}},
		{ID: TypeProbeChallengeResponse, Name: "ProbeChallengeResponse", Fields: []FieldDesc{
			FixedBytes("answer", DigestSize),
		}},
		{ID: TypeBatteryVoltage, Name: "BatteryVoltage", Fields: []FieldDesc{
			Uint16("mv"),
		}},
		{ID: TypeFactoryState, Name: "FactoryState", Fields: []FieldDesc{
			Uint8("value"),
		}},
		{ID: TypeGpio, Name: "Gpio", Fields: []FieldDesc{
			Range("cmd", 0, 1),
			Range("bank", 0, 1),
			Range("pin", 0, 1),
			Range("gpio_mode", 0, 7),
			Range("value", 0, 1),
			Int8("err"),
		}},
		{ID: TypeTrackerUser, Name: "TrackerUser", Fields: []FieldDesc{
			Uint32("uid"),
			Uint32("weight_g"),
			Uint32("height_cm"),
			Uint8("gender"),
			Timestamp("birth"),
			Text("first_name"),
		}},
		{ID: TypeBatteryStatus, Name: "BatteryStatus", Fields: []FieldDesc{
			Uint8("percent"),
			Uint8("state"),
			Uint32("mv"),
			Uint32("reserved"),
		}},
		{ID: TypeSwimStatus, Name: "SwimStatus", Fields: []FieldDesc{
			Bool("enabled"),
		}},
		{ID: TypeSpiFlashCmd, Name: "SpiFlashCmd", Fields: []FieldDesc{
			Uint32("sbz"),
			Uint32("addr"),
			Uint32("len"),
			Uint32("unused"),
		}},
		{ID: TypeSpiFlashChunk, Name: "SpiFlashChunk", Fields: []FieldDesc{
			FixedBytes("data", FlashChunkSize),
		}},
		{ID: TypeBatteryStateOpt, Name: "BatteryStateOpt", Fields: []FieldDesc{
			Uint32("opt"),
		}},
		{ID: TypeRawDataReadMode, Name: "RawDataReadMode", Fields: []FieldDesc{
			Uint32("mode"),
		}},
		{ID: TypeDebugDumpAnchor, Name: "DebugDumpAnchor", Fields: []FieldDesc{
			Uint32("value"),
		}},
	}
}
