package wpp

import (
	"fmt"
	"strings"
)

// DebugMask selects which debug streams the device records and dumps.
type DebugMask uint32

const (
	DebugMaskDblibDump          DebugMask = 0x1
	DebugMaskWlog               DebugMask = 0x2
	DebugMaskBattMeas           DebugMask = 0x4
	DebugMaskUserFeedback       DebugMask = 0x8
	DebugMaskRawData            DebugMask = 0x10
	DebugMaskWPP                DebugMask = 0x20
	DebugMaskSignal             DebugMask = 0x40
	DebugMaskDblibPersonalData  DebugMask = 0x80
	DebugMaskDblibForceDumpAll  DebugMask = 0x100
	DebugMaskRawADXL            DebugMask = 0x10000
	DebugMaskRawADXLWorkout     DebugMask = 0x20000
	DebugMaskRawMAX8614         DebugMask = 0x40000
	DebugMaskRawMAX8614Workout  DebugMask = 0x80000
	DebugMaskRawSleep           DebugMask = 0x100000
	DebugMaskRawSwimAlgo        DebugMask = 0x200000
	DebugMaskRawPPGAlgo         DebugMask = 0x400000
	DebugMaskRawStepsAlgo       DebugMask = 0x800000
	DebugMaskRawPressure        DebugMask = 0x1000000
	DebugMaskRawECG             DebugMask = 0x2000000
	DebugMaskRawOthers          DebugMask = 0x4000000
	DebugMaskRawWorkoutActivity DebugMask = 0x8000000
	DebugMaskRawPPGBackground   DebugMask = 0x10000000
	DebugMaskDefault            DebugMask = DebugMaskDblibDump
)

var debugMaskNames = []struct {
	bit  DebugMask
	name string
}{
	{DebugMaskDblibDump, "dblib_dump"},
	{DebugMaskWlog, "wlog"},
	{DebugMaskBattMeas, "battmeas"},
	{DebugMaskUserFeedback, "userfeedback"},
	{DebugMaskRawData, "rawdata"},
	{DebugMaskWPP, "wpp"},
	{DebugMaskSignal, "signal"},
	{DebugMaskDblibPersonalData, "dblib_personal_data"},
	{DebugMaskDblibForceDumpAll, "dblib_force_dump_all"},
	{DebugMaskRawADXL, "raw_adxl"},
	{DebugMaskRawADXLWorkout, "raw_adxl_workout"},
	{DebugMaskRawMAX8614, "raw_max8614"},
	{DebugMaskRawMAX8614Workout, "raw_max8614_workout"},
	{DebugMaskRawSleep, "raw_sleep"},
	{DebugMaskRawSwimAlgo, "raw_swim_algo"},
	{DebugMaskRawPPGAlgo, "raw_ppg_algo"},
	{DebugMaskRawStepsAlgo, "raw_steps_algo"},
	{DebugMaskRawPressure, "raw_pressure"},
	{DebugMaskRawECG, "raw_ecg"},
	{DebugMaskRawOthers, "raw_others"},
	{DebugMaskRawWorkoutActivity, "raw_workout_activity"},
	{DebugMaskRawPPGBackground, "raw_ppg_background"},
}

func (m DebugMask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	rest := m
	for _, n := range debugMaskNames {
		if m&n.bit != 0 {
			parts = append(parts, n.name)
			rest &^= n.bit
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseDebugMask parses a "|" or "," separated list of mask names. Numeric
// values (decimal or 0x-prefixed) are accepted as well.
func ParseDebugMask(raw string) (DebugMask, error) {
	var out DebugMask
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		found := false
		for _, n := range debugMaskNames {
			if n.name == part {
				out |= n.bit
				found = true
				break
			}
		}
		if found {
			continue
		}
		var v uint32
		if _, err := fmt.Sscan(part, &v); err != nil {
			return 0, fmt.Errorf("unknown debug mask %q", part)
		}
		out |= DebugMask(v)
	}
	return out, nil
}

// DumpType identifies the content of a debug dump.
type DumpType uint32

const (
	DumpTypeNone  DumpType = 0
	DumpTypeDblib DumpType = 3
	DumpTypeRaw   DumpType = 5
	DumpTypeWlog  DumpType = 7
)

func (t DumpType) String() string {
	switch t {
	case DumpTypeNone:
		return "none"
	case DumpTypeDblib:
		return "dblib"
	case DumpTypeRaw:
		return "raw"
	case DumpTypeWlog:
		return "wlog"
	default:
		return fmt.Sprintf("type%d", uint32(t))
	}
}

// ReadMode selects which raw records a dump returns.
type ReadMode uint32

const (
	ReadAll           ReadMode = 0
	ReadNotSent       ReadMode = 1
	ReadFromOldest    ReadMode = 2
	ReadFromTimestamp ReadMode = 3
)

// ErrorCode is the reason carried by a device error frame.
type ErrorCode int32

const (
	ErrCodeArgNotSet  ErrorCode = -9
	ErrCodeArgInval   ErrorCode = -8
	ErrCodeBadVersion ErrorCode = -7
	ErrCodeAuthErr    ErrorCode = -6
	ErrCodeNotAuth    ErrorCode = -5
	ErrCodeCmdInval   ErrorCode = -4
	ErrCodeCmdUnknown ErrorCode = -3
	ErrCodeDevBusy    ErrorCode = -2
	ErrCodeFail       ErrorCode = -1
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeArgNotSet:
		return "ARG_NOT_SET"
	case ErrCodeArgInval:
		return "ARG_INVAL"
	case ErrCodeBadVersion:
		return "BAD_VERSION"
	case ErrCodeAuthErr:
		return "AUTH_ERR"
	case ErrCodeNotAuth:
		return "NOT_AUTH"
	case ErrCodeCmdInval:
		return "CMDINVAL"
	case ErrCodeCmdUnknown:
		return "CMDUNKN"
	case ErrCodeDevBusy:
		return "DEVBUSY"
	case ErrCodeFail:
		return "FAIL"
	default:
		return fmt.Sprintf("code%d", int32(c))
	}
}
