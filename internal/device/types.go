package device

import (
	"fmt"
	"strings"
	"time"

	"wpplink/internal/wpp"
)

// Info is the identity a device reports in its probe reply.
type Info struct {
	VID           uint16
	PID           uint16
	Name          string
	MAC           string
	MfgID         string
	HardVersion   uint32
	BLVersion     uint32
	SoftVersion   uint32
	RescueVersion uint32
	FactoryState  uint8
	// Known is false when the probe reply carried no identity.
	Known bool
}

func infoFromProbe(f *wpp.Frame) Info {
	if f == nil {
		return Info{}
	}
	var info Info
	if r := f.Get("reply"); r != nil {
		info = Info{
			VID:           uint16(r.Int("vid")),
			PID:           uint16(r.Int("pid")),
			Name:          r.Text("name"),
			MAC:           r.Text("mac"),
			MfgID:         r.Text("mfg_id"),
			HardVersion:   r.Uint32("hard_version"),
			BLVersion:     r.Uint32("bl_version"),
			SoftVersion:   r.Uint32("soft_version"),
			RescueVersion: r.Uint32("rescue_version"),
			Known:         true,
		}
	}
	if fs := f.Get("factory_state"); fs != nil {
		info.FactoryState = uint8(fs.Int("value"))
	}
	return info
}

type User struct {
	UID         uint32
	WeightGrams uint32
	HeightCm    uint32
	Gender      uint8
	Birth       time.Time
	FirstName   string
}

type BatteryStatus struct {
	Percent    uint8
	State      uint8
	MilliVolts uint32
}

type BatteryLevel struct {
	Percent    uint16
	MilliVolts uint16
	HasPercent bool
	HasVoltage bool
}

// Dump is one typed debug dump returned by a DebugDump round.
type Dump struct {
	Anchor uint32
	Type   wpp.DumpType
	Size   uint32
	Data   []byte
}

// FlashRegion is a named area of the device SPI flash.
type FlashRegion struct {
	Name   string
	Addr   uint32
	Length uint32
}

func (r FlashRegion) String() string {
	return fmt.Sprintf("%s@0x%x+0x%x", r.Name, r.Addr, r.Length)
}

// FlashRegions lists the areas known on ScanWatch firmware: three dblib
// banks and the headers of both firmware slots.
var FlashRegions = []FlashRegion{
	{Name: "dblib_0", Addr: 0x0, Length: 0x2000},
	{Name: "dblib_1", Addr: 0x2000, Length: 0x2000},
	{Name: "dblib_2", Addr: 0x4000, Length: 0x2000},
	{Name: "fw_0_hdr", Addr: 0x6000, Length: 0x54},
	{Name: "fw_1_hdr", Addr: 0x11f000, Length: 0x54},
}

func LookupFlashRegion(name string) (FlashRegion, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, r := range FlashRegions {
		if r.Name == name {
			return r, true
		}
	}
	return FlashRegion{}, false
}
