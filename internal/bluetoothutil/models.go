package bluetoothutil

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// Model describes the GATT layout of one device family. All WPP traffic
// goes through a single characteristic: writes carry requests and
// notifications carry replies.
type Model struct {
	Name    string
	Service bluetooth.UUID
	TxRx    bluetooth.UUID
}

var models = []Model{
	{
		Name:    "scanwatch",
		Service: mustParseUUID("00000020-5749-5448-005d-000000000000"),
		TxRx:    mustParseUUID("00000023-5749-5448-005d-000000000000"),
	},
	{
		Name:    "scanwatch2",
		Service: mustParseUUID("00000020-5749-5448-005e-000000000000"),
		TxRx:    mustParseUUID("00000023-5749-5448-005e-000000000000"),
	},
	{
		Name:    "body_plus",
		Service: mustParseUUID("00000020-5749-5448-0005-000000000000"),
		TxRx:    mustParseUUID("00000024-5749-5448-0005-000000000000"),
	},
}

func mustParseUUID(raw string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(strings.TrimSpace(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid bluetooth UUID %q: %v", raw, err))
	}

	return uuid
}

// Models returns every known device model.
func Models() []Model {
	return append([]Model(nil), models...)
}

func ModelByName(name string) (Model, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, m := range models {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

// matchModel returns the first model whose service the advertisement lists.
func matchModel(candidates []Model, hasService func(bluetooth.UUID) bool) (Model, bool) {
	for _, m := range candidates {
		if hasService(m.Service) {
			return m, true
		}
	}
	return Model{}, false
}
