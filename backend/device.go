package backend

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/qfold-team/qfold-engine/common"
	"go.uber.org/zap"
)

type DeviceSetting struct {
	DeviceName   string       `toml:"device_name"`
	DeviceType   string       `toml:"device_type"`
	ProviderName string       `toml:"provider_name"`
	MaxQubits    int          `toml:"max_qubits"`
	MaxShots     int          `toml:"max_shots"`
	GateSupport  *GateSupport `toml:"gate_support"`
}

type GateSupport struct {
	AllowList *GateFilter `toml:"allow_list"`
	DenyList  *GateFilter `toml:"deny_list"`
}

// LoadDeviceSetting falls back to the default setting when the file is
// missing so a bare checkout can run without a device file.
func LoadDeviceSetting(path string) (*DeviceSetting, error) {
	blob, readErr := common.ReadFile(path)
	ds := NewDeviceSetting()
	if readErr != nil {
		zap.L().Info(fmt.Sprintf("Failed to read file:%s Reason:%s", path, readErr))
		return ds, nil
	}
	if _, err := toml.Decode(blob, ds); err != nil {
		zap.L().Error(fmt.Sprintf("failed to decode blob:%s", blob))
		return &DeviceSetting{}, err
	}
	return ds, nil
}

func NewDeviceSetting() *DeviceSetting {
	return &DeviceSetting{
		DeviceName:   DummyDeviceName,
		DeviceType:   "dummy",
		ProviderName: DummyProviderName,
		MaxQubits:    64,
		MaxShots:     10000,
		GateSupport:  NewGateSupport(),
	}
}

func NewGateSupport() *GateSupport {
	return &GateSupport{
		AllowList: &GateFilter{},
		DenyList:  &GateFilter{},
	}
}

func NewGateSupportWithAllowList(g *GateFilter) *GateSupport {
	return &GateSupport{
		AllowList: g,
		DenyList:  &GateFilter{},
	}
}

func NewGateSupportWithDenyList(g *GateFilter) *GateSupport {
	return &GateSupport{
		AllowList: &GateFilter{},
		DenyList:  g,
	}
}

type GateFilter struct {
	Enabled bool
	Gates   []*GateType `toml:"gates"`
}

type GateType struct {
	Name string
}

func (g *GateType) String() string {
	return g.Name
}
