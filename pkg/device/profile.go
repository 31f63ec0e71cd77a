package device

import "github.com/candyhouse/gosesame/pkg/protocol"

// MechStatus is the parsed mechanical status of a device, regardless of
// product family.
type MechStatus struct {
	BatteryVoltage  float64
	BatteryPercent  float64
	InLockRange     bool
	InUnlockRange   bool
	BatteryCritical bool
}

// MechSetting is the parsed mechanical setting of a device, regardless
// of product family.
type MechSetting struct {
	IsConfigured bool
}

// Profile is the capability set that parameterizes a Session over a
// product family: status/setting parsing, intention derivation, and
// which operations the family supports.
type Profile interface {
	// ParseStatus decodes a mechanical status record into both the
	// profile-agnostic MechStatus and a profile-specific value (used
	// to recover family-specific fields and by DeriveIntention).
	ParseStatus(body []byte) (MechStatus, any, error)
	// ParseSetting decodes a mechanical setting record into both the
	// profile-agnostic MechSetting and a profile-specific value.
	ParseSetting(body []byte) (MechSetting, any, error)
	// DeriveIntention computes the Intention from the most recently
	// parsed family-specific status and setting values.
	DeriveIntention(status, setting any) protocol.Intention
	// SupportsClick reports whether this family exposes click().
	SupportsClick() bool
	// SettingWireSize is the number of bytes the mechanical setting
	// record occupies within the post-login payload, including any
	// trailing reserved bytes.
	SettingWireSize() int
	// StatusWireSize is the number of bytes the mechanical status
	// record occupies within the post-login payload.
	StatusWireSize() int
}

type lockProfile struct{}

func newLockProfile() Profile { return lockProfile{} }

func (lockProfile) ParseStatus(body []byte) (MechStatus, any, error) {
	s, err := protocol.ParseLockStatus(body)
	if err != nil {
		return MechStatus{}, nil, err
	}
	return MechStatus{
		BatteryVoltage:  s.BatteryVoltage,
		BatteryPercent:  s.BatteryPercent(),
		InLockRange:     s.InLockRange,
		InUnlockRange:   s.InUnlockRange,
		BatteryCritical: s.BatteryCritical,
	}, s, nil
}

func (lockProfile) ParseSetting(body []byte) (MechSetting, any, error) {
	s, err := protocol.ParseLockSetting(body)
	if err != nil {
		return MechSetting{}, nil, err
	}
	return MechSetting{IsConfigured: s.IsConfigured()}, s, nil
}

func (lockProfile) DeriveIntention(status, setting any) protocol.Intention {
	s, ok := status.(*protocol.LockStatus)
	if !ok {
		return protocol.IntentionIdle
	}
	var set *protocol.LockSetting
	if setting != nil {
		set, _ = setting.(*protocol.LockSetting)
	}
	return s.DeriveIntention(set)
}

func (lockProfile) SupportsClick() bool { return false }

func (lockProfile) SettingWireSize() int { return 12 }

func (lockProfile) StatusWireSize() int { return 8 }

type botProfile struct{}

func newBotProfile() Profile { return botProfile{} }

func (botProfile) ParseStatus(body []byte) (MechStatus, any, error) {
	s, err := protocol.ParseBotStatus(body)
	if err != nil {
		return MechStatus{}, nil, err
	}
	return MechStatus{
		BatteryVoltage:  s.BatteryVoltage,
		BatteryPercent:  s.BatteryPercent(),
		InLockRange:     s.InLockRange,
		InUnlockRange:   s.InUnlockRange,
		BatteryCritical: s.BatteryCritical,
	}, s, nil
}

func (botProfile) ParseSetting(body []byte) (MechSetting, any, error) {
	s, err := protocol.ParseBotSetting(body)
	if err != nil {
		return MechSetting{}, nil, err
	}
	// A bot's motor always drives to one of its two known endpoints, so
	// its setting is trivially "configured" once parsed.
	return MechSetting{IsConfigured: true}, s, nil
}

func (botProfile) DeriveIntention(status, _ any) protocol.Intention {
	s, ok := status.(*protocol.BotStatus)
	if !ok {
		return protocol.IntentionIdle
	}
	return s.DeriveIntention()
}

func (botProfile) SupportsClick() bool { return true }

func (botProfile) SettingWireSize() int { return 12 }

func (botProfile) StatusWireSize() int { return 8 }
