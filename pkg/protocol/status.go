package protocol

import (
	"encoding/binary"
	"errors"
)

// ErrTruncatedStatus is returned when a mechanical status record is
// shorter than its product family requires.
var ErrTruncatedStatus = errors.New("protocol: truncated mechanical status")

// targetIdle is the sentinel target value meaning "the motor is not
// driving toward any position."
const targetIdle = -32768

// Intention classifies what a lock or bot's motor is currently doing.
type Intention int

const (
	IntentionIdle Intention = iota
	IntentionLocking
	IntentionUnlocking
	IntentionHolding
	IntentionMovingToUnknownTarget
)

func (i Intention) String() string {
	switch i {
	case IntentionIdle:
		return "idle"
	case IntentionLocking:
		return "locking"
	case IntentionUnlocking:
		return "unlocking"
	case IntentionHolding:
		return "holding"
	case IntentionMovingToUnknownTarget:
		return "movingToUnknownTarget"
	default:
		return "unknown"
	}
}

// LockStatus is SESAME2/3/4's 8-byte mechanical status record.
type LockStatus struct {
	BatteryVoltage  float64
	Target          int16
	Position        int16
	RetCode         byte
	InLockRange     bool
	InUnlockRange   bool
	BatteryCritical bool
}

// ParseLockStatus decodes an 8-byte lock mechanical status record.
func ParseLockStatus(body []byte) (*LockStatus, error) {
	if len(body) < 8 {
		return nil, ErrTruncatedStatus
	}
	batteryRaw := binary.LittleEndian.Uint16(body[0:2])
	flags := body[7]

	return &LockStatus{
		BatteryVoltage:  float64(batteryRaw) * 7.2 / 1023,
		Target:          int16(binary.LittleEndian.Uint16(body[2:4])),
		Position:        int16(binary.LittleEndian.Uint16(body[4:6])),
		RetCode:         body[6],
		InLockRange:     flags&(1<<1) != 0,
		InUnlockRange:   flags&(1<<2) != 0,
		BatteryCritical: flags&(1<<5) != 0,
	}, nil
}

// BatteryPercent interpolates this status's battery voltage onto a
// percentage using the lock-family anchor table.
func (s *LockStatus) BatteryPercent() float64 {
	return interpolateBatteryPercent(s.BatteryVoltage, lockBatteryVoltages, lockBatteryPercents)
}

// LockSetting is SESAME2/3/4's mechanical setting record (lock/unlock
// positions; at least 4 bytes are meaningful).
type LockSetting struct {
	LockPosition   int16
	UnlockPosition int16
}

// ParseLockSetting decodes a lock mechanical setting record.
func ParseLockSetting(body []byte) (*LockSetting, error) {
	if len(body) < 4 {
		return nil, ErrTruncatedStatus
	}
	return &LockSetting{
		LockPosition:   int16(binary.LittleEndian.Uint16(body[0:2])),
		UnlockPosition: int16(binary.LittleEndian.Uint16(body[2:4])),
	}, nil
}

// IsConfigured reports whether the lock has been mechanically configured
// (lock and unlock positions differ).
func (s *LockSetting) IsConfigured() bool {
	return s.LockPosition != s.UnlockPosition
}

// DeriveIntention applies the lock intention rule: idle at the sentinel
// target, movingToUnknownTarget without a setting yet, otherwise
// locking/unlocking based on which configured position the target matches.
func (s *LockStatus) DeriveIntention(setting *LockSetting) Intention {
	if s.Target == targetIdle {
		return IntentionIdle
	}
	if setting == nil {
		return IntentionMovingToUnknownTarget
	}
	switch s.Target {
	case setting.LockPosition:
		return IntentionLocking
	case setting.UnlockPosition:
		return IntentionUnlocking
	default:
		return IntentionMovingToUnknownTarget
	}
}

// BotStatus is SesameBot1's 8-byte mechanical status record.
type BotStatus struct {
	BatteryVoltage  float64
	MotorStatus     byte
	InLockRange     bool
	InUnlockRange   bool
	BatteryCritical bool
}

// ParseBotStatus decodes an 8-byte bot mechanical status record.
func ParseBotStatus(body []byte) (*BotStatus, error) {
	if len(body) < 8 {
		return nil, ErrTruncatedStatus
	}
	batteryRaw := binary.LittleEndian.Uint16(body[0:2])
	flags := body[7]

	return &BotStatus{
		BatteryVoltage:  float64(batteryRaw) * 3.6 / 1023,
		MotorStatus:     body[4],
		InLockRange:     flags&(1<<1) != 0,
		InUnlockRange:   flags&(1<<2) != 0,
		BatteryCritical: flags&(1<<5) != 0,
	}, nil
}

// BatteryPercent interpolates this status's battery voltage onto a
// percentage using the bot-family anchor table.
func (s *BotStatus) BatteryPercent() float64 {
	return interpolateBatteryPercent(s.BatteryVoltage, botBatteryVoltages, botBatteryPercents)
}

// DeriveIntention maps the bot's raw motor status onto an Intention.
func (s *BotStatus) DeriveIntention() Intention {
	switch s.MotorStatus {
	case 0:
		return IntentionIdle
	case 1:
		return IntentionLocking
	case 2:
		return IntentionHolding
	case 3:
		return IntentionUnlocking
	default:
		return IntentionMovingToUnknownTarget
	}
}

// ButtonMode selects how a bot's physical button behaves.
type ButtonMode byte

const (
	ButtonModeClick  ButtonMode = 0
	ButtonModeToggle ButtonMode = 1
)

// UserPrefDirection selects the bot's configured rotation direction.
type UserPrefDirection byte

const (
	DirectionNormal   UserPrefDirection = 0
	DirectionReversed UserPrefDirection = 1
)

// BotSetting is SesameBot1's 12-byte mechanical setting record.
type BotSetting struct {
	UserPrefDir    UserPrefDirection
	LockSec        byte
	UnlockSec      byte
	ClickLockSec   byte
	ClickHoldSec   byte
	ClickUnlockSec byte
	ButtonMode     ButtonMode
}

// ParseBotSetting decodes a bot mechanical setting record.
func ParseBotSetting(body []byte) (*BotSetting, error) {
	if len(body) < 7 {
		return nil, ErrTruncatedStatus
	}
	return &BotSetting{
		UserPrefDir:    UserPrefDirection(body[0]),
		LockSec:        body[1],
		UnlockSec:      body[2],
		ClickLockSec:   body[3],
		ClickHoldSec:   body[4],
		ClickUnlockSec: body[5],
		ButtonMode:     ButtonMode(body[6]),
	}, nil
}

var (
	lockBatteryVoltages = []float64{6.0, 5.8, 5.7, 5.6, 5.4, 5.2, 5.1, 5.0, 4.8, 4.6}
	lockBatteryPercents = []float64{100, 50, 40, 32, 21, 13, 10, 7, 3, 0}

	botBatteryVoltages = []float64{3.0, 2.9, 2.85, 2.8, 2.7, 2.6, 2.55, 2.5, 2.4, 2.3}
	botBatteryPercents = []float64{100, 50, 40, 32, 21, 13, 10, 7, 3, 0}
)

// interpolateBatteryPercent maps a voltage onto a percentage via piecewise
// linear interpolation between descending anchor voltages, clamping at
// both ends.
func interpolateBatteryPercent(voltage float64, voltages, percents []float64) float64 {
	if voltage >= voltages[0] {
		return percents[0]
	}
	last := len(voltages) - 1
	if voltage <= voltages[last] {
		return percents[last]
	}

	for i := 0; i < last; i++ {
		hi, lo := voltages[i], voltages[i+1]
		if voltage <= hi && voltage >= lo {
			span := hi - lo
			if span == 0 {
				return percents[i]
			}
			frac := (voltage - lo) / span
			return percents[i+1] + frac*(percents[i]-percents[i+1])
		}
	}
	return percents[last]
}
