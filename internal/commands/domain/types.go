package commands

import "strings"

// CommandType is the closed set of envelope types a device understands.
type CommandType string

// Current command types.
const (
	TypePumpStart             CommandType = "PUMP_START"
	TypePumpStop              CommandType = "PUMP_STOP"
	TypePumpSetSpeed          CommandType = "PUMP_SET_SPEED"
	TypePumpSetPressure       CommandType = "PUMP_SET_PRESSURE"
	TypePumpSetFlow           CommandType = "PUMP_SET_FLOW"
	TypePumpSetMode           CommandType = "PUMP_SET_MODE"
	TypeInverterStart         CommandType = "INVERTER_START"
	TypeInverterStop          CommandType = "INVERTER_STOP"
	TypeInverterSetFrequency  CommandType = "INVERTER_SET_FREQUENCY"
	TypeInverterSetPowerLimit CommandType = "INVERTER_SET_POWER_LIMIT"
	TypeInverterSetRampRate   CommandType = "INVERTER_SET_RAMP_RATE"
	TypeSetLimits             CommandType = "SET_LIMITS"
	TypeSetAlarmThresholds    CommandType = "SET_ALARM_THRESHOLDS"
	TypeSetConfig             CommandType = "SET_CONFIG"
	TypeGetConfig             CommandType = "GET_CONFIG"
	TypeSetSchedule           CommandType = "SET_SCHEDULE"
	TypeSetReportingInterval  CommandType = "SET_REPORTING_INTERVAL"
	TypeReboot                CommandType = "REBOOT"
	TypeFactoryReset          CommandType = "FACTORY_RESET"
	TypeSyncTime              CommandType = "SYNC_TIME"
	TypeFirmwareUpdate        CommandType = "FIRMWARE_UPDATE"
	TypeLock                  CommandType = "LOCK"
	TypeUnlock                CommandType = "UNLOCK"
	TypeRotateCredentials     CommandType = "ROTATE_CREDENTIALS"
	TypeGetStatus             CommandType = "GET_STATUS"
	TypeRunDiagnostics        CommandType = "RUN_DIAGNOSTICS"
	TypeCalibrateSensors      CommandType = "CALIBRATE_SENSORS"
	TypeTemplate              CommandType = "TEMPLATE"
)

// Legacy command types still accepted from older integrations.
const (
	TypeLegacyOn       CommandType = "on"
	TypeLegacyOff      CommandType = "off"
	TypeLegacyRestart  CommandType = "restart"
	TypeLegacyStatus   CommandType = "status"
	TypeLegacySetSpeed CommandType = "set_speed"
	TypeLegacyPing     CommandType = "ping"
)

var currentTypes = []CommandType{
	TypePumpStart,
	TypePumpStop,
	TypePumpSetSpeed,
	TypePumpSetPressure,
	TypePumpSetFlow,
	TypePumpSetMode,
	TypeInverterStart,
	TypeInverterStop,
	TypeInverterSetFrequency,
	TypeInverterSetPowerLimit,
	TypeInverterSetRampRate,
	TypeSetLimits,
	TypeSetAlarmThresholds,
	TypeSetConfig,
	TypeGetConfig,
	TypeSetSchedule,
	TypeSetReportingInterval,
	TypeReboot,
	TypeFactoryReset,
	TypeSyncTime,
	TypeFirmwareUpdate,
	TypeLock,
	TypeUnlock,
	TypeRotateCredentials,
	TypeGetStatus,
	TypeRunDiagnostics,
	TypeCalibrateSensors,
	TypeTemplate,
}

var legacyTypes = []CommandType{
	TypeLegacyOn,
	TypeLegacyOff,
	TypeLegacyRestart,
	TypeLegacyStatus,
	TypeLegacySetSpeed,
	TypeLegacyPing,
}

var knownTypes = func() map[CommandType]struct{} {
	set := make(map[CommandType]struct{}, len(currentTypes)+len(legacyTypes))
	for _, t := range currentTypes {
		set[t] = struct{}{}
	}
	for _, t := range legacyTypes {
		set[t] = struct{}{}
	}
	return set
}()

// CurrentCommandTypes returns the current command types.
func CurrentCommandTypes() []CommandType {
	return append([]CommandType(nil), currentTypes...)
}

// LegacyCommandTypes returns the legacy command types.
func LegacyCommandTypes() []CommandType {
	return append([]CommandType(nil), legacyTypes...)
}

// ParseCommandType resolves a user supplied type string. Current types are
// matched case-insensitively; legacy types keep their lowercase spelling.
func ParseCommandType(value string) (CommandType, bool) {
	value = strings.TrimSpace(value)
	if t := CommandType(value); t.Valid() {
		return t, true
	}
	if t := CommandType(strings.ToUpper(value)); t.Valid() {
		return t, true
	}
	if t := CommandType(strings.ToLower(value)); t.IsLegacy() {
		return t, true
	}
	return "", false
}

// Valid reports whether the type belongs to the closed set.
func (t CommandType) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// IsLegacy reports whether the type belongs to the legacy set.
func (t CommandType) IsLegacy() bool {
	for _, legacy := range legacyTypes {
		if legacy == t {
			return true
		}
	}
	return false
}
