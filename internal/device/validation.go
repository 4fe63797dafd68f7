package device

import "fmt"

// Validation constants.
const maxNameLength = 100

// ValidateName checks a device/group name is non-empty and within length limits.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateLight checks a Light definition.
func ValidateLight(l *Light) error {
	if l == nil {
		return fmt.Errorf("%w: light is required", ErrInvalidName)
	}
	return ValidateName(l.Name)
}

// ValidateCover checks a Cover definition. Opening times must be positive;
// a zero or negative value would make position interpolation undefined.
func ValidateCover(c *Cover) error {
	if c == nil {
		return fmt.Errorf("%w: cover is required", ErrInvalidName)
	}
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	if c.OpeningTimeUpS <= 0 || c.OpeningTimeDownS <= 0 {
		return fmt.Errorf("%w: opening times must be positive", ErrInvalidState)
	}
	return nil
}

// ValidateCoverGroup checks a CoverGroup definition has a name and at least
// one member address.
func ValidateCoverGroup(g *CoverGroup) error {
	if g == nil {
		return fmt.Errorf("%w: cover group is required", ErrInvalidName)
	}
	if err := ValidateName(g.Name); err != nil {
		return err
	}
	if len(g.MemberAddresses) == 0 {
		return fmt.Errorf("%w: cover group requires at least one member", ErrInvalidState)
	}
	return nil
}

// ValidateSensorFormat checks that a sensor's wire format is recognised.
func ValidateSensorFormat(f SensorFormat) error {
	switch f {
	case FormatFloat32LE, FormatUint8, FormatUint16LE:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, f)
	}
}

// BrightnessToPercent applies the send_percent mapping used when writing
// brightness to the bus: round(b*100/255), with a floor of 1% whenever
// on=true and b>0.
func BrightnessToPercent(b uint8, on bool) int {
	if b == 0 {
		return 0
	}
	percent := (int(b)*100 + 127) / 255
	if percent < 1 && on {
		percent = 1
	}
	if percent > 100 {
		percent = 100
	}
	return percent
}

// PercentToBrightness maps a 0..100 bus percent back to a 0..255 brightness.
func PercentToBrightness(percent int) uint8 {
	if percent <= 0 {
		return 0
	}
	if percent > 100 {
		percent = 100
	}
	v := (percent*255 + 50) / 100
	if v > 255 {
		v = 255
	}
	return uint8(v)
}

// ClampPosition clamps a cover position to the legal 0..100 range.
func ClampPosition(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
