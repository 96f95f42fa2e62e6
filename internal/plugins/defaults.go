package plugins

import "github.com/tachyon-beep/tidebreak-sub000/internal/core/plugin"

// Defaults returns the stock plugin set in canonical registration order.
// The order matters: registration index feeds trace derivation, so two runs
// that should agree must register in the same order.
func Defaults() []plugin.Plugin {
	return []plugin.Plugin{
		NewMovement(),
		NewSensor(),
		NewWeapon(),
		NewProjectile(),
	}
}
