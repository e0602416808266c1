package dsp

import "math"

// Waveshape is a rational saturator: amount 0.5 is linear, towards 1 it
// drives into hard saturation. amount must be in [0.5, 1).
func Waveshape(v, amount float64) float64 {
	return v * amount / (1 - amount + (2*amount-1)*math.Abs(v))
}

// DriveAmount maps a drive control in [0, 1] to a Waveshape amount.
func DriveAmount(drive float64) float64 {
	return 0.5 + 0.49*math.Min(math.Max(drive, 0), 1)
}

// PanGains returns constant power left/right gains for pan in [-1, 1].
func PanGains(pan float64) (l, r float64) {
	a := (math.Min(math.Max(pan, -1), 1) + 1) * math.Pi / 4
	return math.Cos(a), math.Sin(a)
}

// DBToGain converts decibels to a linear gain.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}
