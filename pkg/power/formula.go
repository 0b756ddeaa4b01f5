// Package power derives stream power, channel width, grain size and related
// per-reach quantities. Every function propagates NaN: a null input gives a
// null output.
package power

import "math"

// Physical constants used by D84.
const (
	UnitWeight = 9810.0 // N/m³, default weight of water
	kappa      = 0.41
	submerged  = 1.65 // submerged specific gravity
	rho        = 1000.0
	thetaC     = 0.045 // critical Shields stress
	roughness  = 2.80  // D84 roughness multiplier
	gravity    = 9.81
)

// DischargeCoeffs parameterizes Q = C·A^X (rural) and Q = C·A^X·I^B (urban).
type DischargeCoeffs struct {
	C float64
	X float64
	B float64
}

// WidthCoeffs parameterizes channel width = A·DA^B.
type WidthCoeffs struct {
	A float64
	B float64
}

// Default regional coefficients.
var (
	DefaultDischarge = DischargeCoeffs{C: 0.248, X: 0.91, B: 0.3}
	DefaultWidth     = WidthCoeffs{A: 1.16, B: 0.508}
)

// RuralDischarge returns c·A^x for drainage area A in km².
func RuralDischarge(area float64, c DischargeCoeffs) float64 {
	if math.IsNaN(area) {
		return math.NaN()
	}
	return c.C * math.Pow(area, c.X)
}

// UrbanDischarge returns c·A^x·I^b where I is percent impervious cover.
func UrbanDischarge(area, impervious float64, c DischargeCoeffs) float64 {
	if math.IsNaN(impervious) {
		return math.NaN()
	}
	return RuralDischarge(area, c) * math.Pow(impervious, c.B)
}

// Width returns the regime channel width a·A^b in metres.
func Width(area float64, w WidthCoeffs) float64 {
	if math.IsNaN(area) {
		return math.NaN()
	}
	return w.A * math.Pow(area, w.B)
}

// StreamPower returns |slope·discharge·unitWeight| in W/m.
func StreamPower(slope, discharge, unitWeight float64) float64 {
	return math.Abs(slope * discharge * unitWeight)
}

// SpecificPower returns power per unit channel width in W/m².
func SpecificPower(power, width float64) float64 {
	return power / width
}

// D84 returns the 84th-percentile grain size in mm mobilized by the given
// specific power at the given slope.
func D84(specificPower, slope float64) float64 {
	logC := math.Log10(30 * thetaC * submerged / (math.E * roughness * math.Abs(slope)))
	shear := kappa * math.Abs(specificPower) / (2.30 * rho * logC)
	return math.Pow(shear, 2.0/3) / (thetaC * submerged * gravity) * 1000
}

// ScourRatio compares bridge and upstream conditions:
// (Qb/Qup)^0.857 · (Wup/Wb)^0.59.
func ScourRatio(qBridge, qUp, wUp, wBridge float64) float64 {
	return math.Pow(qBridge/qUp, 0.857) * math.Pow(wUp/wBridge, 0.59)
}

// OvertopRatio returns Qtotal/Qbridge.
func OvertopRatio(qTotal, qBridge float64) float64 {
	return qTotal / qBridge
}

// Slope returns (elevDown - elevUp) / length.
func Slope(elevUp, elevDown, length float64) float64 {
	return (elevDown - elevUp) / length
}
