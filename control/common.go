package control

// ClampFloat clamps value between min and max.
func ClampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// BoolToFloat converts bool to float64 (for CAN signal encoding).
func BoolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
