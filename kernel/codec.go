package kernel

import (
	"fmt"
	"math"

	"go.einride.tech/can"
)

// Encode packs physical signal values into a transmit-ready frame. Missing
// signals take their defaults; values are clamped to the signal's physical
// range and the raw integer is clamped to its bit width.
func (m *SignalMap) Encode(frameName string, values map[string]float64) (can.Frame, error) {
	fd, err := m.FrameByName(frameName)
	if err != nil {
		return can.Frame{}, err
	}

	var payload uint64
	for _, s := range fd.Signals {
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		if s.Min != 0 || s.Max != 0 {
			if v < s.Min {
				v = s.Min
			} else if v > s.Max {
				v = s.Max
			}
		}

		raw := int64(math.Round((v - s.Offset) / s.Factor))
		raw = clampRaw(raw, s.BitLength, s.Signed)
		payload = setBits(payload, s.StartBit, s.BitLength, rawToUnsigned(raw, s.BitLength))
	}

	var f can.Frame
	f.ID = fd.ID
	f.Length = uint8(fd.DLC)
	for i := 0; i < fd.DLC; i++ {
		f.Data[i] = byte(payload >> (8 * i))
	}
	return f, nil
}

// Decode unpacks a received frame into physical signal values keyed by
// signal name.
func (m *SignalMap) Decode(f can.Frame) (map[string]float64, error) {
	fd, err := m.FrameByID(uint32(f.ID))
	if err != nil {
		return nil, err
	}
	if int(f.Length) < fd.DLC {
		return nil, fmt.Errorf("frame 0x%X expects dlc %d, got %d", fd.ID, fd.DLC, f.Length)
	}

	var payload uint64
	for i := 0; i < fd.DLC; i++ {
		payload |= uint64(f.Data[i]) << (8 * i)
	}

	out := make(map[string]float64, len(fd.Signals))
	for _, s := range fd.Signals {
		raw := unsignedToRaw(getBits(payload, s.StartBit, s.BitLength), s.BitLength, s.Signed)
		out[s.Name] = float64(raw)*s.Factor + s.Offset
	}
	return out, nil
}

func getBits(payload uint64, startBit, bitLen int) uint64 {
	mask := uint64(1)<<bitLen - 1
	return (payload >> startBit) & mask
}

func setBits(payload uint64, startBit, bitLen int, value uint64) uint64 {
	mask := uint64(1)<<bitLen - 1
	payload &^= mask << startBit
	return payload | (value&mask)<<startBit
}

func unsignedToRaw(u uint64, bitLen int, signed bool) int64 {
	if !signed {
		return int64(u)
	}
	signBit := uint64(1) << (bitLen - 1)
	if u&signBit == 0 {
		return int64(u)
	}
	mask := uint64(1)<<bitLen - 1
	return -int64((^u + 1) & mask)
}

func rawToUnsigned(raw int64, bitLen int) uint64 {
	if raw >= 0 {
		return uint64(raw)
	}
	mask := uint64(1)<<bitLen - 1
	return (^uint64(-raw) + 1) & mask
}

func clampRaw(raw int64, bitLen int, signed bool) int64 {
	if bitLen >= 63 {
		return raw
	}
	if !signed {
		if raw < 0 {
			return 0
		}
		if max := int64(1)<<bitLen - 1; raw > max {
			return max
		}
		return raw
	}
	min := -(int64(1) << (bitLen - 1))
	max := int64(1)<<(bitLen-1) - 1
	if raw < min {
		return min
	}
	if raw > max {
		return max
	}
	return raw
}
