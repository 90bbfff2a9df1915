// Package kernel bridges the control core to the external microsimulator:
// vehicle-state frames come in over a CAN bus, actuation and traffic-light
// command frames go back out. Frame and signal layouts are data-driven from a
// CSV signal map so the bus contract can change without recompiling.
package kernel

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// SignalDef describes one little-endian signal inside a frame payload.
type SignalDef struct {
	Name      string
	StartBit  int
	BitLength int
	Signed    bool
	Factor    float64
	Offset    float64
	Min       float64
	Max       float64
	Default   float64
	Unit      string
}

// FrameDef describes one CAN frame and its signal layout.
type FrameDef struct {
	ID      uint32
	Name    string
	DLC     int
	CycleMS int
	Signals []SignalDef
}

// SignalMap indexes frame definitions by ID and by name.
type SignalMap struct {
	byID   map[uint32]*FrameDef
	byName map[string]*FrameDef
}

// FrameByName returns the frame definition for name.
func (m *SignalMap) FrameByName(name string) (*FrameDef, error) {
	fd, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown frame %q (available: %v)", name, m.FrameNames())
	}
	return fd, nil
}

// FrameByID returns the frame definition for a CAN ID.
func (m *SignalMap) FrameByID(id uint32) (*FrameDef, error) {
	fd, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown frame id 0x%X", id)
	}
	return fd, nil
}

// FrameNames returns the known frame names, sorted.
func (m *SignalMap) FrameNames() []string {
	out := make([]string, 0, len(m.byName))
	for k := range m.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var signalMapColumns = []string{
	"frame_id", "frame_name", "cycle_ms", "dlc",
	"signal_name", "start_bit", "bit_length", "signed",
	"factor", "offset", "min", "max", "default", "unit",
}

// LoadSignalMap parses a signal map CSV. One row per signal; rows sharing a
// frame_id accumulate into one frame. All signals are little-endian.
func LoadSignalMap(csvPath string) (*SignalMap, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := ReadSignalMap(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", csvPath, err)
	}
	return m, nil
}

// ReadSignalMap parses signal map CSV content from r.
func ReadSignalMap(r io.Reader) (*SignalMap, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range signalMapColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("signal map missing required column %q", col)
		}
	}

	m := &SignalMap{
		byID:   map[uint32]*FrameDef{},
		byName: map[string]*FrameDef{},
	}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		get := func(col string) string { return strings.TrimSpace(rec[idx[col]]) }

		frameID, err := parseFrameID(get("frame_id"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid frame_id %q: %w", line, get("frame_id"), err)
		}
		frameName := get("frame_name")
		if frameName == "" {
			return nil, fmt.Errorf("line %d: empty frame_name", line)
		}

		cycleMS, err := strconv.Atoi(get("cycle_ms"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid cycle_ms: %w", line, err)
		}
		dlc, err := strconv.Atoi(get("dlc"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid dlc: %w", line, err)
		}
		if dlc <= 0 || dlc > 8 {
			return nil, fmt.Errorf("line %d: frame %s (0x%X): invalid dlc %d", line, frameName, frameID, dlc)
		}

		sig := SignalDef{
			Name: get("signal_name"),
			Unit: get("unit"),
		}
		if sig.Name == "" {
			return nil, fmt.Errorf("line %d: empty signal_name", line)
		}
		if sig.StartBit, err = strconv.Atoi(get("start_bit")); err != nil {
			return nil, fmt.Errorf("line %d: invalid start_bit: %w", line, err)
		}
		if sig.BitLength, err = strconv.Atoi(get("bit_length")); err != nil {
			return nil, fmt.Errorf("line %d: invalid bit_length: %w", line, err)
		}
		if sig.BitLength <= 0 || sig.BitLength > 64 || sig.StartBit < 0 || sig.StartBit+sig.BitLength > dlc*8 {
			return nil, fmt.Errorf("line %d: signal %s does not fit frame %s (start %d len %d dlc %d)",
				line, sig.Name, frameName, sig.StartBit, sig.BitLength, dlc)
		}
		sig.Signed = parseBool(get("signed"))
		if sig.Factor, err = strconv.ParseFloat(get("factor"), 64); err != nil {
			return nil, fmt.Errorf("line %d: invalid factor: %w", line, err)
		}
		if sig.Factor == 0 {
			return nil, fmt.Errorf("line %d: signal %s has zero factor", line, sig.Name)
		}
		if sig.Offset, err = strconv.ParseFloat(get("offset"), 64); err != nil {
			return nil, fmt.Errorf("line %d: invalid offset: %w", line, err)
		}
		if sig.Min, err = strconv.ParseFloat(get("min"), 64); err != nil {
			return nil, fmt.Errorf("line %d: invalid min: %w", line, err)
		}
		if sig.Max, err = strconv.ParseFloat(get("max"), 64); err != nil {
			return nil, fmt.Errorf("line %d: invalid max: %w", line, err)
		}
		if sig.Default, err = strconv.ParseFloat(get("default"), 64); err != nil {
			return nil, fmt.Errorf("line %d: invalid default: %w", line, err)
		}

		fd, ok := m.byID[frameID]
		if !ok {
			fd = &FrameDef{
				ID:      frameID,
				Name:    frameName,
				DLC:     dlc,
				CycleMS: cycleMS,
			}
			m.byID[frameID] = fd
			m.byName[frameName] = fd
		} else if fd.DLC != dlc {
			return nil, fmt.Errorf("line %d: frame %s (0x%X) has inconsistent dlc (%d vs %d)",
				line, frameName, frameID, fd.DLC, dlc)
		}
		fd.Signals = append(fd.Signals, sig)
	}

	for _, fd := range m.byID {
		sort.Slice(fd.Signals, func(i, j int) bool { return fd.Signals[i].StartBit < fd.Signals[j].StartBit })
	}
	return m, nil
}

func parseFrameID(s string) (uint32, error) {
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	u, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}
