package main

import (
	"context"
	"fmt"
	"time"

	"microsim-control-core/control"
	"microsim-control-core/kernel"
	"microsim-control-core/utils"
)

// staleRxWarnAfter is how long the run loop waits without a fresh tick before
// complaining about the simulator feed.
const staleRxWarnAfter = 2 * time.Second

// rxErrorBackoff throttles the receive loop after a read error so a dead
// socket does not spin it hot.
const rxErrorBackoff = 250 * time.Millisecond

type RunnerConfig struct {
	Interface      string
	MapPath        string
	ScenarioPath   string
	EmissionDBPath string
	ReportPath     string
	Runs           int
	Seed           int64
}

// vehicleControl is the per-vehicle controller bundle, built once when the
// vehicle first appears and reused for its lifetime.
type vehicleControl struct {
	index int
	class *VehicleClass
	accel control.AccelController
	lane  control.LaneChanger
}

type Runner struct {
	cfg    RunnerConfig
	log    *utils.Logger
	smap   *kernel.SignalMap
	scen   Scenario
	writer kernel.FrameWriter
	reader kernel.FrameReader
	store  *EmissionStore
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	smap, err := kernel.LoadSignalMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load signal map: %w", err)
	}
	for _, name := range []string{kernel.FrameVehicleState, kernel.FrameActuatorCmd, kernel.FrameTrafficLightCmd, kernel.FrameInflowCfg} {
		if _, err := smap.FrameByName(name); err != nil {
			return nil, fmt.Errorf("signal map: %w", err)
		}
	}

	scen, err := LoadScenario(cfg.ScenarioPath)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}

	writer, err := kernel.NewSocketCANWriter(ctx, cfg.Interface)
	if err != nil {
		return nil, err
	}
	reader, err := kernel.NewSocketCANReader(ctx, cfg.Interface)
	if err != nil {
		writer.Close()
		return nil, err
	}

	r := &Runner{
		cfg:    cfg,
		log:    log,
		smap:   smap,
		scen:   scen,
		writer: writer,
		reader: reader,
	}
	if cfg.EmissionDBPath != "" {
		r.store, err = OpenEmissionStore(cfg.EmissionDBPath)
		if err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) Close() {
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
}

// Run executes the configured number of back-to-back runs against the live
// simulator feed and reports the cross-run summary.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	numRuns := r.cfg.Runs
	if numRuns <= 0 {
		numRuns = 1
	}

	r.log.Info("Starting experiment: scenario=%s dt=%.3fs duration=%.1fs runs=%d classes=%d inflows=%d lights=%d iface=%s",
		r.scen.Meta.Name, r.scen.Timing.DtS, r.scen.Timing.DurationS, numRuns,
		len(r.scen.Classes), len(r.scen.Inflows), len(r.scen.TrafficLights), r.cfg.Interface)
	if err := r.pushInflows(ctx); err != nil {
		return Summary{}, err
	}

	table := kernel.NewSnapshotTable()
	asm := kernel.NewTickAssembler(table, r.scen.Timing.DtS)
	tickCh := make(chan struct{}, 64)

	rxCtx, stopRx := context.WithCancel(ctx)
	defer stopRx()
	go r.receiveLoop(rxCtx, asm, tickCh)

	runs := make([]*RunStats, 0, numRuns)
	var throughputs []float64
	for i := 0; i < numRuns; i++ {
		stats, tp, err := r.runOnce(ctx, i, table, tickCh)
		if err != nil {
			return Summary{}, err
		}
		runs = append(runs, stats)
		throughputs = append(throughputs, tp)
		r.log.Info("Run %d complete: id=%s steps=%d return=%.2f mean_speed=%.2f m/s throughput=%.2f",
			i, stats.RunID, stats.Steps(), stats.Return(), stats.MeanSpeed(), tp)
	}

	sum := Summarize(runs, throughputs)
	r.log.Info("Experiment complete: runs=%d speed=%.2f m/s (std %.2f) return=%.2f (std %.2f) throughput=%.2f",
		sum.Runs, sum.AvgSpeed, sum.StdSpeed, sum.AvgReturn, sum.StdReturn, sum.Throughput)

	if r.cfg.ReportPath != "" {
		if err := WriteSpeedReport(r.cfg.ReportPath, r.scen.Meta.Name, runs); err != nil {
			return sum, fmt.Errorf("write report: %w", err)
		}
		r.log.Info("Report written to %s", r.cfg.ReportPath)
	}
	return sum, nil
}

// pushInflows transmits the validated inflow configurations to the simulator.
// Inflows are keyed by index on the wire; both sides read the same scenario,
// so the edge names stay on this side of the bus.
func (r *Runner) pushInflows(ctx context.Context) error {
	for i, in := range r.scen.Inflows {
		frame, err := kernel.EncodeInflowCfg(r.smap, 0, i, in.VehsPerHour, in.Probability, in.DepartLane, in.DepartSpeedMS)
		if err != nil {
			return fmt.Errorf("encode inflow %s: %w", in.Name, err)
		}
		if err := r.writer.WriteFrame(ctx, frame); err != nil {
			return fmt.Errorf("transmit inflow %s: %w", in.Name, err)
		}
		r.log.Info("Inflow %d (%s): edge=%s rate=%.0f veh/hr period=%.2fs p=%.3f lane=%s v0=%.1f",
			i, in.Name, in.Edge, in.VehsPerHour, in.PeriodS(), in.Probability, in.DepartLane, in.DepartSpeedMS)
	}
	return nil
}

// runOnce consumes published ticks until one run's worth of simulation time
// has passed, issuing actuation and traffic-light commands each tick.
func (r *Runner) runOnce(ctx context.Context, runIdx int, table *kernel.SnapshotTable, tickCh <-chan struct{}) (*RunStats, float64, error) {
	stats := NewRunStats()
	flow := NewFlowMeter(r.scen.Timing.FlowWindowS)
	controllers := map[string]*vehicleControl{}
	lastPhase := map[string]int{}

	var (
		started       bool
		startT        float64
		lastProcessed uint64
		elapsed       float64
	)

	stale := time.NewTimer(staleRxWarnAfter)
	defer stale.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()

		case <-stale.C:
			r.log.Warn("No vehicle state for %s; is the simulator publishing on %s?",
				staleRxWarnAfter, r.cfg.Interface)
			stale.Reset(staleRxWarnAfter)

		case <-tickCh:
			states, tick := table.All()
			if tick == lastProcessed {
				continue
			}
			lastProcessed = tick
			if !stale.Stop() {
				select {
				case <-stale.C:
				default:
				}
			}
			stale.Reset(staleRxWarnAfter)

			simT := table.SimTime()
			if !started {
				started = true
				startT = simT
				r.log.Debug("Run %d starting at sim time %.2fs", runIdx, startT)
			}
			elapsed = simT - startT

			if err := r.processStep(ctx, states, tick, elapsed, controllers, stats, flow, lastPhase); err != nil {
				return nil, 0, err
			}
			if elapsed >= r.scen.Timing.DurationS {
				return stats, flow.Throughput(elapsed), nil
			}
		}
	}
}

func (r *Runner) processStep(
	ctx context.Context,
	states []control.VehicleState,
	tick uint64,
	simT float64,
	controllers map[string]*vehicleControl,
	stats *RunStats,
	flow *FlowMeter,
	lastPhase map[string]int,
) error {
	rawTick := int(tick % 256)
	ids := make([]string, 0, len(states))
	var recs []EmissionRecord

	for _, st := range states {
		ids = append(ids, st.ID)

		vc, err := r.controllerFor(controllers, st.ID)
		if err != nil {
			r.log.Warn("Skipping vehicle %s: %v", st.ID, err)
			continue
		}

		accel := vc.accel.GetAccel(st)
		laneCmd := vc.lane.GetLaneChange(st)

		frame, err := kernel.EncodeActuatorCmd(r.smap, rawTick, vc.index, accel, laneCmd)
		if err != nil {
			return fmt.Errorf("encode actuator cmd: %w", err)
		}
		if err := r.writer.WriteFrame(ctx, frame); err != nil {
			return fmt.Errorf("transmit actuator cmd: %w", err)
		}
		r.log.Trace("TX t=%.2f %s accel=%.3f %s v=%.2f h=%.2f lane=%d",
			simT, st.ID, accel, control.LaneChangeStr(laneCmd), st.Speed, st.Headway, st.Lane)

		if r.store != nil {
			recs = append(recs, EmissionRecord{
				RunID:         stats.RunID,
				Tick:          tick,
				SimTime:       simT,
				VehicleID:     st.ID,
				Speed:         st.Speed,
				Headway:       st.Headway,
				Lane:          st.Lane,
				AccelCmd:      accel,
				LaneChangeCmd: laneCmd,
			})
		}
	}

	for i, tl := range r.scen.TrafficLights {
		phase, state := tl.PhaseAt(simT)
		if last, ok := lastPhase[tl.NodeID]; ok && last == phase {
			continue
		}
		frame, err := kernel.EncodeTrafficLightCmd(r.smap, rawTick, i, phase, state)
		if err != nil {
			return fmt.Errorf("encode traffic light cmd: %w", err)
		}
		if err := r.writer.WriteFrame(ctx, frame); err != nil {
			return fmt.Errorf("transmit traffic light cmd: %w", err)
		}
		lastPhase[tl.NodeID] = phase
		r.log.Debug("TL %s t=%.1f phase=%d state=%s", tl.NodeID, simT, phase, state)
	}

	stats.Record(simT, states)
	flow.Observe(simT, ids)

	if r.store != nil {
		if err := r.store.InsertBatch(recs); err != nil {
			return fmt.Errorf("store emissions: %w", err)
		}
	}
	return nil
}

// controllerFor returns the cached controller bundle for a vehicle, creating
// it on first sight. Classes are assigned round-robin by vehicle index and
// the noise stream is seeded per vehicle so runs are reproducible.
func (r *Runner) controllerFor(cache map[string]*vehicleControl, id string) (*vehicleControl, error) {
	if vc, ok := cache[id]; ok {
		return vc, nil
	}
	idx, err := kernel.VehicleIndex(id)
	if err != nil {
		return nil, err
	}
	class := &r.scen.Classes[idx%len(r.scen.Classes)]

	idm, err := control.NewIDMController(class.IDM)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", class.Name, err)
	}
	wrapped, err := control.NewActuationWrapper(idm, control.ActuationConfig{
		TimeStepS:     r.scen.Timing.DtS,
		AccelNoiseStd: class.AccelNoiseStd,
		Failsafe:      class.Failsafe,
	}, r.cfg.Seed+int64(idx))
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", class.Name, err)
	}

	var lane control.LaneChanger = control.NoLaneChanger{}
	if class.LanePolicy == LanePolicyStaticRight {
		lane = control.StaticLaneChanger{}
	}

	vc := &vehicleControl{index: idx, class: class, accel: wrapped, lane: lane}
	cache[id] = vc
	r.log.Debug("Vehicle %s assigned class %s (failsafe=%s noise=%.3f lane=%s)",
		id, class.Name, class.Failsafe, class.AccelNoiseStd, class.LanePolicy)
	return vc, nil
}

// receiveLoop decodes vehicle-state frames off the bus and publishes
// completed ticks. Frames that are not vehicle state are ignored.
func (r *Runner) receiveLoop(ctx context.Context, asm *kernel.TickAssembler, tickCh chan<- struct{}) {
	r.log.Debug("RX loop started")
	defer r.log.Debug("RX loop stopped")

	for {
		frame, err := r.reader.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Error("RX error: %v", err)
			select {
			case <-time.After(rxErrorBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		sf, err := kernel.DecodeStateFrame(r.smap, frame)
		if err != nil {
			r.log.Trace("RX skip id=0x%X: %v", uint32(frame.ID), err)
			continue
		}
		if asm.Add(sf) {
			select {
			case tickCh <- struct{}{}:
			default:
			}
		}
	}
}
