package flight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 4, 7, 15, 30, 0, time.UTC)

func fptr(v float64) *float64 { return &v }

type stateCase struct {
	name string
	f    Flight
}

// Every reachable (status, phase, tower, position) combination
func sampleStates() []stateCase {
	base := Flight{ID: "f", AircraftID: "A1", StudentID: "G1", Version: 1}
	with := func(mod func(*Flight)) Flight {
		f := base
		mod(&f)
		return f
	}
	apron := PositionApron
	p2 := "P2"
	return []stateCase{
		{"draft", with(func(f *Flight) { f.Status, f.Phase = StatusDraft, PhaseOnGround })},
		{"ready", with(func(f *Flight) { f.Status, f.Phase = StatusReady, PhaseOnGround })},
		{"tower on_ground", with(func(f *Flight) { f.Status, f.Phase, f.IsInTower = StatusTower, PhaseOnGround, true })},
		{"tower taxi P2", with(func(f *Flight) {
			f.Status, f.Phase, f.IsInTower, f.GroundPosition = StatusTower, PhaseTaxi, true, &p2
		})},
		{"tower taxi apron", with(func(f *Flight) {
			f.Status, f.Phase, f.IsInTower, f.GroundPosition = StatusTower, PhaseTaxi, true, &apron
		})},
		{"tower on_ground apron", with(func(f *Flight) {
			f.Status, f.Phase, f.IsInTower, f.GroundPosition = StatusTower, PhaseOnGround, true, &apron
		})},
		{"air airborne", with(func(f *Flight) { f.Status, f.Phase, f.IsInTower = StatusAir, PhaseAirborne, true })},
		{"air downwind", with(func(f *Flight) { f.Status, f.Phase, f.IsInTower = StatusAir, PhaseDownwind, true })},
		{"completed", with(func(f *Flight) {
			f.Status, f.Phase, f.IsInTower, f.GroundPosition = StatusCompleted, PhaseShutdown, true, &apron
		})},
	}
}

type opCase struct {
	name    string
	run     func(Flight) (Flight, []Event, error)
	allowed []string
	status  Status
	phase   Phase // empty means "unchanged"
}

func operations() []opCase {
	pos := PositionReport{RadialDeg: fptr(225), DistanceNM: fptr(5), AltitudeFt: fptr(2000), Direction: Inbound}
	return []opCase{
		{"mark ready", func(f Flight) (Flight, []Event, error) { return MarkReady(f, now) },
			[]string{"draft"}, StatusReady, PhaseOnGround},
		{"push", func(f Flight) (Flight, []Event, error) { return PushToTower(f, now, "22") },
			[]string{"ready"}, StatusTower, PhaseOnGround},
		{"start", func(f Flight) (Flight, []Event, error) { return Start(f, now) },
			[]string{"tower on_ground", "tower on_ground apron"}, StatusTower, PhaseTaxi},
		{"taxi P3", func(f Flight) (Flight, []Event, error) { return TaxiToPoint(f, now, "P3") },
			[]string{"tower on_ground", "tower taxi P2", "tower taxi apron", "tower on_ground apron"}, StatusTower, PhaseTaxi},
		{"takeoff", func(f Flight) (Flight, []Event, error) { return RecordTakeoff(f, now) },
			[]string{"tower on_ground", "tower taxi P2", "tower taxi apron", "tower on_ground apron"}, StatusAir, PhaseAirborne},
		{"position", func(f Flight) (Flight, []Event, error) { return RecordPosition(f, now, pos, "22") },
			[]string{"air airborne", "air downwind"}, StatusAir, ""},
		{"go-around", func(f Flight) (Flight, []Event, error) { return RecordGoAround(f, now) },
			[]string{"air airborne", "air downwind"}, StatusAir, PhaseAirborne},
		{"landing", func(f Flight) (Flight, []Event, error) { return RecordLanding(f, now) },
			[]string{"air airborne", "air downwind"}, StatusTower, PhaseOnGround},
		{"after landing circuit", func(f Flight) (Flight, []Event, error) { return TaxiAfterLanding(f, now, AfterLandingCircuit) },
			[]string{"tower on_ground", "tower on_ground apron"}, StatusTower, PhaseOnGround},
		{"shutdown", func(f Flight) (Flight, []Event, error) { return RecordShutdown(f, now) },
			[]string{"tower on_ground apron"}, StatusCompleted, PhaseShutdown},
	}
}

func TestTransitionTable(t *testing.T) {
	for _, op := range operations() {
		for _, st := range sampleStates() {
			t.Run(op.name+"/"+st.name, func(t *testing.T) {
				before := st.f
				next, events, err := op.run(st.f)

				allowed := false
				for _, a := range op.allowed {
					if a == st.name {
						allowed = true
					}
				}
				if !allowed {
					require.Error(t, err)
					assert.True(t, IsPrecondition(err), "want precondition error, got %v", err)
					assert.Equal(t, before, next)
					assert.Empty(t, events)
					return
				}

				require.NoError(t, err)
				assert.NotEmpty(t, events)
				assert.Equal(t, op.status, next.Status)
				if op.phase != "" {
					assert.Equal(t, op.phase, next.Phase)
				} else {
					assert.Equal(t, before.Phase, next.Phase)
				}
				assert.Equal(t, before.Version+1, next.Version)
				assert.Equal(t, now, next.UpdatedAt)
			})
		}
	}
}

func TestNewDraftRequiresAircraftAndIncharge(t *testing.T) {
	_, _, err := NewDraft("f", DraftInput{AircraftID: "A1"}, now)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "ground_incharge_id")

	f, events, err := NewDraft("f", DraftInput{AircraftID: "A1", GroundInchargeID: "G1", PIC: TextPIC("Capt X")}, now)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, f.Status)
	assert.Equal(t, PhaseOnGround, f.Phase)
	assert.Equal(t, "G1", f.StudentID)
	assert.Equal(t, int64(1), f.Version)
	require.Len(t, events, 1)
	assert.Equal(t, "Slot created", events[0].Message)
	assert.Equal(t, "Capt X", events[0].Meta["pic"])
}

func TestPushSnapshotsRunway(t *testing.T) {
	f := Flight{ID: "f", Status: StatusReady, Phase: PhaseOnGround}
	next, events, err := PushToTower(f, now, "04")
	require.NoError(t, err)
	require.NotNil(t, next.RunwayInUse)
	assert.Equal(t, "04", *next.RunwayInUse)
	assert.True(t, next.IsInTower)
	assert.Equal(t, now, *next.PushedToTowerAt)
	assert.Equal(t, EventPushedToTower, events[0].Type)
}

func TestTaxiToPointRejectsUnknownPoint(t *testing.T) {
	f := Flight{ID: "f", Status: StatusTower, Phase: PhaseTaxi, IsInTower: true}
	_, _, err := TaxiToPoint(f, now, "P9")
	assert.True(t, IsValidation(err))

	next, events, err := TaxiToPoint(f, now, "P2")
	require.NoError(t, err)
	assert.Equal(t, "P2", *next.GroundPosition)
	assert.Equal(t, "Taxi hold-short: P2", events[0].Message)
	assert.Equal(t, "P2", events[0].Meta["point"])
}

func TestTakeoffEmitsTwoEventsAndClearsGroundPosition(t *testing.T) {
	p := "P2"
	f := Flight{ID: "f", Status: StatusTower, Phase: PhaseTaxi, IsInTower: true, GroundPosition: &p}
	next, events, err := RecordTakeoff(f, now)
	require.NoError(t, err)
	assert.Nil(t, next.GroundPosition)
	assert.Equal(t, now, *next.TakeoffAt)
	require.Len(t, events, 2)
	assert.Equal(t, EventTakeoff, events[0].Type)
	assert.Equal(t, EventAirborne, events[1].Type)
	// The input row is untouched
	assert.Equal(t, "P2", *f.GroundPosition)
}

func airborne() Flight {
	return Flight{ID: "f", Status: StatusAir, Phase: PhaseAirborne, IsInTower: true}
}

func TestRecordPositionRequiresTriple(t *testing.T) {
	cases := map[string]PositionReport{
		"no radial":   {DistanceNM: fptr(3), AltitudeFt: fptr(2000)},
		"no distance": {RadialDeg: fptr(45), AltitudeFt: fptr(2000)},
		"no altitude": {RadialDeg: fptr(45), DistanceNM: fptr(3)},
	}
	for name, rep := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := RecordPosition(airborne(), now, rep, "22")
			assert.True(t, IsValidation(err))
		})
	}

	_, _, err := RecordPosition(airborne(), now,
		PositionReport{RadialDeg: fptr(45), DistanceNM: fptr(3), AltitudeFt: fptr(2000), Direction: "sideways"}, "22")
	assert.True(t, IsValidation(err))

	_, _, err = RecordPosition(airborne(), now,
		PositionReport{RadialDeg: fptr(45), DistanceNM: fptr(-1), AltitudeFt: fptr(2000)}, "22")
	assert.True(t, IsValidation(err))
}

func TestRecordPositionManual(t *testing.T) {
	next, events, err := RecordPosition(airborne(), now,
		PositionReport{RadialDeg: fptr(585), DistanceNM: fptr(5), AltitudeFt: fptr(2000), Direction: Inbound}, "22")
	require.NoError(t, err)
	assert.Equal(t, 225.0, *next.RadialDeg)
	assert.Equal(t, PhaseAirborne, next.Phase)
	assert.Equal(t, Inbound, next.Direction)
	require.Len(t, events, 1)
	assert.Equal(t, EventPositionReport, events[0].Type)
	assert.Equal(t, "Position: 225°/5nm @ 2000ft (SW - inbound)", events[0].Message)
	assert.Equal(t, "SW", events[0].Meta["sector"])
}

func TestRecordPositionLegPrefill(t *testing.T) {
	next, events, err := RecordPosition(airborne(), now, PositionReport{Leg: "downwind"}, "22")
	require.NoError(t, err)
	assert.Equal(t, 45.0, *next.RadialDeg)
	assert.Equal(t, 3.0, *next.DistanceNM)
	assert.Equal(t, 2000.0, *next.AltitudeFt)
	assert.Equal(t, Outbound, next.Direction)
	assert.Equal(t, PhaseDownwind, next.Phase)
	assert.Equal(t, "Downwind: 45°/3nm @ 2000ft (outbound)", events[0].Message)
	assert.Equal(t, 45.0, events[0].Meta["heading_deg"])
	assert.Equal(t, false, events[0].Meta["circuit_training"])

	cl := airborne()
	cl.TypeOfFlight = TypeCircuit
	_, events, err = RecordPosition(cl, now, PositionReport{Leg: "base"}, "22")
	require.NoError(t, err)
	assert.Equal(t, true, events[0].Meta["circuit_training"])

	// Explicit values win over the pattern defaults
	next, _, err = RecordPosition(airborne(), now, PositionReport{Leg: "downwind", AltitudeFt: fptr(1500)}, "22")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, *next.AltitudeFt)

	_, _, err = RecordPosition(airborne(), now, PositionReport{Leg: "downwind"}, "31")
	assert.True(t, IsValidation(err))
	_, _, err = RecordPosition(airborne(), now, PositionReport{Leg: "overhead"}, "22")
	assert.True(t, IsValidation(err))
}

func TestRecordPositionPhaseTag(t *testing.T) {
	next, events, err := RecordPosition(airborne(), now, PositionReport{
		RadialDeg: fptr(225), DistanceNM: fptr(2), AltitudeFt: fptr(900), Direction: Inbound, PhaseTag: "final",
	}, "22")
	require.NoError(t, err)
	assert.Equal(t, PhaseAirborne, next.Phase)
	require.Len(t, events, 1)
	assert.Equal(t, EventType("final"), events[0].Type)
	assert.Equal(t, "Final: 225°/2nm @ 900ft (SW) - inbound", events[0].Message)
	assert.Len(t, events[0].Meta["envelope_violations"], 1)

	_, events, err = RecordPosition(airborne(), now, PositionReport{
		RadialDeg: fptr(45), DistanceNM: fptr(4), AltitudeFt: fptr(1900), PhaseTag: "approach",
	}, "22")
	require.NoError(t, err)
	assert.Equal(t, "Approach: 45°/4nm @ 1900ft (NE)", events[0].Message)
	assert.NotContains(t, events[0].Meta, "envelope_violations")

	_, _, err = RecordPosition(airborne(), now, PositionReport{
		RadialDeg: fptr(45), DistanceNM: fptr(4), AltitudeFt: fptr(1900), PhaseTag: "overhead",
	}, "22")
	assert.True(t, IsValidation(err))
}

func TestLandingClearsPositionAndCounts(t *testing.T) {
	f := airborne()
	f.RadialDeg, f.DistanceNM, f.AltitudeFt = fptr(225), fptr(1), fptr(500)
	f.Direction = Inbound
	f.LandingCount = 2

	next, events, err := RecordLanding(f, now)
	require.NoError(t, err)
	assert.Equal(t, 3, next.LandingCount)
	assert.Equal(t, StatusTower, next.Status)
	assert.Equal(t, PhaseOnGround, next.Phase)
	assert.False(t, next.HasPosition())
	assert.Empty(t, next.Direction)
	assert.Equal(t, "Landing recorded (total: 3)", events[0].Message)
	assert.Equal(t, 3, events[0].Meta["landing_count"])
}

func TestGoAroundKeepsPosition(t *testing.T) {
	f := airborne()
	f.Phase = PhaseFinal
	f.RadialDeg, f.DistanceNM, f.AltitudeFt = fptr(225), fptr(1), fptr(500)

	next, _, err := RecordGoAround(f, now)
	require.NoError(t, err)
	assert.Equal(t, 1, next.GoAroundCount)
	assert.Equal(t, PhaseAirborne, next.Phase)
	assert.True(t, next.HasPosition())
}

func TestTaxiAfterLanding(t *testing.T) {
	f := Flight{ID: "f", Status: StatusTower, Phase: PhaseOnGround, IsInTower: true, LandingCount: 1}

	_, _, err := TaxiAfterLanding(f, now, "hangar")
	assert.True(t, IsValidation(err))

	next, events, err := TaxiAfterLanding(f, now, AfterLandingApron)
	require.NoError(t, err)
	assert.Equal(t, PositionApron, *next.GroundPosition)
	assert.Equal(t, "Taxiing to apron", events[0].Message)

	next, events, err = TaxiAfterLanding(f, now, AfterLandingCircuit)
	require.NoError(t, err)
	assert.Equal(t, PhaseOnGround, next.Phase)
	assert.Equal(t, "circuit", events[0].Meta["action"])

	// Going back to the circuit forgets an earlier apron decision
	onApron, _, err := TaxiAfterLanding(f, now, AfterLandingApron)
	require.NoError(t, err)
	next, _, err = TaxiAfterLanding(onApron, now, AfterLandingCircuit)
	require.NoError(t, err)
	assert.Nil(t, next.GroundPosition)
	_, _, err = RecordShutdown(next, now)
	assert.True(t, IsPrecondition(err))
}

func TestShutdownCompletes(t *testing.T) {
	apron := PositionApron
	f := Flight{ID: "f", Status: StatusTower, Phase: PhaseOnGround, IsInTower: true, GroundPosition: &apron}
	next, events, err := RecordShutdown(f, now)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, next.Status)
	assert.Equal(t, PhaseShutdown, next.Phase)
	assert.Equal(t, now, *next.CompletedAt)
	require.Len(t, events, 2)
	assert.Equal(t, EventShutdown, events[0].Type)
	assert.Equal(t, EventCompleted, events[1].Type)

	_, _, err = RecordShutdown(next, now)
	assert.True(t, IsPrecondition(err))
}

func TestShutdownRequiresStopOnApron(t *testing.T) {
	f := Flight{ID: "f", Status: StatusReady, Phase: PhaseOnGround}
	var err error
	for _, step := range []func(Flight) (Flight, []Event, error){
		func(f Flight) (Flight, []Event, error) { return PushToTower(f, now, "22") },
		func(f Flight) (Flight, []Event, error) { return Start(f, now) },
		func(f Flight) (Flight, []Event, error) { return TaxiToPoint(f, now, PositionApron) },
	} {
		f, _, err = step(f)
		require.NoError(t, err)
	}
	require.Equal(t, PhaseTaxi, f.Phase)
	require.Equal(t, PositionApron, *f.GroundPosition)

	next, events, err := RecordShutdown(f, now)
	require.Error(t, err)
	assert.True(t, IsPrecondition(err))
	assert.Contains(t, err.Error(), "phase=taxi")
	assert.Equal(t, f, next)
	assert.Empty(t, events)
}

func TestPreconditionMessage(t *testing.T) {
	_, _, err := RecordTakeoff(Flight{ID: "f9", Status: StatusAir, Phase: PhaseAirborne, IsInTower: true}, now)
	require.Error(t, err)
	assert.Equal(t,
		"cannot record takeoff flight f9: requires status=tower (status=air, phase=airborne, in_tower=true)",
		err.Error())
}
