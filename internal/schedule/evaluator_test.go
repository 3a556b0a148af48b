package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/housesprinkler/controller/internal/domain"
	"github.com/housesprinkler/controller/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLauncher struct {
	launches []string
	running  map[string]bool
	result   bool
}

func (f *fakeLauncher) Launch(programName string, manual bool, now int64) bool {
	f.launches = append(f.launches, programName)
	return f.result
}

func (f *fakeLauncher) Running(programName string) bool { return f.running[programName] }

type fakeNotifier struct{ changed int }

func (f *fakeNotifier) MarkChanged() { f.changed++ }

func midnightUTC(daysFromEpoch int, hour, minute int) int64 {
	return int64(daysFromEpoch)*86400 + int64(hour)*3600 + int64(minute)*60
}

func TestEvaluate_OnceFiresWithinFirstMinuteAfterBegin(t *testing.T) {
	launcher := &fakeLauncher{running: map[string]bool{}, result: true}
	notifier := &fakeNotifier{}
	begin := midnightUTC(19200, 6, 0) // arbitrary day, 06:00
	s := domain.Schedule{
		ID: uuid.New(), ProgramName: "P1", Enabled: true,
		Begin: begin - 30, Start: domain.TimeOfDay{Hour: 6, Minute: 0}, Repeat: domain.RepeatOnce,
	}
	e := New([]domain.Schedule{s}, launcher, notifier, events.NewBus(zerolog.Nop()), zerolog.Nop(), true, domain.RainDelay{})

	e.Periodic(begin)

	require.Len(t, launcher.launches, 1)
	assert.Equal(t, "P1", launcher.launches[0])
	assert.Equal(t, 1, notifier.changed)
}

func TestEvaluate_DisabledScheduleNeverFires(t *testing.T) {
	launcher := &fakeLauncher{running: map[string]bool{}, result: true}
	s := domain.Schedule{ID: uuid.New(), ProgramName: "P1", Enabled: false, Start: domain.TimeOfDay{Hour: 0, Minute: 0}, Repeat: domain.RepeatOnce}
	e := New([]domain.Schedule{s}, launcher, nil, nil, zerolog.Nop(), true, domain.RainDelay{})

	e.Periodic(0)

	assert.Empty(t, launcher.launches)
}

func TestEvaluate_SkipsWhenProgramAlreadyRunning(t *testing.T) {
	launcher := &fakeLauncher{running: map[string]bool{"P1": true}, result: true}
	s := domain.Schedule{ID: uuid.New(), ProgramName: "P1", Enabled: true, Begin: -30, Start: domain.TimeOfDay{Hour: 0, Minute: 0}, Repeat: domain.RepeatOnce}
	e := New([]domain.Schedule{s}, launcher, nil, nil, zerolog.Nop(), true, domain.RainDelay{})

	e.Periodic(0)

	assert.Empty(t, launcher.launches)
}

func TestEvaluate_BeforeBeginDoesNotFire(t *testing.T) {
	launcher := &fakeLauncher{running: map[string]bool{}, result: true}
	s := domain.Schedule{ID: uuid.New(), ProgramName: "P1", Enabled: true, Begin: 100, Start: domain.TimeOfDay{Hour: 0, Minute: 0}, Repeat: domain.RepeatOnce}
	e := New([]domain.Schedule{s}, launcher, nil, nil, zerolog.Nop(), true, domain.RainDelay{})

	e.Periodic(0)

	assert.Empty(t, launcher.launches)
}

func TestEvaluate_AfterUntilDoesNotFire(t *testing.T) {
	launcher := &fakeLauncher{running: map[string]bool{}, result: true}
	s := domain.Schedule{ID: uuid.New(), ProgramName: "P1", Enabled: true, Begin: -1000, Until: 50, Start: domain.TimeOfDay{Hour: 0, Minute: 0}, Repeat: domain.RepeatOnce}
	e := New([]domain.Schedule{s}, launcher, nil, nil, zerolog.Nop(), true, domain.RainDelay{})

	e.Periodic(100)

	assert.Empty(t, launcher.launches)
}

func TestEvaluate_WeeklyRespectsDaysMask(t *testing.T) {
	launcher := &fakeLauncher{running: map[string]bool{}, result: true}
	// 1970-01-01 was a Thursday (weekday 4).
	thursday := midnightUTC(0, 7, 30)
	s := domain.Schedule{
		ID: uuid.New(), ProgramName: "P1", Enabled: true, Begin: -1,
		Start: domain.TimeOfDay{Hour: 7, Minute: 30}, Repeat: domain.RepeatWeekly,
	}
	s.Days[4] = true
	e := New([]domain.Schedule{s}, launcher, nil, nil, zerolog.Nop(), true, domain.RainDelay{})

	e.Periodic(thursday)

	assert.Len(t, launcher.launches, 1)
}

func TestEvaluate_WeeklySkipsUnmarkedDay(t *testing.T) {
	launcher := &fakeLauncher{running: map[string]bool{}, result: true}
	thursday := midnightUTC(0, 7, 30)
	s := domain.Schedule{
		ID: uuid.New(), ProgramName: "P1", Enabled: true, Begin: -1,
		Start: domain.TimeOfDay{Hour: 7, Minute: 30}, Repeat: domain.RepeatWeekly,
	}
	// Days left all false.
	e := New([]domain.Schedule{s}, launcher, nil, nil, zerolog.Nop(), true, domain.RainDelay{})

	e.Periodic(thursday)

	assert.Empty(t, launcher.launches)
}

func TestEvaluate_DailyRespectsInterval(t *testing.T) {
	launcher := &fakeLauncher{running: map[string]bool{}, result: true}
	start := midnightUTC(10, 5, 0)
	s := domain.Schedule{
		ID: uuid.New(), ProgramName: "P1", Enabled: true, Begin: -1,
		Start: domain.TimeOfDay{Hour: 5, Minute: 0}, Repeat: domain.RepeatDaily, Interval: 2,
		LastLaunch: start - 86400, // fired yesterday, interval is every 2 days
	}
	e := New([]domain.Schedule{s}, launcher, nil, nil, zerolog.Nop(), true, domain.RainDelay{})

	e.Periodic(start)
	assert.Empty(t, launcher.launches, "should not fire after only one day when interval is two")

	e.Refresh([]domain.Schedule{{
		ID: s.ID, ProgramName: "P1", Enabled: true, Begin: -1,
		Start: domain.TimeOfDay{Hour: 5, Minute: 0}, Repeat: domain.RepeatDaily, Interval: 2,
		LastLaunch: start - 2*86400,
	}})
	e.Periodic(start)
	assert.Len(t, launcher.launches, 1)
}

type fakeIntervalSource struct {
	programs  map[string]domain.Program
	intervals map[string]domain.IntervalScale
}

func (f *fakeIntervalSource) ProgramByName(name string) (domain.Program, bool) {
	p, ok := f.programs[name]
	return p, ok
}

func (f *fakeIntervalSource) IntervalByName(name string) (domain.IntervalScale, bool) {
	iv, ok := f.intervals[name]
	return iv, ok
}

func TestEvaluate_DailyGateUsesIntervalTableWhenProgramNamesOne(t *testing.T) {
	launcher := &fakeLauncher{running: map[string]bool{}, result: true}
	start := midnightUTC(10, 5, 0)
	s := domain.Schedule{
		ID: uuid.New(), ProgramName: "P1", Enabled: true, Begin: -1,
		Start: domain.TimeOfDay{Hour: 5, Minute: 0}, Repeat: domain.RepeatDaily, Interval: 1,
		LastLaunch: start - 86400, // one day elapsed; fixed interval of 1 would fire
	}
	e := New([]domain.Schedule{s}, launcher, nil, nil, zerolog.Nop(), true, domain.RainDelay{})
	e.SetIntervalSource(&fakeIntervalSource{
		programs:  map[string]domain.Program{"P1": {Name: "P1", IntervalName: "Default"}},
		intervals: map[string]domain.IntervalScale{"Default": {Name: "Default", ByIndex: [11]int{7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7}}},
	}, func(time.Time) domain.IndexValue { return domain.IndexValue{Value: 0} })

	e.Periodic(start)

	assert.Empty(t, launcher.launches, "a low watering index should widen the interval to 7 days, overriding the fixed 1-day interval")
}

func TestEvaluate_RainDelayBlocksLaunch(t *testing.T) {
	launcher := &fakeLauncher{running: map[string]bool{}, result: true}
	s := domain.Schedule{ID: uuid.New(), ProgramName: "P1", Enabled: true, Begin: -1, Start: domain.TimeOfDay{Hour: 0, Minute: 0}, Repeat: domain.RepeatOnce}
	e := New([]domain.Schedule{s}, launcher, nil, nil, zerolog.Nop(), true, domain.RainDelay{Enabled: true, Deadline: 100})

	e.Periodic(0)

	assert.Empty(t, launcher.launches)
}

func TestEvaluate_GlobalSwitchOffBlocksLaunch(t *testing.T) {
	launcher := &fakeLauncher{running: map[string]bool{}, result: true}
	s := domain.Schedule{ID: uuid.New(), ProgramName: "P1", Enabled: true, Begin: -1, Start: domain.TimeOfDay{Hour: 0, Minute: 0}, Repeat: domain.RepeatOnce}
	e := New([]domain.Schedule{s}, launcher, nil, nil, zerolog.Nop(), false, domain.RainDelay{})

	e.Periodic(0)

	assert.Empty(t, launcher.launches)
}

func TestPeriodic_EvaluatesAtMostOncePerMinute(t *testing.T) {
	launcher := &fakeLauncher{running: map[string]bool{}, result: true}
	s := domain.Schedule{ID: uuid.New(), ProgramName: "P1", Enabled: true, Begin: -1, Start: domain.TimeOfDay{Hour: 0, Minute: 0}, Repeat: domain.RepeatOnce}
	e := New([]domain.Schedule{s}, launcher, nil, nil, zerolog.Nop(), true, domain.RainDelay{})

	e.Periodic(0)
	e.Periodic(10)
	e.Periodic(30)

	assert.Len(t, launcher.launches, 1)
}

func TestSetRain_StartsAndExtendsDelay(t *testing.T) {
	e := New(nil, &fakeLauncher{running: map[string]bool{}}, nil, nil, zerolog.Nop(), true, domain.RainDelay{})

	e.SetRain(100, 0)
	assert.Equal(t, int64(100), e.Rain().Deadline)

	e.SetRain(50, 10)
	assert.Equal(t, int64(150), e.Rain().Deadline)

	e.SetRain(0, 10)
	assert.Equal(t, int64(0), e.Rain().Deadline)
}

func TestRainEnable_DisablingClearsDeadline(t *testing.T) {
	e := New(nil, &fakeLauncher{running: map[string]bool{}}, nil, nil, zerolog.Nop(), true, domain.RainDelay{Enabled: true, Deadline: 500})

	e.RainEnable(false)

	assert.False(t, e.Rain().Enabled)
	assert.Equal(t, int64(0), e.Rain().Deadline)
}

func TestSwitch_Toggles(t *testing.T) {
	e := New(nil, &fakeLauncher{running: map[string]bool{}}, nil, nil, zerolog.Nop(), true, domain.RainDelay{})

	assert.False(t, e.Switch())
	assert.False(t, e.GlobalOn())
	assert.True(t, e.Switch())
	assert.True(t, e.GlobalOn())
}

func TestScheduleByID_FindsAndMisses(t *testing.T) {
	id := uuid.New()
	e := New([]domain.Schedule{{ID: id, ProgramName: "P1"}}, &fakeLauncher{running: map[string]bool{}}, nil, nil, zerolog.Nop(), true, domain.RainDelay{})

	found, ok := e.ScheduleByID(id)
	require.True(t, ok)
	assert.Equal(t, "P1", found.ProgramName)

	_, ok = e.ScheduleByID(uuid.New())
	assert.False(t, ok)
}
