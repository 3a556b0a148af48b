package app

import (
	"testing"

	"github.com/google/uuid"
	"github.com/housesprinkler/controller/internal/configdoc"
	"github.com/housesprinkler/controller/internal/control"
	"github.com/housesprinkler/controller/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestApplyPersistedState_RestoresLastLaunchByID(t *testing.T) {
	id := uuid.New()
	doc := &configdoc.Document{
		Schedules: []domain.Schedule{
			{ID: id, ProgramName: "front-lawn"},
			{ID: uuid.New(), ProgramName: "back-lawn"},
		},
	}
	persisted := domain.PersistedState{
		On: true,
		Schedule: []domain.PersistedScheduleEntry{
			{ID: id, Launched: 1700000000},
		},
	}

	applyPersistedState(doc, persisted)

	assert.Equal(t, int64(1700000000), doc.Schedules[0].LastLaunch)
	assert.Zero(t, doc.Schedules[1].LastLaunch, "unmatched schedule should be left untouched")
}

func TestApplyPersistedState_NoMatchLeavesScheduleUntouched(t *testing.T) {
	doc := &configdoc.Document{
		Schedules: []domain.Schedule{{ID: uuid.New(), LastLaunch: 42}},
	}
	applyPersistedState(doc, domain.PersistedState{})

	assert.Equal(t, int64(42), doc.Schedules[0].LastLaunch)
}

func TestDeclareControlPoints_DeclaresZonesAndDistinctFeeds(t *testing.T) {
	doc := &configdoc.Document{
		Zones: []domain.Zone{
			{Name: "front-lawn", Feed: "well-pump"},
			{Name: "back-lawn", Feed: "well-pump"},
			{Name: "drip-line"},
		},
		Controls: []configdoc.ControlDecl{{Name: "city-water"}},
	}

	core := &SprinklerCore{control: control.New(nil, nil, zerolog.Nop())}
	core.declareControlPoints(doc)

	status := core.control.Status()
	assert.Len(t, status.Points, 5) // 3 zones + 2 distinct feeds (well-pump shared by two zones, counted once)

	assert.Equal(t, domain.ControlZone, status.Points["front-lawn"].Type)
	assert.Equal(t, domain.ControlZone, status.Points["drip-line"].Type)
	assert.Equal(t, domain.ControlFeed, status.Points["well-pump"].Type)
	assert.Equal(t, domain.ControlFeed, status.Points["city-water"].Type)
}

func TestDeclareControlPoints_ResetsPreviousDeclarations(t *testing.T) {
	core := &SprinklerCore{control: control.New(nil, nil, zerolog.Nop())}
	core.declareControlPoints(&configdoc.Document{
		Zones: []domain.Zone{{Name: "stale-zone"}},
	})
	core.declareControlPoints(&configdoc.Document{
		Zones: []domain.Zone{{Name: "fresh-zone"}},
	})

	status := core.control.Status()
	_, staleStillPresent := status.Points["stale-zone"]
	assert.False(t, staleStillPresent)
	_, freshPresent := status.Points["fresh-zone"]
	assert.True(t, freshPresent)
}
