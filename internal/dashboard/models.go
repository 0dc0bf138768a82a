package dashboard

import (
	"lotplayback/internal/analytics"
	"lotplayback/internal/playback"
)

// SessionID uniquely identifies a playback session.
type SessionID string

// UpdateKind says what changed in a pushed Update.
type UpdateKind string

const (
	UpdateSnapshot   UpdateKind = "snapshot"
	UpdateFrame      UpdateKind = "frame"
	UpdateAggregates UpdateKind = "aggregates"
	UpdatePlayback   UpdateKind = "playback"
)

// SlotView is a slot as shown to viewers: raw backend fields plus the
// reading-order number.
type SlotView struct {
	analytics.Slot
	DisplayID analytics.SlotID `json:"display_id"`
}

// Snapshot is the full view state of a session.
type Snapshot struct {
	SessionID         SessionID           `json:"session_id"`
	Playback          playback.State      `json:"playback"`
	SelectedTimestamp analytics.Timestamp `json:"selected_timestamp,omitempty"`
	Slots             []SlotView          `json:"slots"`
	OccupiedCount     int                 `json:"occupied_count"`

	// Aggregates belong to AggregatesTimestamp, which lags the selected
	// timestamp while they load and stays put when a load fails.
	AggregatesTimestamp analytics.Timestamp       `json:"aggregates_timestamp,omitempty"`
	Stats               *analytics.Stats          `json:"stats,omitempty"`
	KPI                 *analytics.TimestampStats `json:"kpi,omitempty"`
	Vehicles            []analytics.Vehicle       `json:"vehicles,omitempty"`
	SlotsByPlate        []analytics.PlateSlot     `json:"slots_by_plate,omitempty"`
}

// Update is one message on a session's live stream.
type Update struct {
	Kind     UpdateKind `json:"kind"`
	Snapshot Snapshot   `json:"snapshot"`
}

// SlotDisplay answers a display-id lookup.
type SlotDisplay struct {
	SlotID    analytics.SlotID `json:"slot_id"`
	DisplayID analytics.SlotID `json:"display_id"`
	Mapped    bool             `json:"mapped"`
}

// Overview holds the whole-dataset aggregates. A field is nil when its
// backend call failed.
type Overview struct {
	Summary           *analytics.Summary          `json:"summary,omitempty"`
	OccupancyTimeline []analytics.OccupancyPoint  `json:"occupancy_timeline,omitempty"`
	DwellTime         *analytics.DwellTime        `json:"dwell_time,omitempty"`
	Utilization       []analytics.SlotUtilization `json:"utilization,omitempty"`
	ServiceMix        analytics.ServiceMix        `json:"service_mix,omitempty"`
}
