package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Timestamp identifies one frame in the catalog. It is the backend's ISO-8601
// string, kept opaque; catalog order is the only ordering relied on.
type Timestamp string

// SlotID is the backend's stable slot identifier. The backend emits integers
// for numeric ids and strings otherwise; both decode into SlotID.
type SlotID string

// UnmarshalJSON accepts a JSON number or string.
func (id *SlotID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = SlotID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("slot_id: %w", err)
	}
	*id = SlotID(n.String())
	return nil
}

// MarshalJSON emits numeric ids as numbers so clients see the backend's shape.
func (id SlotID) MarshalJSON() ([]byte, error) {
	if id.numeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id SlotID) numeric() bool {
	if id == "" {
		return false
	}
	for i, r := range id {
		if r == '-' && i == 0 && len(id) > 1 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Slot is one parking position in a frame. X and Y are absolute pixel
// coordinates and do not change between frames of a session.
type Slot struct {
	SlotID   SlotID  `json:"slot_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Occupied bool    `json:"occupied"`
	Plate    *string `json:"plate"`
	Service  *string `json:"service"`
}

// Frame is a full occupancy snapshot at one timestamp.
type Frame []Slot

// OccupiedCount returns the number of occupied slots.
func (f Frame) OccupiedCount() int {
	n := 0
	for _, s := range f {
		if s.Occupied {
			n++
		}
	}
	return n
}

// Stats is the /stats/{ts} payload.
type Stats struct {
	TotalSlots int `json:"total_slots"`
	Occupied   int `json:"occupied"`
	Vacant     int `json:"vacant"`
}

// TimestampStats is the per-timestamp KPI aggregate from /stats_timestamp/{ts}.
// Averages are null when no vehicle is present.
type TimestampStats struct {
	TotalVehicles          int      `json:"total_vehicles"`
	CurrentOccupancy       int      `json:"current_occupancy"`
	AvgDwellTime           *float64 `json:"avg_dwell_time"`
	MaxDwellTime           *float64 `json:"max_dwell_time"`
	UniqueReservations     int      `json:"unique_reservations"`
	AvgReservationDuration *float64 `json:"avg_reservation_duration"`
}

// Vehicle is one row of /vehicles_at_timestamp/{ts}.
type Vehicle struct {
	PlateNumber             string  `json:"plate_number"`
	Service                 *string `json:"service"`
	EntryTime               string  `json:"entry_time"`
	EntryTimeDisplay        string  `json:"entry_time_display"`
	CurrentDwellTimeMinutes float64 `json:"current_dwell_time_minutes"`
	X                       float64 `json:"x"`
	Y                       float64 `json:"y"`
}

// SlotUtilization counts the timestamps at which a slot was occupied.
type SlotUtilization struct {
	SlotID     SlotID `json:"slot_id"`
	UsageCount int    `json:"usage_count"`
}

// ServiceMix maps a timestamp to per-service vehicle counts.
type ServiceMix map[Timestamp]map[string]int

// OccupancyPoint is one sample of /occupancy_timeline.
type OccupancyPoint struct {
	Timestamp      Timestamp `json:"timestamp"`
	OccupancyCount int       `json:"occupancy_count"`
}

// DwellTime summarises vehicle dwell times in minutes.
type DwellTime struct {
	AvgDwellTime float64   `json:"avg_dwell_time"`
	MaxDwellTime float64   `json:"max_dwell_time"`
	Distribution []float64 `json:"distribution"`
}

// Summary is the whole-dataset aggregate from /summary.
type Summary struct {
	TotalVehicles          int       `json:"total_vehicles"`
	PeakOccupancy          int       `json:"peak_occupancy"`
	PeakTimestamp          Timestamp `json:"peak_timestamp"`
	AvgDwellTime           *float64  `json:"avg_dwell_time"`
	MaxDwellTime           *float64  `json:"max_dwell_time"`
	UniqueReservations     *int      `json:"unique_reservations"`
	AvgReservationDuration *float64  `json:"avg_reservation_duration"`
}

// PlateSlot is one row of /slots_by_plate/{ts}.
type PlateSlot struct {
	SlotID    SlotID    `json:"slot_id"`
	Plate     *string   `json:"plate"`
	Service   *string   `json:"service"`
	Occupied  bool      `json:"occupied"`
	Timestamp Timestamp `json:"timestamp"`
}
