package chunker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pedjoni/idiorag/internal/domain"
)

// Fishing log chunking modes
const (
	FishingModeHybrid      = "hybrid"
	FishingModeEventOnly   = "event_only"
	FishingModeSessionOnly = "session_only"
)

// FishingLogStrategy chunks a structured fishing log (JSON) into one
// session summary and one self-contained chunk per event.
type FishingLogStrategy struct {
	mode           string
	includeWeather bool
}

// NewFishingLogStrategy creates a fishing log strategy.
func NewFishingLogStrategy(mode string, includeWeather bool) (*FishingLogStrategy, error) {
	switch mode {
	case FishingModeHybrid, FishingModeEventOnly, FishingModeSessionOnly:
	default:
		return nil, fmt.Errorf("invalid fishing log mode %q", mode)
	}
	return &FishingLogStrategy{mode: mode, includeWeather: includeWeather}, nil
}

type fishingLog struct {
	Session  fields   `json:"session"`
	Location fields   `json:"location"`
	Weather  fields   `json:"weather"`
	Events   []fields `json:"events"`
}

// fields is a loosely typed JSON object from the upstream app.
type fields map[string]any

func (f fields) get(key string) any {
	if f == nil {
		return nil
	}
	return f[key]
}

func (f fields) str(key, fallback string) string {
	switch v := f.get(key).(type) {
	case nil:
		return fallback
	case string:
		if v == "" {
			return fallback
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Chunk implements Strategy.
func (s *FishingLogStrategy) Chunk(content, documentID, ownerID string, extra map[string]any) ([]domain.Chunk, error) {
	var log fishingLog
	if err := json.Unmarshal([]byte(content), &log); err != nil {
		return nil, fmt.Errorf("invalid JSON in fishing log: %w", err)
	}
	if !s.includeWeather {
		log.Weather = nil
	}

	var chunks []domain.Chunk
	add := func(text string, md map[string]any) {
		md["chunk_index"] = len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:            uuid.NewString(),
			Text:          text,
			Metadata:      md,
			BackReference: documentID,
			Position:      len(chunks),
		})
	}

	if s.mode != FishingModeEventOnly {
		add(s.sessionText(log), s.sessionMetadata(log, documentID, ownerID, extra))
	}
	if s.mode != FishingModeSessionOnly {
		for i, ev := range log.Events {
			add(s.eventText(log, ev, i), s.eventMetadata(log, ev, i, documentID, ownerID, extra))
		}
	}

	return chunks, nil
}

func countEvents(events []fields, eventType string) int {
	n := 0
	for _, e := range events {
		if e.get("event_type") == eventType {
			n++
		}
	}
	return n
}

func (s *FishingLogStrategy) sessionText(log fishingLog) string {
	sess, loc := log.Session, log.Location

	var b strings.Builder
	b.WriteString("Fishing Session Summary\n")
	fmt.Fprintf(&b, "Date: %s\n", sess.str("date", "Unknown date"))
	fmt.Fprintf(&b, "Location: %s\n", loc.str("bow_name", "Unknown location"))
	fmt.Fprintf(&b, "Target Species: %s\n", loc.str("target_fish_name", "Multiple species"))
	fmt.Fprintf(&b, "Duration: %s hours\n", sess.str("hours_fishing", "0"))
	fmt.Fprintf(&b, "Local Rating: %s/100 (Score: %s)\n", sess.str("local_rating", "N/A"), sess.str("score", "0"))
	fmt.Fprintf(&b, "Water Temperature: %s°%s\n", sess.str("water_temperature", "N/A"), sess.str("water_temp_unit", "F"))
	fmt.Fprintf(&b, "Anglers: %s", sess.str("number_of_anglers", "1"))
	if with := sess.str("fished_with", ""); with != "" {
		fmt.Fprintf(&b, " (Fished with: %s)", with)
	}
	b.WriteString("\n")
	if w := log.Weather; len(w) > 0 {
		fmt.Fprintf(&b, "Weather: %s°C, Pressure %s hPa, Wind %s km/h, Cloud Cover %s%%\n",
			w.str("mean_temperature", "N/A"), w.str("mean_pressure", "N/A"),
			w.str("mean_wind_speed", "N/A"), w.str("mean_cloud_cover", "N/A"))
	}
	b.WriteString("\nActivity Summary:\n")
	fmt.Fprintf(&b, "- Catches: %d\n", countEvents(log.Events, "catch"))
	fmt.Fprintf(&b, "- Follows: %d\n", countEvents(log.Events, "follow"))
	fmt.Fprintf(&b, "- Strikes: %d\n", countEvents(log.Events, "strike"))
	fmt.Fprintf(&b, "- Total Events: %d", len(log.Events))
	if comments := sess.str("comments", ""); comments != "" {
		fmt.Fprintf(&b, "\n\nSession Notes: %s", comments)
	}
	return b.String()
}

func (s *FishingLogStrategy) eventText(log fishingLog, ev fields, i int) string {
	sess, loc := log.Session, log.Location

	lines := []string{
		fmt.Sprintf("Fishing Event #%d - %s", i+1, strings.ToUpper(ev.str("event_type", "unknown"))),
		fmt.Sprintf("Date: %s at %s", sess.str("date", "Unknown date"), ev.str("event_time", "Unknown time")),
		fmt.Sprintf("Location: %s", loc.str("bow_name", "Unknown location")),
		fmt.Sprintf("Session Rating: %s/100", sess.str("local_rating", "N/A")),
		"",
		fmt.Sprintf("Fish: %s", ev.str("fish_type_name", "Unknown species")),
	}
	if length := ev.str("length", ""); length != "" {
		size := fmt.Sprintf("Size: %s %s", length, ev.str("length_unit_name", "in"))
		if weight := ev.str("weight", ""); weight != "" {
			size += fmt.Sprintf(", %s %s", weight, ev.str("weight_unit_name", "lbs"))
		}
		lines = append(lines, size)
	}
	lines = append(lines, "", fmt.Sprintf("Lure: %s", ev.str("lure_type_name", "Unknown lure")))
	if desc := ev.str("lure_description", ""); desc != "" {
		lines = append(lines, "Lure Description: "+desc)
	}
	lines = append(lines, "", fmt.Sprintf("Structure: %s", ev.str("structure_type_name", "Unknown structure")))
	if desc := ev.str("structure_description", ""); desc != "" {
		lines = append(lines, "Structure Details: "+desc)
	}
	if depth := ev.str("depth", ""); depth != "" {
		d := fmt.Sprintf("Depth: %sft", depth)
		if r := ev.str("depth_range", ""); r != "" {
			d += fmt.Sprintf(" (±%sft)", r)
		}
		lines = append(lines, d)
	}
	lines = append(lines, "", fmt.Sprintf("Water Temperature: %s°%s",
		sess.str("water_temperature", "N/A"), sess.str("water_temp_unit", "F")))

	if w := log.Weather; len(w) > 0 {
		lines = append(lines,
			"",
			"Weather Conditions:",
			fmt.Sprintf("- Air Temperature: %s°C", w.str("mean_temperature", "N/A")),
			fmt.Sprintf("- Pressure: %s hPa", w.str("mean_pressure", "N/A")),
			fmt.Sprintf("- Wind: %s km/h at %s°", w.str("mean_wind_speed", "N/A"), w.str("dominant_wind_direction", "N/A")),
			fmt.Sprintf("- Cloud Cover: %s%%", w.str("mean_cloud_cover", "N/A")),
		)
	}
	if comments := ev.str("comments", ""); comments != "" {
		lines = append(lines, "", "Notes: "+comments)
	}
	return strings.Join(lines, "\n")
}

func (s *FishingLogStrategy) sessionMetadata(log fishingLog, documentID, ownerID string, extra map[string]any) map[string]any {
	md := map[string]any{
		"chunk_type":        "session_summary",
		"bow_id":            log.Location.get("bow_id"),
		"bow_name":          log.Location.get("bow_name"),
		"target_fish_name":  log.Location.get("target_fish_name"),
		"local_rating":      log.Session.get("local_rating"),
		"score":             log.Session.get("score"),
		"hours_fishing":     log.Session.get("hours_fishing"),
		"water_temperature": log.Session.get("water_temperature"),
		"number_of_anglers": log.Session.get("number_of_anglers"),
		"total_events":      len(log.Events),
		"catches":           countEvents(log.Events, "catch"),
		"follows":           countEvents(log.Events, "follow"),
		"strikes":           countEvents(log.Events, "strike"),
	}
	addTemporal(md, log.Session.str("date", ""))
	addWeather(md, log.Weather)
	return finishMetadata(md, documentID, ownerID, extra)
}

func (s *FishingLogStrategy) eventMetadata(log fishingLog, ev fields, i int, documentID, ownerID string, extra map[string]any) map[string]any {
	md := map[string]any{
		"chunk_type":            "fishing_event",
		"event_index":           i,
		"event_type":            ev.get("event_type"),
		"event_id":              ev.get("event_id"),
		"event_time":            ev.get("event_time"),
		"fish_type_id":          ev.get("fish_type_id"),
		"fish_type_name":        ev.get("fish_type_name"),
		"fish_length":           ev.get("length"),
		"fish_weight":           ev.get("weight"),
		"lure_type_id":          ev.get("lure_type_id"),
		"lure_type_name":        ev.get("lure_type_name"),
		"lure_description":      ev.get("lure_description"),
		"structure_type_id":     ev.get("structure_type_id"),
		"structure_type_name":   ev.get("structure_type_name"),
		"structure_description": ev.get("structure_description"),
		"depth":                 ev.get("depth"),
		"depth_range":           ev.get("depth_range"),
		"bow_id":                log.Location.get("bow_id"),
		"bow_name":              log.Location.get("bow_name"),
		"local_rating":          log.Session.get("local_rating"),
		"water_temperature":     log.Session.get("water_temperature"),
	}
	addTemporal(md, log.Session.str("date", ""))
	addWeather(md, log.Weather)
	return finishMetadata(md, documentID, ownerID, extra)
}

// finishMetadata drops unset fields, then layers extra and the ownership keys on top.
func finishMetadata(md map[string]any, documentID, ownerID string, extra map[string]any) map[string]any {
	for k, v := range md {
		if v == nil {
			delete(md, k)
		}
	}
	for k, v := range BaseMetadata(documentID, ownerID, extra) {
		md[k] = v
	}
	return md
}

func addWeather(md map[string]any, w fields) {
	if len(w) == 0 {
		return
	}
	md["weather_mean_temp"] = w.get("mean_temperature")
	md["weather_mean_pressure"] = w.get("mean_pressure")
	md["weather_mean_wind_speed"] = w.get("mean_wind_speed")
	md["weather_wind_direction"] = w.get("dominant_wind_direction")
	md["weather_cloud_cover"] = w.get("mean_cloud_cover")
}

func addTemporal(md map[string]any, date string) {
	if date == "" {
		return
	}
	md["date"] = date
	t, ok := parseLogDate(date)
	if !ok {
		return
	}
	md["year"] = t.Year()
	md["month"] = int(t.Month())
	md["season"] = season(t.Month())
}

func parseLogDate(date string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, date); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func season(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "fall"
	}
}
