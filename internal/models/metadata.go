package models

import (
	"encoding/json"
	"reflect"
	"slices"
	"strings"
)

// Variant is the type-specific part of EventMetadata. Only the variant types
// declared in this package implement it.
type Variant interface {
	variantOf() EventType
}

type SearchMeta struct {
	Query  string `json:"query,omitempty"`
	Engine string `json:"engine,omitempty"`
}

type VisitMeta struct {
	Referrer   string `json:"referrer,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

type NoteMeta struct {
	Content string `json:"content,omitempty"`
}

type BookmarkMeta struct {
	Folder string `json:"folder,omitempty"`
}

type ModeSwitchMeta struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

type ActionMeta struct {
	Action string `json:"action,omitempty"`
	Target string `json:"target,omitempty"`
}

type HighlightMeta struct {
	Selection string `json:"selection,omitempty"`
}

type ScreenshotMeta struct {
	Path string `json:"path,omitempty"`
}

type PrefetchMeta struct{}

type TaskMeta struct {
	Kind     string `json:"kind,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

type AgentMeta struct {
	Goal  string   `json:"goal,omitempty"`
	Steps []string `json:"steps,omitempty"`
}

// SummaryMeta marks a synthetic event that replaced compacted events.
type SummaryMeta struct {
	SourceIDs []string `json:"source_ids,omitempty"`
	Period    string   `json:"period,omitempty"`
}

func (*SearchMeta) variantOf() EventType     { return EventSearch }
func (*VisitMeta) variantOf() EventType      { return EventVisit }
func (*NoteMeta) variantOf() EventType       { return EventNote }
func (*BookmarkMeta) variantOf() EventType   { return EventBookmark }
func (*ModeSwitchMeta) variantOf() EventType { return EventModeSwitch }
func (*ActionMeta) variantOf() EventType     { return EventAction }
func (*HighlightMeta) variantOf() EventType  { return EventHighlight }
func (*ScreenshotMeta) variantOf() EventType { return EventScreenshot }
func (*PrefetchMeta) variantOf() EventType   { return EventPrefetch }
func (*TaskMeta) variantOf() EventType       { return EventTask }
func (*AgentMeta) variantOf() EventType      { return EventAgent }
func (*SummaryMeta) variantOf() EventType    { return EventSummary }

// newVariant returns an empty variant for t, or nil for unknown types.
func newVariant(t EventType) Variant {
	switch t {
	case EventSearch:
		return &SearchMeta{}
	case EventVisit:
		return &VisitMeta{}
	case EventNote:
		return &NoteMeta{}
	case EventBookmark:
		return &BookmarkMeta{}
	case EventModeSwitch:
		return &ModeSwitchMeta{}
	case EventAction:
		return &ActionMeta{}
	case EventHighlight:
		return &HighlightMeta{}
	case EventScreenshot:
		return &ScreenshotMeta{}
	case EventPrefetch:
		return &PrefetchMeta{}
	case EventTask:
		return &TaskMeta{}
	case EventAgent:
		return &AgentMeta{}
	case EventSummary:
		return &SummaryMeta{}
	default:
		return nil
	}
}

// Common holds the metadata keys every event type understands.
type Common struct {
	URL    string   `json:"url,omitempty"`
	Title  string   `json:"title,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	Pinned bool     `json:"pinned,omitempty"`
}

// EventMetadata is a tagged union keyed by the owning event's type.
// Keys that belong to neither Common nor the variant are kept in Extra.
type EventMetadata struct {
	Common
	Variant Variant
	Extra   map[string]any
}

// NewMetadata returns empty metadata bound to the variant for t.
func NewMetadata(t EventType) EventMetadata {
	return EventMetadata{Variant: newVariant(t)}
}

// DecodeMetadata builds typed metadata for t from a flat key/value map.
func DecodeMetadata(t EventType, raw map[string]any) EventMetadata {
	m := NewMetadata(t)
	if len(raw) == 0 {
		return m
	}

	data, err := json.Marshal(raw)
	if err != nil {
		m.Extra = copyMap(raw)
		return m
	}
	_ = json.Unmarshal(data, &m.Common)
	if m.Variant != nil {
		_ = json.Unmarshal(data, m.Variant)
	}
	m.Tags = NormalizeTags(m.Tags)

	known := jsonKeys(m.Common)
	if m.Variant != nil {
		known = append(known, jsonKeys(m.Variant)...)
	}
	for k, v := range raw {
		if slices.Contains(known, k) {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = v
	}
	return m
}

// ToMap flattens the metadata into a single JSON-compatible map.
func (m EventMetadata) ToMap() map[string]any {
	out := copyMap(m.Extra)
	if out == nil {
		out = make(map[string]any)
	}
	mergeStruct(out, m.Common)
	if m.Variant != nil {
		mergeStruct(out, m.Variant)
	}
	return out
}

// Merge overlays patch onto the metadata; keys absent from patch are kept.
func (m EventMetadata) Merge(t EventType, patch map[string]any) EventMetadata {
	flat := m.ToMap()
	for k, v := range patch {
		if v == nil {
			delete(flat, k)
			continue
		}
		flat[k] = v
	}
	return DecodeMetadata(t, flat)
}

// HasAllTags reports whether every tag in want is present.
func (m EventMetadata) HasAllTags(want []string) bool {
	for _, w := range want {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if !slices.Contains(m.Tags, w) {
			return false
		}
	}
	return true
}

// Capability accessors: each reports false when the metadata holds a different variant.
func (m EventMetadata) AsSearch() (SearchMeta, bool)         { return as[SearchMeta](m.Variant) }
func (m EventMetadata) AsVisit() (VisitMeta, bool)           { return as[VisitMeta](m.Variant) }
func (m EventMetadata) AsNote() (NoteMeta, bool)             { return as[NoteMeta](m.Variant) }
func (m EventMetadata) AsBookmark() (BookmarkMeta, bool)     { return as[BookmarkMeta](m.Variant) }
func (m EventMetadata) AsModeSwitch() (ModeSwitchMeta, bool) { return as[ModeSwitchMeta](m.Variant) }
func (m EventMetadata) AsAction() (ActionMeta, bool)         { return as[ActionMeta](m.Variant) }
func (m EventMetadata) AsHighlight() (HighlightMeta, bool)   { return as[HighlightMeta](m.Variant) }
func (m EventMetadata) AsScreenshot() (ScreenshotMeta, bool) { return as[ScreenshotMeta](m.Variant) }
func (m EventMetadata) AsTask() (TaskMeta, bool)             { return as[TaskMeta](m.Variant) }
func (m EventMetadata) AsAgent() (AgentMeta, bool)           { return as[AgentMeta](m.Variant) }
func (m EventMetadata) AsSummary() (SummaryMeta, bool)       { return as[SummaryMeta](m.Variant) }

func as[T any](v Variant) (T, bool) {
	var zero T
	p, ok := any(v).(*T)
	if !ok || p == nil {
		return zero, false
	}
	return *p, true
}

// NormalizeTags lowercases, trims and deduplicates tags, preserving first occurrence order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// mergeStruct writes the non-empty JSON fields of v into dst.
func mergeStruct(dst map[string]any, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return
	}
	for k, val := range fields {
		dst[k] = val
	}
}

// jsonKeys returns the JSON field names declared on a struct or struct pointer.
func jsonKeys(v any) []string {
	rt := reflect.TypeOf(v)
	if rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil
	}
	keys := make([]string, 0, rt.NumField())
	for i := range rt.NumField() {
		tag := rt.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		keys = append(keys, name)
	}
	return keys
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
