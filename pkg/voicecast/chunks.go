package voicecast

import (
	"sort"
	"time"
)

// ChunkEvents holds the ordered audio chunk events of one broadcast
// lineage. Ordering is by sequence number where available, by timestamp
// otherwise. Not safe for concurrent use; Playback serializes access.
type ChunkEvents struct {
	events []*Event
}

func NewChunkEvents() *ChunkEvents {
	return &ChunkEvents{}
}

// Add inserts the event in order. Events without id and duplicates are
// ignored. Returns true when the set changed.
func (c *ChunkEvents) Add(event *Event) bool {
	if event == nil || event.ID == "" {
		return false
	}
	for _, existing := range c.events {
		if existing.ID == event.ID {
			return false
		}
	}

	c.events = append(c.events, event)
	sort.SliceStable(c.events, func(i, j int) bool {
		si, sj := c.events[i].ChunkSequence(), c.events[j].ChunkSequence()
		if si > 0 && sj > 0 && si != sj {
			return si < sj
		}
		return c.events[i].Timestamp.Before(c.events[j].Timestamp)
	})
	return true
}

// Events returns the chunks in playback order.
func (c *ChunkEvents) Events() []*Event {
	out := make([]*Event, len(c.events))
	copy(out, c.events)
	return out
}

// Len returns the number of known chunks.
func (c *ChunkEvents) Len() int {
	return len(c.events)
}

// First returns the first chunk, or nil.
func (c *ChunkEvents) First() *Event {
	if len(c.events) == 0 {
		return nil
	}
	return c.events[0]
}

// Last returns the last chunk, or nil.
func (c *ChunkEvents) Last() *Event {
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

// Next returns the chunk after the given one, or nil.
func (c *ChunkEvents) Next(event *Event) *Event {
	for i, existing := range c.events {
		if event != nil && existing.ID == event.ID {
			if i+1 < len(c.events) {
				return c.events[i+1]
			}
			return nil
		}
	}
	return nil
}

// SequenceFor returns the chunk's announced sequence number, falling back
// to its 1-based position in the ordered set.
func (c *ChunkEvents) SequenceFor(event *Event) int {
	if seq := event.ChunkSequence(); seq > 0 {
		return seq
	}
	for i, existing := range c.events {
		if event != nil && existing.ID == event.ID {
			return i + 1
		}
	}
	return 0
}

// Length returns the total duration of all known chunks.
func (c *ChunkEvents) Length() time.Duration {
	var total time.Duration
	for _, event := range c.events {
		total += event.ChunkDuration()
	}
	return total
}

// LengthTo returns the summed duration of all chunks before the given one.
func (c *ChunkEvents) LengthTo(event *Event) time.Duration {
	var total time.Duration
	for _, existing := range c.events {
		if event != nil && existing.ID == event.ID {
			break
		}
		total += existing.ChunkDuration()
	}
	return total
}

// FindByTime returns the chunk containing the given playback position, or
// nil when the position lies beyond all known chunks.
func (c *ChunkEvents) FindByTime(position time.Duration) *Event {
	if position < 0 {
		return c.First()
	}
	var elapsed time.Duration
	for _, event := range c.events {
		elapsed += event.ChunkDuration()
		if position < elapsed {
			return event
		}
	}
	return nil
}
