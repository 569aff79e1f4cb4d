package state

import (
	"time"
)

// DayKeyFormat is the calendar day key used for daily counter rollover.
const DayKeyFormat = "2006-01-02"

// maxUsedImages bounds the remembered used-image list.
const maxUsedImages = 100

// DailyCounters tracks how many actions were taken on a single calendar day.
type DailyCounters struct {
	Date       string `json:"date"`
	TextPosts  int    `json:"text_posts"`
	ImagePosts int    `json:"image_posts"`
	Replies    int    `json:"replies"`
}

// ThreadRecord tracks replies issued on a single thread.
type ThreadRecord struct {
	TotalReplies  int            `json:"total_replies"`
	RepliesByUser map[string]int `json:"replies_by_user"`
}

// State is the durable aggregate for all posting and engagement counters.
// All mutation flows through the orchestrator and post cycle, which serialize
// their writes; State itself is not safe for concurrent use.
type State struct {
	Day         DailyCounters            `json:"day"`
	Threads     map[string]*ThreadRecord `json:"threads"`
	Replied     map[string]bool          `json:"replied"`
	UsedImages  []string                 `json:"used_images"`
	LastReplyAt time.Time                `json:"last_reply_at"`
}

// New returns a zeroed state with initialized containers.
func New() *State {
	return &State{
		Threads: make(map[string]*ThreadRecord),
		Replied: make(map[string]bool),
	}
}

// normalize repairs nil containers after deserialization.
func (s *State) normalize() {
	if s.Threads == nil {
		s.Threads = make(map[string]*ThreadRecord)
	}

	if s.Replied == nil {
		s.Replied = make(map[string]bool)
	}

	for _, rec := range s.Threads {
		if rec.RepliesByUser == nil {
			rec.RepliesByUser = make(map[string]int)
		}
	}
}

// Rollover resets the daily counters when the calendar day has changed.
func (s *State) Rollover(now time.Time) {
	day := now.Format(DayKeyFormat)
	if s.Day.Date == day {
		return
	}

	s.Day = DailyCounters{Date: day}
}

// Thread returns the reply record for a thread, or nil if none exists yet.
func (s *State) Thread(threadID string) *ThreadRecord {
	return s.Threads[threadID]
}

// HasReplied reports whether a comment has already been answered.
func (s *State) HasReplied(commentID string) bool {
	return s.Replied[commentID]
}

// RecordReply marks a comment as answered and bumps every reply counter.
// It is idempotent: replaying the same comment ID changes nothing and
// returns false, so a crash-and-retry cannot double count.
func (s *State) RecordReply(commentID, threadID, authorID string, now time.Time) bool {
	if s.Replied[commentID] {
		return false
	}

	s.Rollover(now)
	s.Replied[commentID] = true

	rec := s.Threads[threadID]
	if rec == nil {
		rec = &ThreadRecord{RepliesByUser: make(map[string]int)}
		s.Threads[threadID] = rec
	}

	rec.TotalReplies++

	if authorID != "" {
		rec.RepliesByUser[authorID]++
	}

	s.Day.Replies++
	s.LastReplyAt = now

	return true
}

// RecordTextPost bumps the daily text post counter.
func (s *State) RecordTextPost(now time.Time) {
	s.Rollover(now)
	s.Day.TextPosts++
}

// RecordImagePost bumps the daily image post counter.
func (s *State) RecordImagePost(now time.Time) {
	s.Rollover(now)
	s.Day.ImagePosts++
}

// ImageUsed reports whether an image path was published recently.
func (s *State) ImageUsed(path string) bool {
	for _, used := range s.UsedImages {
		if used == path {
			return true
		}
	}

	return false
}

// MarkImageUsed remembers a published image, keeping only the most recent entries.
func (s *State) MarkImageUsed(path string) {
	s.UsedImages = append(s.UsedImages, path)
	if len(s.UsedImages) > maxUsedImages {
		s.UsedImages = s.UsedImages[len(s.UsedImages)-maxUsedImages:]
	}
}
