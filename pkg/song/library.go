package song

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Library is an indexed, read-only-after-setup collection of songs.
// All methods are safe for concurrent use.
type Library struct {
	mu    sync.RWMutex
	order []string
	songs map[string]*Song
}

// NewLibrary returns a library containing the given songs. Songs are validated
// and cloned; a duplicate or invalid song fails the whole call.
func NewLibrary(songs ...*Song) (*Library, error) {
	l := &Library{songs: make(map[string]*Song, len(songs))}
	for _, s := range songs {
		if err := l.Add(s); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Add validates s and appends a copy of it to the library.
func (l *Library) Add(s *Song) error {
	if s.ID == "" {
		return fmt.Errorf("%w: song id is required", ErrInvalidSong)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("song %q: %w", s.ID, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.songs[s.ID]; ok {
		return fmt.Errorf("%w: duplicate song id %q", ErrInvalidSong, s.ID)
	}
	l.songs[s.ID] = s.Clone()
	l.order = append(l.order, s.ID)
	return nil
}

// Get returns a copy of the song with the given id.
func (l *Library) Get(id string) (*Song, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.songs[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// All returns copies of every song in insertion order.
func (l *Library) All() []*Song {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Song, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.songs[id].Clone())
	}
	return out
}

// Available returns the songs the player may start given the set of song ids
// they have already cleared. A song with no UnlockedBy requirement is always
// available.
func (l *Library) Available(cleared []string) []*Song {
	var out []*Song
	for _, s := range l.All() {
		if s.UnlockedBy == "" || slices.Contains(cleared, s.UnlockedBy) {
			out = append(out, s)
		}
	}
	return out
}

// Default returns a library holding the built-in practice songs.
func Default() *Library {
	l, err := NewLibrary(builtinSongs()...)
	if err != nil {
		panic("song: built-in library is invalid: " + err.Error())
	}
	return l
}

func builtinSongs() []*Song {
	return []*Song{
		{
			ID:       "happy_vibes",
			Title:    "Happy Vibes",
			Category: "Emotions",
			Stars:    1,
			BPM:      120,
			Duration: 150 * time.Second,
			Notes: []Note{
				{Word: "happy", Phonetic: "/ˈhæpi/", Beat: 8, Difficulty: Easy},
				{Word: "smile", Phonetic: "/smaɪl/", Beat: 12, Difficulty: Easy},
				{Word: "joy", Phonetic: "/dʒɔɪ/", Beat: 16, Difficulty: Easy},
				{Word: "laugh", Phonetic: "/læf/", Beat: 20, Difficulty: Easy},
				{Word: "friend", Phonetic: "/frend/", Beat: 24, Difficulty: Easy},
				{Word: "love", Phonetic: "/lʌv/", Beat: 28, Difficulty: Easy},
				{Word: "peace", Phonetic: "/piːs/", Beat: 32, Difficulty: Easy},
				{Word: "kind", Phonetic: "/kaɪnd/", Beat: 36, Difficulty: Easy},
				{Word: "bright", Phonetic: "/braɪt/", Beat: 40, Difficulty: Easy},
				{Word: "cheerful", Phonetic: "/ˈtʃɪrfəl/", Beat: 44, Difficulty: Medium},
				{Word: "wonderful", Phonetic: "/ˈwʌndərfəl/", Beat: 48, Difficulty: Medium},
				{Word: "amazing", Phonetic: "/əˈmeɪzɪŋ/", Beat: 52, Difficulty: Medium},
				{Word: "fantastic", Phonetic: "/fænˈtæstɪk/", Beat: 56, Difficulty: Medium},
				{Word: "delightful", Phonetic: "/dɪˈlaɪtfəl/", Beat: 60, Difficulty: Medium},
				{Word: "joyful", Phonetic: "/ˈdʒɔɪfəl/", Beat: 64, Difficulty: Medium},
			},
		},
		{
			ID:       "daily_routine",
			Title:    "Daily Routine",
			Category: "Daily Life",
			Stars:    2,
			BPM:      100,
			Duration: 180 * time.Second,
			Notes: []Note{
				{Word: "wake", Phonetic: "/weɪk/", Beat: 8, Difficulty: Easy},
				{Word: "breakfast", Phonetic: "/ˈbrekfəst/", Beat: 12, Difficulty: Medium},
				{Word: "shower", Phonetic: "/ˈʃaʊər/", Beat: 16, Difficulty: Easy},
				{Word: "dress", Phonetic: "/dres/", Beat: 20, Difficulty: Easy},
				{Word: "commute", Phonetic: "/kəˈmjuːt/", Beat: 24, Difficulty: Medium},
				{Word: "work", Phonetic: "/wɜːrk/", Beat: 28, Difficulty: Easy},
				{Word: "lunch", Phonetic: "/lʌntʃ/", Beat: 32, Difficulty: Easy},
				{Word: "meeting", Phonetic: "/ˈmiːtɪŋ/", Beat: 36, Difficulty: Easy},
				{Word: "exercise", Phonetic: "/ˈeksərsaɪz/", Beat: 40, Difficulty: Medium},
				{Word: "dinner", Phonetic: "/ˈdɪnər/", Beat: 44, Difficulty: Easy},
				{Word: "relax", Phonetic: "/rɪˈlæks/", Beat: 48, Difficulty: Easy},
				{Word: "sleep", Phonetic: "/sliːp/", Beat: 52, Difficulty: Easy},
			},
		},
		{
			ID:         "tongue_twister",
			Title:      "Tongue Twister Challenge",
			Category:   "Challenge",
			Stars:      5,
			BPM:        180,
			Duration:   120 * time.Second,
			UnlockedBy: "daily_routine",
			Notes: []Note{
				{Word: "she", Phonetic: "/ʃiː/", Beat: 10, Difficulty: Easy},
				{Word: "sells", Phonetic: "/selz/", Beat: 11, Difficulty: Medium},
				{Word: "seashells", Phonetic: "/ˈsiːʃelz/", Beat: 12, Difficulty: Hard},
				{Word: "seashore", Phonetic: "/ˈsiːʃɔːr/", Beat: 14, Difficulty: Hard},
				{Word: "peter", Phonetic: "/ˈpiːtər/", Beat: 18, Difficulty: Easy},
				{Word: "piper", Phonetic: "/ˈpaɪpər/", Beat: 19, Difficulty: Medium},
				{Word: "picked", Phonetic: "/pɪkt/", Beat: 20, Difficulty: Medium},
				{Word: "peppers", Phonetic: "/ˈpepərz/", Beat: 21, Difficulty: Medium},
				{Word: "woodchuck", Phonetic: "/ˈwʊdtʃʌk/", Beat: 24, Difficulty: Hard},
				{Word: "chuck", Phonetic: "/tʃʌk/", Beat: 25, Difficulty: Medium},
				{Word: "wood", Phonetic: "/wʊd/", Beat: 26, Difficulty: Easy},
			},
		},
		{
			ID:       "business_english",
			Title:    "Business English",
			Category: "Professional",
			Stars:    3,
			BPM:      110,
			Duration: 200 * time.Second,
			Notes: []Note{
				{Word: "meeting", Phonetic: "/ˈmiːtɪŋ/", Beat: 8, Difficulty: Easy},
				{Word: "presentation", Phonetic: "/ˌprezənˈteɪʃən/", Beat: 12, Difficulty: Hard},
				{Word: "deadline", Phonetic: "/ˈdedlaɪn/", Beat: 16, Difficulty: Medium},
				{Word: "project", Phonetic: "/ˈprɑːdʒekt/", Beat: 20, Difficulty: Medium},
				{Word: "budget", Phonetic: "/ˈbʌdʒɪt/", Beat: 24, Difficulty: Medium},
				{Word: "strategy", Phonetic: "/ˈstrætədʒi/", Beat: 28, Difficulty: Medium},
				{Word: "revenue", Phonetic: "/ˈrevənuː/", Beat: 32, Difficulty: Medium},
				{Word: "profit", Phonetic: "/ˈprɑːfɪt/", Beat: 36, Difficulty: Medium},
				{Word: "investment", Phonetic: "/ɪnˈvestmənt/", Beat: 40, Difficulty: Hard},
				{Word: "stakeholder", Phonetic: "/ˈsteɪkhoʊldər/", Beat: 44, Difficulty: Hard},
				{Word: "collaboration", Phonetic: "/kəˌlæbəˈreɪʃən/", Beat: 48, Difficulty: Hard},
				{Word: "productivity", Phonetic: "/ˌproʊdʌkˈtɪvəti/", Beat: 52, Difficulty: Hard},
			},
		},
	}
}
