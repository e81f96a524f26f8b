package song

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileSchema is the on-disk YAML layout of a song file.
type fileSchema struct {
	Songs []songSchema `yaml:"songs"`
}

type songSchema struct {
	ID         string        `yaml:"id"`
	Title      string        `yaml:"title"`
	Category   string        `yaml:"category"`
	Stars      int           `yaml:"stars"`
	BPM        float64       `yaml:"bpm"`
	Duration   time.Duration `yaml:"duration"`
	MusicURL   string        `yaml:"music_url"`
	UnlockedBy string        `yaml:"unlocked_by"`
	Notes      []noteSchema  `yaml:"notes"`
}

type noteSchema struct {
	Word       string  `yaml:"word"`
	Phonetic   string  `yaml:"phonetic"`
	Definition string  `yaml:"definition"`
	Beat       float64 `yaml:"beat"`
	Difficulty string  `yaml:"difficulty"`
}

// LoadFile reads the YAML song file at path. See [Decode] for the format.
func LoadFile(path string) ([]*Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("song: open %q: %w", path, err)
	}
	defer f.Close()

	songs, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("song: parse %q: %w", path, err)
	}
	return songs, nil
}

// Decode parses a YAML document of the form
//
//	songs:
//	  - id: greetings
//	    title: Greetings
//	    bpm: 90
//	    notes:
//	      - {word: hello, phonetic: /həˈloʊ/, beat: 4, difficulty: easy}
//
// and validates every song. A missing difficulty defaults to easy.
func Decode(r io.Reader) ([]*Song, error) {
	var file fileSchema
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("song: decode yaml: %w", err)
	}

	songs := make([]*Song, 0, len(file.Songs))
	for i, ss := range file.Songs {
		s := &Song{
			ID:         ss.ID,
			Title:      ss.Title,
			Category:   ss.Category,
			Stars:      ss.Stars,
			BPM:        ss.BPM,
			Duration:   ss.Duration,
			MusicURL:   ss.MusicURL,
			UnlockedBy: ss.UnlockedBy,
			Notes:      make([]Note, 0, len(ss.Notes)),
		}
		for j, ns := range ss.Notes {
			d := Easy
			if ns.Difficulty != "" {
				var err error
				if d, err = ParseDifficulty(ns.Difficulty); err != nil {
					return nil, fmt.Errorf("songs[%d].notes[%d]: %w", i, j, err)
				}
			}
			s.Notes = append(s.Notes, Note{
				Word:       ns.Word,
				Phonetic:   ns.Phonetic,
				Definition: ns.Definition,
				Beat:       ns.Beat,
				Difficulty: d,
			})
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("songs[%d] %q: %w", i, ss.ID, err)
		}
		songs = append(songs, s)
	}
	return songs, nil
}
