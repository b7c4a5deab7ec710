package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// MaxHistoryUploadBytes is the ceiling for a reading-history upload.
// Oversized files are rejected before a single row is parsed.
const MaxHistoryUploadBytes = 10 * 1024 * 1024

const topItemLimit = 5

// ErrHistoryTooLarge is returned for uploads over MaxHistoryUploadBytes.
var ErrHistoryTooLarge = fmt.Errorf("history file exceeds the %d MB limit", MaxHistoryUploadBytes/(1024*1024))

// ErrMalformedHistory wraps structural CSV problems (bad quoting, ragged
// rows, missing required columns).
var ErrMalformedHistory = errors.New("malformed history file")

// Required column names of the reading-history export.
const (
	colTitle       = "Title"
	colAuthor      = "Author"
	colBookshelves = "Bookshelves"
	colRating      = "My Rating"
)

// HistorySummarizer condenses a raw reading-history CSV into the compact
// textual digest fed to profile synthesis.
type HistorySummarizer struct {
	logger *zap.Logger
}

// NewHistorySummarizer creates a new summarizer.
func NewHistorySummarizer(logger *zap.Logger) *HistorySummarizer {
	return &HistorySummarizer{logger: logger}
}

// freqCounter counts occurrences while remembering first-seen order, so
// ties in the top-N selection stay stable.
type freqCounter struct {
	counts map[string]int
	order  map[string]int
	next   int
}

func newFreqCounter() *freqCounter {
	return &freqCounter{counts: map[string]int{}, order: map[string]int{}}
}

func (f *freqCounter) add(key string) {
	if _, seen := f.counts[key]; !seen {
		f.order[key] = f.next
		f.next++
	}
	f.counts[key]++
}

// top returns up to limit keys, highest count first, first-seen order on ties.
func (f *freqCounter) top(limit int) []string {
	keys := make([]string, 0, len(f.counts))
	for k := range f.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := f.counts[keys[i]], f.counts[keys[j]]
		if ci != cj {
			return ci > cj
		}
		return f.order[keys[i]] < f.order[keys[j]]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

// Summarize streams the CSV rows and renders the digest: top authors, top
// genres/bookshelves, and every book the user rated 4 stars or better.
// size is the upload size in bytes as reported by the transport.
func (s *HistorySummarizer) Summarize(r io.Reader, size int64) (string, error) {
	if size > MaxHistoryUploadBytes {
		return "", ErrHistoryTooLarge
	}

	// Transport size reports are advisory; the hard cap is enforced on the
	// stream itself.
	reader := csv.NewReader(io.LimitReader(r, MaxHistoryUploadBytes+1))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return "", fmt.Errorf("%w: cannot read header: %v", ErrMalformedHistory, err)
	}
	headerIdx := map[string]int{}
	for i, h := range header {
		headerIdx[cleanCell(h)] = i
	}
	for _, required := range []string{colTitle, colAuthor, colBookshelves, colRating} {
		if _, ok := headerIdx[required]; !ok {
			return "", fmt.Errorf("%w: missing column %q", ErrMalformedHistory, required)
		}
	}

	authorFreq := newFreqCounter()
	genreFreq := newFreqCounter()
	var highRated strings.Builder
	var bytesRead int64 = int64(len(strings.Join(header, ",")))

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedHistory, err)
		}
		for _, cell := range row {
			bytesRead += int64(len(cell))
		}
		if bytesRead > MaxHistoryUploadBytes {
			return "", ErrHistoryTooLarge
		}

		author := cell(row, headerIdx[colAuthor])
		if author != "" {
			authorFreq.add(author)
		}

		if shelves := cell(row, headerIdx[colBookshelves]); shelves != "" {
			for _, genre := range strings.Split(shelves, ", ") {
				if genre != "" {
					genreFreq.add(genre)
				}
			}
		}

		// A missing or unparseable rating only skips the highly-rated list;
		// the row already counted toward the frequency maps.
		rating, err := strconv.Atoi(cell(row, headerIdx[colRating]))
		if err != nil {
			continue
		}
		if rating >= 4 {
			highRated.WriteString(cell(row, headerIdx[colTitle]))
			highRated.WriteString(" by ")
			highRated.WriteString(author)
			highRated.WriteString("\n")
		}
	}

	digest := fmt.Sprintf(
		"Here is a summary of a user's reading habits:\n\n"+
			"Top Authors:\n%s\n\n"+
			"Top Genres/Bookshelves:\n%s\n\n"+
			"A selection of their highly-rated books (4 or 5 stars):\n%s",
		strings.Join(authorFreq.top(topItemLimit), "\n"),
		strings.Join(genreFreq.top(topItemLimit), "\n"),
		highRated.String(),
	)

	s.logger.Debug("Built reading-history digest",
		zap.Int("authors", len(authorFreq.counts)),
		zap.Int("genres", len(genreFreq.counts)))
	return digest, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return cleanCell(row[idx])
}

// cleanCell trims whitespace and applies NFC so visually identical
// authors/genres from different exports count as one key.
func cleanCell(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
