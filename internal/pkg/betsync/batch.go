package betsync

import "github.com/ManuelReschke/BetSync/app/models"

// Batch buffers transformed records until they are flushed
type Batch struct {
	size    int
	records []models.Bet
}

// NewBatch creates a batch that is full at size records
func NewBatch(size int) *Batch {
	if size <= 0 {
		size = 1
	}
	return &Batch{size: size, records: make([]models.Bet, 0, size)}
}

// Add appends record; duplicates are resolved when the batch is drained
func (b *Batch) Add(record models.Bet) {
	b.records = append(b.records, record)
}

// Len returns the number of buffered records, duplicates included
func (b *Batch) Len() int { return len(b.records) }

// Full reports whether the batch reached its size
func (b *Batch) Full() bool { return len(b.records) >= b.size }

// Drain returns the deduplicated records and empties the batch
func (b *Batch) Drain() []models.Bet {
	out := Dedupe(b.records)
	b.records = make([]models.Bet, 0, b.size)
	return out
}

// Dedupe keeps the last record for every natural key, at the position the key was first seen
func Dedupe(records []models.Bet) []models.Bet {
	index := make(map[models.BetKey]int, len(records))
	out := make([]models.Bet, 0, len(records))
	for _, r := range records {
		key := r.Key()
		if i, ok := index[key]; ok {
			out[i] = r
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}
