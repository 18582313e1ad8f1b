// Package listing projects dog records into the buckets shown on public and
// administrative listings.
package listing

import (
	"fmt"
	"sort"
	"time"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
)

type Bucket string

const (
	BucketOpenUnclaimed       Bucket = "open_unclaimed"
	BucketOpenPendingDecision Bucket = "open_pending_decision"
	BucketExpiredUnresolved   Bucket = "expired_unresolved"
	BucketReunited            Bucket = "reunited"
	BucketAdopted             Bucket = "adopted"
)

// Buckets lists every bucket in display order.
var Buckets = []Bucket{
	BucketOpenUnclaimed,
	BucketOpenPendingDecision,
	BucketExpiredUnresolved,
	BucketReunited,
	BucketAdopted,
}

func ParseBucket(s string) (Bucket, error) {
	for _, b := range Buckets {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("listing: unknown bucket %q", s)
}

type Entry struct {
	Dog             dog.Record
	Bucket          Bucket
	Deadline        time.Time
	TimeRemaining   time.Duration
	PendingRequests int
}

// Classify places one dog. Terminal status wins over expiry.
func Classify(d dog.Record, pending int, now time.Time) Bucket {
	switch {
	case d.Status == dog.StatusReunited:
		return BucketReunited
	case d.Status == dog.StatusAdopted:
		return BucketAdopted
	case d.IsExpired(now):
		return BucketExpiredUnresolved
	case pending > 0:
		return BucketOpenPendingDecision
	default:
		return BucketOpenUnclaimed
	}
}

// Project builds one entry per dog. pending maps dog id to its pending
// request count; missing ids count as zero.
func Project(dogs []dog.Record, pending map[string]int, now time.Time) []Entry {
	out := make([]Entry, 0, len(dogs))
	for _, d := range dogs {
		n := pending[d.ID]
		out = append(out, Entry{
			Dog:             d,
			Bucket:          Classify(d, n, now),
			Deadline:        d.Deadline(),
			TimeRemaining:   d.TimeRemaining(now),
			PendingRequests: n,
		})
	}
	return out
}

func Filter(entries []Entry, bucket Bucket) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Bucket == bucket {
			out = append(out, e)
		}
	}
	return out
}

// SortNewestFirst orders by intake time descending, then id for stability.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Dog, entries[j].Dog
		if !a.IntakeTime.Equal(b.IntakeTime) {
			return a.IntakeTime.After(b.IntakeTime)
		}
		return a.ID > b.ID
	})
}

// Counts tallies entries per bucket, including empty buckets.
func Counts(entries []Entry) map[Bucket]int {
	out := make(map[Bucket]int, len(Buckets))
	for _, b := range Buckets {
		out[b] = 0
	}
	for _, e := range entries {
		out[e.Bucket]++
	}
	return out
}
