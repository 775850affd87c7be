package services

import (
	"errors"
	"math/bits"
	"sort"
)

// ContributorWeight is one member of a contributor pool snapshot.
type ContributorWeight struct {
	UserID string
	Weight int64
}

// Share is a contributor's computed cut in minor units.
type Share struct {
	UserID string `json:"user_id"`
	Weight int64  `json:"weight"`
	Cents  int64  `json:"share_cents"`
}

var (
	errNegativeGross  = errors.New("gross amount is negative")
	errInvalidWeight  = errors.New("contributor weight must be positive")
	errDuplicateShare = errors.New("contributor appears more than once")
)

// SplitRevenue divides gross across contributors in proportion to weight using
// the largest-remainder method. Every contributor first gets
// floor(gross*w/W). The leftover cents go one each to the largest fractional
// remainders, with ties broken by ascending user id. The shares always sum to
// gross exactly. An empty pool yields no shares.
func SplitRevenue(gross int64, contributors []ContributorWeight) ([]Share, error) {
	if gross < 0 {
		return nil, errNegativeGross
	}
	if len(contributors) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(contributors))
	var total uint64
	for _, c := range contributors {
		if c.Weight <= 0 {
			return nil, errInvalidWeight
		}
		if _, dup := seen[c.UserID]; dup {
			return nil, errDuplicateShare
		}
		seen[c.UserID] = struct{}{}
		var carry uint64
		total, carry = bits.Add64(total, uint64(c.Weight), 0)
		if carry != 0 {
			return nil, errInvalidWeight
		}
	}

	type slot struct {
		share     Share
		remainder uint64
	}
	slots := make([]slot, len(contributors))
	var assigned int64
	for i, c := range contributors {
		// gross*w fits in 128 bits and the quotient is <= gross, so Div64 cannot overflow.
		hi, lo := bits.Mul64(uint64(gross), uint64(c.Weight))
		quo, rem := bits.Div64(hi, lo, total)
		slots[i] = slot{
			share:     Share{UserID: c.UserID, Weight: c.Weight, Cents: int64(quo)},
			remainder: rem,
		}
		assigned += int64(quo)
	}

	order := make([]int, len(slots))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := slots[order[a]], slots[order[b]]
		if sa.remainder != sb.remainder {
			return sa.remainder > sb.remainder
		}
		return sa.share.UserID < sb.share.UserID
	})

	// leftover < len(contributors) because each floor loses less than one cent.
	leftover := gross - assigned
	for i := int64(0); i < leftover; i++ {
		slots[order[i]].share.Cents++
	}

	shares := make([]Share, len(slots))
	for i, s := range slots {
		shares[i] = s.share
	}
	return shares, nil
}
