package sched

import "github.com/Zopieux/i3blocks/internal/model"

// MergePeriod computes the coarsest shared timer period, in seconds: the
// greatest value that divides every block's refresh interval, so one
// repeating timer satisfies all cadences on the right multiples. Sentinel
// and non-positive intervals carry no timer requirement and are skipped.
// The zero result means no timer is needed at all.
func MergePeriod(intervals []model.Interval) int {
	period := 0
	for _, iv := range intervals {
		if iv <= 0 {
			continue
		}
		period = gcd(period, int(iv))
	}
	return period
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
