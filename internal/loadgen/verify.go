package loadgen

import "fmt"

// verifyTrending checks that trending is ranked by score, that every entry is
// an item the run touched, and that no item reports more clicks than were
// sent for it.
func verifyTrending(top []TrendingEntry, expected map[string]*expectation) error {
	for i, e := range top {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: entry %d has rank %d", ErrVerification, i, e.Rank)
		}
		if i > 0 && e.EngagementScore > top[i-1].EngagementScore {
			return fmt.Errorf("%w: %s (%.2f) ranked below %s (%.2f)", ErrVerification,
				top[i-1].ItemID, top[i-1].EngagementScore, e.ItemID, e.EngagementScore)
		}
		exp, ok := expected[e.ItemID]
		if !ok {
			return fmt.Errorf("%w: unexpected item %s", ErrVerification, e.ItemID)
		}
		if e.TotalClicks > exp.clicks {
			return fmt.Errorf("%w: %s has %d clicks, sent %d", ErrVerification, e.ItemID, e.TotalClicks, exp.clicks)
		}
	}
	return nil
}
