package campaign

// Rollup derives one batch status from its rows' statuses: the highest
// milestone any row has reached (replied > read > delivered > sent > sending
// > queued), overridden by "done" once every row is terminal. "done" is not
// part of the priority ordering; it only applies when nothing is pending.
func Rollup(statuses []Status) Status {
	if len(statuses) == 0 {
		return StatusQueued
	}

	var sending, sent, delivered, read, replied, failed int
	for _, s := range statuses {
		switch s {
		case StatusSending:
			sending++
		case StatusSent:
			sent++
		case StatusDelivered:
			delivered++
		case StatusRead:
			read++
		case StatusReplied:
			replied++
		case StatusError:
			failed++
		}
	}

	progressed := sent + delivered + read + replied + failed
	if progressed == len(statuses) {
		return StatusDone
	}

	switch {
	case replied > 0:
		return StatusReplied
	case read > 0:
		return StatusRead
	case delivered > 0:
		return StatusDelivered
	case sent > 0:
		return StatusSent
	case sending > 0:
		return StatusSending
	}
	return StatusQueued
}
