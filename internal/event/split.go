package event

// fragment is one piece of a window after duration thresholding.
type fragment struct {
	ts     float64
	te     float64
	active []float64
	hits   []codeHit
}

// splitWindow applies the post-hoc duration thresholds: windows shorter than
// minTime are dropped entirely, windows longer than maxTime are split
// recursively at a cut point inside an internal activity gap. Fragments touch
// at the cut (te of one equals ts of the next), so a split never loses
// duration, and the cut never lands on active motion.
func splitWindow(w *window, minTime, maxTime float64) []fragment {
	if w.duration() < minTime {
		// Noise, never becomes an event.
		return nil
	}

	root := fragment{
		ts:     w.start,
		te:     w.lastActive,
		active: w.activeTimes,
		hits:   w.codeHits,
	}

	var out []fragment
	splitFragment(root, minTime, maxTime, &out)
	return out
}

func splitFragment(f fragment, minTime, maxTime float64, out *[]fragment) {
	if f.te-f.ts <= maxTime {
		if f.te-f.ts >= minTime {
			*out = append(*out, f)
		}
		return
	}

	cut := chooseCut(f, maxTime)

	left := fragment{ts: f.ts, te: cut}
	right := fragment{ts: cut, te: f.te}
	for _, ts := range f.active {
		if ts <= cut {
			left.active = append(left.active, ts)
		} else {
			right.active = append(right.active, ts)
		}
	}
	for _, hit := range f.hits {
		if hit.ts <= cut {
			left.hits = append(left.hits, hit)
		} else {
			right.hits = append(right.hits, hit)
		}
	}

	splitFragment(left, minTime, maxTime, out)
	splitFragment(right, minTime, maxTime, out)
}

// chooseCut picks the timestamp to split at: the midpoint of the longest
// internal activity gap, preferring (on equal length) the gap nearest the
// fragment midpoint, then the earliest. With no usable internal gap the cut
// falls back to ts + maxTime.
func chooseCut(f fragment, maxTime float64) float64 {
	mid := (f.ts + f.te) / 2

	best := -1.0
	bestDist := 0.0
	bestCut := 0.0
	for i := 1; i < len(f.active); i++ {
		gapStart := f.active[i-1]
		gapEnd := f.active[i]
		length := gapEnd - gapStart
		if length <= 0 {
			continue
		}
		center := (gapStart + gapEnd) / 2
		dist := center - mid
		if dist < 0 {
			dist = -dist
		}
		if length > best || (length == best && dist < bestDist) {
			best = length
			bestDist = dist
			bestCut = center
		}
	}

	if best <= 0 || bestCut <= f.ts || bestCut >= f.te {
		return f.ts + maxTime
	}
	return bestCut
}
