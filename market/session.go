package market

import "time"

// Session labels a coarse trading session derived from UTC wall-clock time.
type Session int

const (
	SessionAsian Session = iota
	SessionEuropean
	SessionAmerican
)

func (s Session) String() string {
	switch s {
	case SessionAsian:
		return "asian"
	case SessionEuropean:
		return "european"
	case SessionAmerican:
		return "american"
	default:
		return "unknown"
	}
}

// SessionAt maps a timestamp to its session by UTC hour:
// 0-8 asian, 8-16 european, 16-24 american.
func SessionAt(t time.Time) Session {
	switch h := t.UTC().Hour(); {
	case h < 8:
		return SessionAsian
	case h < 16:
		return SessionEuropean
	default:
		return SessionAmerican
	}
}

// sessionBias holds the digits historically favored in each session.
var sessionBias = map[Session][]int{
	SessionAsian:    {0, 1, 8, 9},
	SessionEuropean: {2, 3, 4, 5},
	SessionAmerican: {6, 7, 8, 9},
}

// BiasDigits returns the session's favored digit set.
func (s Session) BiasDigits() []int {
	out := make([]int, len(sessionBias[s]))
	copy(out, sessionBias[s])
	return out
}

// Favors reports whether the digit belongs to the session's bias set.
func (s Session) Favors(digit int) bool {
	for _, d := range sessionBias[s] {
		if d == digit {
			return true
		}
	}
	return false
}
