// README: Cache key derivation for stops and stop pairs.
package strategy

import "fmt"

// Key identifies a stop inside the estimate caches. Event markers all share
// one key because they resolve to the same physical location.
func (s Stop) Key() string {
	if s.IsEvent() {
		return "E"
	}
	return fmt.Sprintf("%s:%d", s.ReservationID, s.Order)
}

// PairKey returns the cache key for the segment between two stops. The pair
// is normalized so key(a,b) == key(b,a): an event marker always sorts before
// a reservation stop, and two reservation stops sort by ascending
// reservation id (then order).
func (s Stop) PairKey(to Stop) string {
	from := s
	if pairLess(to, from) {
		from, to = to, from
	}
	return fmt.Sprintf("%s-%s", from.Key(), to.Key())
}

func pairLess(a, b Stop) bool {
	if a.IsEvent() != b.IsEvent() {
		return a.IsEvent()
	}
	if a.ReservationID != b.ReservationID {
		return a.ReservationID < b.ReservationID
	}
	return a.Order < b.Order
}
