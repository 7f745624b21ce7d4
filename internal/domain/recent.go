package domain

// RecentUsersSize is the number of prior holders remembered per bike.
const RecentUsersSize = 3

// RecentUsers is a fixed-size circular buffer of the most recent holders of
// a bike. Push evicts the oldest entry once the buffer is full. It is a value
// type, so copying a Bike copies its history.
type RecentUsers struct {
	items [RecentUsersSize]string
	head  int // index of oldest item
	count int
}

// RecentUsersFrom builds a buffer from holders listed most recent first, the
// order they occupy in the Bikes table. Empty entries are skipped.
func RecentUsersFrom(mostRecentFirst ...string) RecentUsers {
	var r RecentUsers
	for i := len(mostRecentFirst) - 1; i >= 0; i-- {
		if mostRecentFirst[i] != "" {
			r.Push(mostRecentFirst[i])
		}
	}
	return r
}

// Push records email as the most recent holder.
func (r *RecentUsers) Push(email string) {
	writeIdx := (r.head + r.count) % RecentUsersSize
	r.items[writeIdx] = email

	if r.count == RecentUsersSize {
		r.head = (r.head + 1) % RecentUsersSize
	} else {
		r.count++
	}
}

// Latest returns the most recent holder, or "" when the buffer is empty.
func (r RecentUsers) Latest() string {
	if r.count == 0 {
		return ""
	}
	return r.items[(r.head+r.count-1)%RecentUsersSize]
}

// Len returns the number of holders stored.
func (r RecentUsers) Len() int { return r.count }

// Slice returns the stored holders, most recent first.
func (r RecentUsers) Slice() []string {
	out := make([]string, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.items[(r.head+r.count-1-i)%RecentUsersSize]
	}
	return out
}

// Slots returns the holders in table column order, padded with "".
func (r RecentUsers) Slots() [RecentUsersSize]string {
	var out [RecentUsersSize]string
	copy(out[:], r.Slice())
	return out
}
