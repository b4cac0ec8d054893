package client

import "github.com/iliyamo/cinema-seat-sync/internal/catalog"

// seatLess orders seat IDs by row index then number: A2 < A10 < B1 < AA1.
func seatLess(a, b string) bool {
	ra, na := catalog.SplitSeatID(a)
	rb, nb := catalog.SplitSeatID(b)
	if ra != rb {
		ia, _ := catalog.RowLabelToIndex(ra)
		ib, _ := catalog.RowLabelToIndex(rb)
		return ia < ib
	}
	return na < nb
}
