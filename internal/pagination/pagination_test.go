package pagination

import "testing"

func TestPaginateWindows(t *testing.T) {
	testCases := []struct {
		name       string
		total      int
		page       int
		perPage    int
		wantNumber int
		wantPages  int
		wantOffset int
		wantPrev   bool
		wantNext   bool
	}{
		{name: "first page of 23", total: 23, page: 1, perPage: 10, wantNumber: 1, wantPages: 3, wantOffset: 0, wantPrev: false, wantNext: true},
		{name: "middle page of 23", total: 23, page: 2, perPage: 10, wantNumber: 2, wantPages: 3, wantOffset: 10, wantPrev: true, wantNext: true},
		{name: "last page of 23", total: 23, page: 3, perPage: 10, wantNumber: 3, wantPages: 3, wantOffset: 20, wantPrev: true, wantNext: false},
		{name: "page zero clamps to first", total: 23, page: 0, perPage: 10, wantNumber: 1, wantPages: 3, wantOffset: 0, wantPrev: false, wantNext: true},
		{name: "page beyond range clamps to last", total: 23, page: 99, perPage: 10, wantNumber: 3, wantPages: 3, wantOffset: 20, wantPrev: true, wantNext: false},
		{name: "empty collection", total: 0, page: 1, perPage: 10, wantNumber: 1, wantPages: 1, wantOffset: 0, wantPrev: false, wantNext: false},
		{name: "exact multiple", total: 20, page: 2, perPage: 10, wantNumber: 2, wantPages: 2, wantOffset: 10, wantPrev: true, wantNext: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Paginate(tc.total, tc.page, tc.perPage)
			if got.Number != tc.wantNumber {
				t.Fatalf("page number: got %d, want %d", got.Number, tc.wantNumber)
			}
			if got.TotalPages != tc.wantPages {
				t.Fatalf("total pages: got %d, want %d", got.TotalPages, tc.wantPages)
			}
			if got.Offset != tc.wantOffset {
				t.Fatalf("offset: got %d, want %d", got.Offset, tc.wantOffset)
			}
			if got.HasPrev != tc.wantPrev {
				t.Fatalf("has prev: got %v, want %v", got.HasPrev, tc.wantPrev)
			}
			if got.HasNext != tc.wantNext {
				t.Fatalf("has next: got %v, want %v", got.HasNext, tc.wantNext)
			}
		})
	}
}

func TestPaginateItemCounts(t *testing.T) {
	items := make([]int, 23)

	first := Paginate(len(items), 1, 10)
	from, to := first.Slice(len(items))
	if to-from != 10 {
		t.Fatalf("first page size: got %d, want 10", to-from)
	}

	last := Paginate(len(items), 3, 10)
	from, to = last.Slice(len(items))
	if to-from != 3 {
		t.Fatalf("last page size: got %d, want 3", to-from)
	}
}

func TestSliceBoundsNeverExceedLength(t *testing.T) {
	page := Paginate(5, 1, 10)
	from, to := page.Slice(3)
	if from != 0 || to != 3 {
		t.Fatalf("slice bounds: got [%d,%d), want [0,3)", from, to)
	}
}
