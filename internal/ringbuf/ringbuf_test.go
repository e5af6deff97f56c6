package ringbuf

import "testing"

func TestRing_PushAndAt(t *testing.T) {
	r := New[int](4)

	for i := 1; i <= 3; i++ {
		r.Push(i)
	}
	if r.Len() != 3 {
		t.Fatalf("expected len=3, got %d", r.Len())
	}
	for i := 0; i < 3; i++ {
		if got := r.At(i); got != i+1 {
			t.Errorf("At(%d)=%d, want %d", i, got, i+1)
		}
	}
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := New[int](4)

	for i := 1; i <= 10; i++ {
		r.Push(i)
	}
	if r.Len() != 4 {
		t.Fatalf("expected len=4 after overflow, got %d", r.Len())
	}
	want := []int{7, 8, 9, 10}
	for i, w := range want {
		if got := r.At(i); got != w {
			t.Errorf("At(%d)=%d, want %d", i, got, w)
		}
	}
	if r.Newest() != 10 {
		t.Errorf("Newest()=%d, want 10", r.Newest())
	}
}

func TestRing_NewestFirst(t *testing.T) {
	r := New[int](8)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	var got []int
	r.NewestFirst(func(v int) bool {
		got = append(got, v)
		return true
	})
	want := []int{5, 4, 3, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("newest-first order %v, want %v", got, want)
		}
	}

	// Early stop after two elements.
	count := 0
	r.NewestFirst(func(int) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Errorf("expected early stop after 2 visits, got %d", count)
	}
}

func TestRing_CapacityRounding(t *testing.T) {
	r := New[int](5)
	if r.Cap() != 8 {
		t.Errorf("expected capacity rounded to 8, got %d", r.Cap())
	}
	r = New[int](0)
	if r.Cap() != 2 {
		t.Errorf("expected minimum capacity 2, got %d", r.Cap())
	}
}

func TestRing_Clear(t *testing.T) {
	r := New[int](4)
	r.Push(1)
	r.Push(2)
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("expected empty ring after Clear, got len=%d", r.Len())
	}
}

func TestRing_AtOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range index")
		}
	}()
	r := New[int](2)
	r.Push(1)
	r.At(1)
}
