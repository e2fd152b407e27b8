package voicecast

import "testing"

func TestHandlerRegistryRemove(t *testing.T) {
	var reg handlerRegistry[func(int)]

	var got []int
	remove := reg.add(func(v int) { got = append(got, v) })
	reg.add(func(v int) { got = append(got, v*10) })

	reg.notify(func(fn func(int)) { fn(1) })
	remove()
	reg.notify(func(fn func(int)) { fn(2) })
	// removing twice is harmless
	remove()

	sum := 0
	for _, v := range got {
		sum += v
	}
	if sum != 1+10+20 {
		t.Errorf("got %v", got)
	}
}

func TestHandlerRegistryReentrantUnsubscribe(t *testing.T) {
	var reg handlerRegistry[func()]

	calls := 0
	var remove func()
	remove = reg.add(func() {
		calls++
		remove() // unsubscribe from within the notification
	})

	reg.notify(func(fn func()) { fn() })
	reg.notify(func(fn func()) { fn() })

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestHandlerRegistryClear(t *testing.T) {
	var reg handlerRegistry[func()]
	calls := 0
	reg.add(func() { calls++ })

	reg.clear()
	reg.notify(func(fn func()) { fn() })

	if calls != 0 {
		t.Errorf("calls = %d after clear", calls)
	}
}
