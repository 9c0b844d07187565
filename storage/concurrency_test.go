package storage

import (
	"errors"
	"sync"
	"testing"

	"github.com/richinex/contactdb/model"
)

func TestEngineSafetyModeWithConcurrentWrites(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		const rounds = 50
		errs := make(chan error, 2*rounds)
		var wg sync.WaitGroup

		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if err := e.SetCacheSafetyMode(i%2 == 0); err != nil {
					errs <- err
				}
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if err := e.WriteSetting(model.Global, "M", "S", model.DWord(uint32(i))); err != nil {
					errs <- err
				}
			}
		}()
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("concurrent call failed: %v", err)
		}
		v, err := e.GetSetting(model.Global, "M", "S")
		if err != nil {
			t.Fatalf("GetSetting failed: %v", err)
		}
		if d, _ := v.AsDWord(); d != rounds-1 {
			t.Errorf("expected last write %d, got %d", rounds-1, d)
		}
	})
}

func TestEngineAddEventRacingDeleteContact(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		for round := 0; round < 20; round++ {
			c, err := e.AddContact()
			if err != nil {
				t.Fatalf("AddContact failed: %v", err)
			}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					if _, err := e.AddEvent(c, newEvent("ICQ", "racing")); err != nil {
						if !errors.Is(err, ErrNoContact) {
							t.Errorf("expected ErrNoContact once deleted, got %v", err)
						}
						return
					}
				}
			}()
			if err := e.DeleteContact(c); err != nil {
				t.Fatalf("DeleteContact failed: %v", err)
			}
			wg.Wait()

			if h := e.FirstEvent(c); h != model.NoEvent {
				t.Fatalf("expected no events under deleted contact %d, found %d", c, h)
			}
			if n := e.EventCount(c); n != 0 {
				t.Fatalf("expected event count 0 for deleted contact %d, got %d", c, n)
			}
		}
	})
}
