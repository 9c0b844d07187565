package db

import (
	"errors"
	"testing"
	"time"

	"github.com/richinex/contactdb/model"
)

func message(text string) *model.Event {
	return &model.Event{
		Module:    "ICQ",
		Type:      model.EventMessage,
		Timestamp: time.Unix(1700000000, 0),
		Blob:      []byte(text),
	}
}

func TestEventsAddAndRead(t *testing.T) {
	m, _ := newTestManager(t)
	ev := m.Events()

	c, err := m.Contacts().Add()
	if err != nil {
		t.Fatalf("Failed to add contact: %v", err)
	}
	h, err := ev.Add(c, message("hello"))
	if err != nil {
		t.Fatalf("Failed to add event: %v", err)
	}

	got, err := ev.Get(h)
	if err != nil {
		t.Fatalf("Failed to get event: %v", err)
	}
	if got.Text() != "hello" || got.Module != "ICQ" {
		t.Errorf("expected ICQ hello, got %s %q", got.Module, got.Text())
	}
	if owner, err := ev.Contact(h); err != nil || owner != c {
		t.Errorf("expected owner %s, got %s (%v)", c, owner, err)
	}
	if size := ev.BlobSize(h); size != 5 {
		t.Errorf("expected blob size 5, got %d", size)
	}

	buf := make([]byte, 16)
	read, n, err := ev.Read(h, buf)
	if err != nil || n != 5 || string(read.Blob) != "hello" {
		t.Errorf("expected full read of 5 bytes, got %d %q (%v)", n, read.Blob, err)
	}

	short := make([]byte, 3)
	read, n, err = ev.Read(h, short)
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
	if n != 5 || string(read.Blob) != "hel" {
		t.Errorf("expected truncated hel with size 5, got %q %d", read.Blob, n)
	}
}

func TestEventsValidation(t *testing.T) {
	m, _ := newTestManager(t)
	ev := m.Events()

	if _, err := ev.Add(model.Global, nil); !errors.Is(err, ErrNilEvent) {
		t.Errorf("expected ErrNilEvent, got %v", err)
	}
	if _, err := ev.Add(model.Global, &model.Event{Blob: []byte("x")}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for empty module, got %v", err)
	}
	if _, err := ev.Add(42, message("x")); err == nil {
		t.Error("expected add to unknown contact to fail")
	}

	before := time.Now().Truncate(time.Second)
	h, err := ev.Add(model.Global, &model.Event{Module: "Core", Blob: []byte("boot")})
	if err != nil {
		t.Fatalf("Failed to add global event: %v", err)
	}
	got, err := ev.Get(h)
	if err != nil {
		t.Fatalf("Failed to get event: %v", err)
	}
	if got.Timestamp.Before(before) {
		t.Errorf("expected zero timestamp to default to now, got %v", got.Timestamp)
	}
	if got.Timestamp.Nanosecond() != 0 {
		t.Errorf("expected second precision, got %v", got.Timestamp)
	}
}

func TestEventsTraversal(t *testing.T) {
	m, _ := newTestManager(t)
	ev := m.Events()

	c, err := m.Contacts().Add()
	if err != nil {
		t.Fatalf("Failed to add contact: %v", err)
	}
	var handles []model.EventID
	for _, text := range []string{"one", "two", "three"} {
		h, err := ev.Add(c, message(text))
		if err != nil {
			t.Fatalf("Failed to add event: %v", err)
		}
		handles = append(handles, h)
	}

	if got := ev.Count(c); got != 3 {
		t.Errorf("expected 3 events, got %d", got)
	}
	if ev.First(c) != handles[0] || ev.Last(c) != handles[2] {
		t.Error("expected first and last to match insertion order")
	}
	if ev.Next(c, handles[0]) != handles[1] || ev.Prev(c, handles[2]) != handles[1] {
		t.Error("expected next and prev to step through history")
	}
	if ev.Next(c, handles[2]) != model.NoEvent || ev.Prev(c, handles[0]) != model.NoEvent {
		t.Error("expected NoEvent at both ends")
	}
	if ev.Next(c, model.NoEvent) != model.NoEvent {
		t.Error("expected NoEvent after NoEvent")
	}

	if ev.FirstUnread(c) != handles[0] {
		t.Error("expected first event to be unread")
	}
	if err := ev.MarkRead(c, handles[0]); err != nil {
		t.Fatalf("Failed to mark read: %v", err)
	}
	if ev.FirstUnread(c) != handles[1] {
		t.Error("expected second event to be first unread")
	}

	var seen []model.EventID
	if err := ev.Walk(c, func(h model.EventID) error {
		seen = append(seen, h)
		return ev.Delete(c, h)
	}); err != nil {
		t.Fatalf("Failed to walk events: %v", err)
	}
	if len(seen) != 3 {
		t.Errorf("expected to visit 3 events while deleting, got %d", len(seen))
	}
	if ev.Count(c) != 0 {
		t.Errorf("expected empty history, got %d", ev.Count(c))
	}
}

func TestEventsEdit(t *testing.T) {
	m, _ := newTestManager(t)
	ev := m.Events()

	h, err := ev.Add(model.Global, message("abc"))
	if err != nil {
		t.Fatalf("Failed to add event: %v", err)
	}

	edited := message("xyz")
	edited.Flags = model.FlagRead
	if err := ev.Edit(model.Global, h, edited); err != nil {
		t.Fatalf("Failed to edit event: %v", err)
	}
	got, err := ev.Get(h)
	if err != nil {
		t.Fatalf("Failed to get event: %v", err)
	}
	if got.Text() != "xyz" || !got.IsRead() {
		t.Errorf("expected edited read xyz, got %q read=%v", got.Text(), got.IsRead())
	}

	if err := ev.Edit(model.Global, h, message("longer")); !errors.Is(err, ErrBlobSize) {
		t.Errorf("expected ErrBlobSize, got %v", err)
	}
	if err := ev.Edit(model.Global, 9999, message("xyz")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEventsStringIDs(t *testing.T) {
	m, _ := newTestManager(t)
	ev := m.Events()

	first, err := ev.Add(model.Global, message("a"))
	if err != nil {
		t.Fatalf("Failed to add event: %v", err)
	}
	second, err := ev.Add(model.Global, message("b"))
	if err != nil {
		t.Fatalf("Failed to add event: %v", err)
	}

	if err := ev.SetID("ICQ", first, "msg-1"); err != nil {
		t.Fatalf("Failed to set id: %v", err)
	}
	if h, err := ev.GetByID("ICQ", "msg-1"); err != nil || h != first {
		t.Errorf("expected msg-1 to find %d, got %d (%v)", first, h, err)
	}
	if _, err := ev.GetByID("Jabber", "msg-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ids to be module scoped, got %v", err)
	}

	if err := ev.SetID("ICQ", second, "msg-1"); err != nil {
		t.Fatalf("Failed to move id: %v", err)
	}
	if h, _ := ev.GetByID("ICQ", "msg-1"); h != second {
		t.Errorf("expected msg-1 to move to %d, got %d", second, h)
	}

	if _, err := ev.GetByID("ICQ", ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}
