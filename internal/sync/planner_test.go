package sync

import (
	"context"
	"testing"
	"time"

	"github.com/Martian-dev/mailpoll/internal/cursor"
	"github.com/Martian-dev/mailpoll/internal/mailstore"
	"github.com/Martian-dev/mailpoll/internal/mailstore/mailstoretest"
)

func TestClampMaxFetch(t *testing.T) {
	for in, want := range map[int]int{0: 50, -3: 50, 1: 1, 50: 50, 51: 50, 1000: 50} {
		if got := ClampMaxFetch(in); got != want {
			t.Errorf("ClampMaxFetch(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestPlanDefaultsToRecentWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := mailstoretest.New()
	store.Add("Inbox",
		mailstoretest.Message("old", "<old@x>", now.Add(-time.Hour)),
		mailstoretest.Message("new", "<new@x>", now.Add(-time.Minute)),
	)

	p := &Planner{Store: store, Now: func() time.Time { return now }}
	plan, err := p.Plan(context.Background(), cursor.New("Inbox"), "Inbox", 50)
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Since.Equal(now.Add(-FirstPollWindow)) {
		t.Errorf("since = %v", plan.Since)
	}
	if len(plan.Items) != 1 || plan.Items[0].ID != "new" {
		t.Errorf("items = %v", ids(plan.Items))
	}
}

func TestPlanFilters(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := mailstoretest.New()

	event := mailstoretest.Message("cal", "<cal@x>", at)
	event.Kind = mailstore.ItemCalendar
	noID := mailstoretest.Message("noid", "", at.Add(time.Second))
	seen := mailstoretest.Message("seen", "<seen@x>", at.Add(2*time.Second))
	fresh := mailstoretest.Message("fresh", "<fresh@x>", at.Add(3*time.Second))
	store.Add("Inbox", fresh, seen, noID, event)

	c := cursor.New("Inbox")
	c.LastRunTime = at
	c.Seen.Add("<seen@x>")

	plan, err := (&Planner{Store: store}).Plan(context.Background(), c, "Inbox", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Items) != 1 || plan.Items[0].ID != "fresh" {
		t.Errorf("items = %v", ids(plan.Items))
	}
	if plan.Skipped != 1 {
		t.Errorf("skipped = %d", plan.Skipped)
	}
	if plan.Pending != nil {
		t.Errorf("pending = %v", plan.Pending.ID)
	}
}

func TestPlanSkipsRepeatedMessageID(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := mailstoretest.New()
	store.Add("Inbox",
		mailstoretest.Message("a", "<a@x>", at),
		mailstoretest.Message("a2", "<a@x>", at.Add(time.Second)),
		mailstoretest.Message("b", "<b@x>", at.Add(2*time.Second)),
	)

	c := cursor.New("Inbox")
	c.LastRunTime = at
	plan, err := (&Planner{Store: store}).Plan(context.Background(), c, "Inbox", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Items) != 1 || plan.Items[0].ID != "a" {
		t.Errorf("items = %v", ids(plan.Items))
	}
	if plan.Skipped != 1 {
		t.Errorf("skipped = %d", plan.Skipped)
	}
	if plan.Pending == nil || plan.Pending.ID != "b" {
		t.Errorf("pending = %v", plan.Pending)
	}
}

func TestPlanTruncatesAndHoldsWatermark(t *testing.T) {
	t1 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a := mailstoretest.Message("a", "<a@x>", t1)
	b := mailstoretest.Message("b", "<b@x>", t1.Add(time.Minute))
	b.Created = t1.Add(5 * time.Minute)
	c := mailstoretest.Message("c", "<c@x>", t1.Add(2*time.Minute))

	store := mailstoretest.New()
	store.Add("Inbox", a, b, c)

	cur := cursor.New("Inbox")
	cur.LastRunTime = t1
	plan, err := (&Planner{Store: store}).Plan(context.Background(), cur, "Inbox", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Items) != 2 || plan.Pending == nil || plan.Pending.ID != "c" {
		t.Fatalf("items = %v pending = %v", ids(plan.Items), plan.Pending)
	}
	if w := plan.Watermark(); !w.Equal(c.Received) {
		t.Errorf("watermark = %v, want pending receipt %v", w, c.Received)
	}

	plan.Pending = nil
	if w := plan.Watermark(); !w.Equal(b.Created) {
		t.Errorf("watermark = %v, want last occurrence %v", w, b.Created)
	}
}

func TestPlanStopsOnError(t *testing.T) {
	store := mailstoretest.New()
	store.QueryErrs = []error{&mailstore.Error{Kind: mailstore.KindRateLimited}}
	store.Add("Inbox")

	_, err := (&Planner{Store: store}).Plan(context.Background(), cursor.New("Inbox"), "Inbox", 50)
	if mailstore.KindOf(err) != mailstore.KindRateLimited {
		t.Fatalf("err = %v", err)
	}
}

func ids(items []*mailstore.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
