package history_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/tinymerit/internal/domain/history"
	"github.com/okian/tinymerit/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func rec(group, raw, ts string) model.PaymentRecord {
	return model.PaymentRecord{
		Type:        model.PaymentUser,
		RecipientID: "1",
		GroupID:     group,
		Amount:      model.Amount{Raw: model.FlexString(raw)},
		Timestamp:   model.FlexString(ts),
	}
}

func TestGroupRecords(t *testing.T) {
	convey.Convey("Given records in groups a, b and ungrouped", t, func() {
		records := []model.PaymentRecord{
			rec("a", "1000000", "100"),
			rec("", "250000", "300"),
			rec("b", "2500000", "200"),
			rec("a", "500000", "50"),
		}

		groups := history.GroupRecords(records)

		convey.Convey("Then grouped groups come first by newest record", func() {
			convey.So(len(groups), convey.ShouldEqual, 3)
			convey.So(groups[0].Key, convey.ShouldEqual, "b")
			convey.So(groups[1].Key, convey.ShouldEqual, "a")
			convey.So(groups[2].Key, convey.ShouldEqual, history.UngroupedKey)
			convey.So(groups[2].Grouped(), convey.ShouldBeFalse)
		})

		convey.Convey("Then totals are micro-units divided by a million", func() {
			convey.So(groups[0].TotalDisplay(), convey.ShouldEqual, "2.50")
			convey.So(groups[1].TotalDisplay(), convey.ShouldEqual, "1.50")
			convey.So(groups[2].TotalDisplay(), convey.ShouldEqual, "0.25")
			convey.So(len(groups[1].Records), convey.ShouldEqual, 2)
			convey.So(groups[1].MaxTimestamp, convey.ShouldEqual, 100)
		})

		convey.Convey("Then grouping twice gives the same result", func() {
			again := history.GroupRecords(records)
			convey.So(again, convey.ShouldResemble, groups)
		})
	})

	convey.Convey("Given large micro-unit amounts", t, func() {
		groups := history.GroupRecords([]model.PaymentRecord{
			rec("g", "123456789012345678", "1"),
			rec("g", "1", "2"),
		})

		convey.Convey("Then no precision is lost", func() {
			convey.So(groups[0].Total.String(), convey.ShouldEqual, "123456789012.345679")
		})
	})

	convey.Convey("Given no records", t, func() {
		convey.So(history.GroupRecords(nil), convey.ShouldBeEmpty)
	})

	convey.Convey("Given a long group id", t, func() {
		g := history.Group{ID: "0123456789abcdef"}
		convey.So(g.ShortID(), convey.ShouldEqual, "0123456789ab...")
	})
}

func TestCollapsed(t *testing.T) {
	convey.Convey("Given a collapsed set", t, func() {
		var c history.Collapsed

		convey.So(c.IsCollapsed("a"), convey.ShouldBeFalse)
		convey.So(c.Toggle("a"), convey.ShouldBeTrue)
		convey.So(c.IsCollapsed("a"), convey.ShouldBeTrue)
		convey.So(c.IsCollapsed("b"), convey.ShouldBeFalse)
		convey.So(c.Toggle("a"), convey.ShouldBeFalse)
		convey.So(c.IsCollapsed("a"), convey.ShouldBeFalse)
	})
}

func TestPage(t *testing.T) {
	convey.Convey("Given 45 payments in pages of 20", t, func() {
		convey.Convey("Then page 3 shows 41 to 45 with no next", func() {
			p := history.Page{Number: 3, Size: 20, TotalCount: 45, HasNext: false}
			first, last := p.Range()
			convey.So(first, convey.ShouldEqual, 41)
			convey.So(last, convey.ShouldEqual, 45)
			convey.So(p.CanNext(), convey.ShouldBeFalse)
			convey.So(p.CanPrev(), convey.ShouldBeTrue)
		})

		convey.Convey("Then page 1 shows 1 to 20 with no previous", func() {
			p := history.Page{Number: 1, Size: 20, TotalCount: 45, HasNext: true}
			first, last := p.Range()
			convey.So(first, convey.ShouldEqual, 1)
			convey.So(last, convey.ShouldEqual, 20)
			convey.So(p.CanPrev(), convey.ShouldBeFalse)
			convey.So(p.CanNext(), convey.ShouldBeTrue)
		})

		convey.Convey("Then an empty history has no range", func() {
			first, last := history.Page{Number: 1, Size: 20}.Range()
			convey.So(first, convey.ShouldEqual, 0)
			convey.So(last, convey.ShouldEqual, 0)
		})
	})
}

func TestDescribeError(t *testing.T) {
	convey.Convey("Given payments API failures", t, func() {
		apiErr := func(kind error, msg string) error {
			return fmt.Errorf("fetch payments: %w", &model.APIError{Op: "payments", Kind: kind, Message: msg})
		}

		convey.Convey("Then unauthorized shows the api key hint", func() {
			info := history.DescribeError(apiErr(model.ErrUnauthorized, "bad key"))
			convey.So(info.Title, convey.ShouldEqual, "Authentication Error")
			convey.So(info.Message, convey.ShouldEqual, "Invalid API key. Please check your Merit API key in Account Settings.")
			convey.So(info.ShowHint, convey.ShouldBeTrue)
		})

		convey.Convey("Then other kinds carry the api message", func() {
			convey.So(history.DescribeError(apiErr(model.ErrBadRequest, "page too big")), convey.ShouldResemble,
				history.ErrorInfo{Title: "Request Error", Message: "Bad request: page too big"})
			convey.So(history.DescribeError(apiErr(model.ErrNotFound, "no sender")), convey.ShouldResemble,
				history.ErrorInfo{Title: "Not Found", Message: "Resource not found: no sender"})
			convey.So(history.DescribeError(apiErr(model.ErrInternalServer, "boom")), convey.ShouldResemble,
				history.ErrorInfo{Title: "Server Error", Message: "Server error: boom"})
		})

		convey.Convey("Then generic errors use their text", func() {
			info := history.DescribeError(errors.New("connection refused"))
			convey.So(info.Title, convey.ShouldEqual, "Error")
			convey.So(info.Message, convey.ShouldEqual, "connection refused")
			convey.So(history.DescribeError(nil).Message, convey.ShouldEqual, "An unexpected error occurred")
		})
	})
}

type fakeSource struct {
	mu          sync.Mutex
	balanceErr  error
	paymentsErr error
	balanceCall int
	pageCalls   []model.PageParams
	block       map[int]chan struct{}
	started     chan int
}

func (f *fakeSource) BalanceByLogin(_ context.Context, login string) (model.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCall++
	if f.balanceErr != nil {
		return model.Balance{}, f.balanceErr
	}
	return model.Balance{Raw: "5000000", Formatted: "$5.00"}, nil
}

func (f *fakeSource) PaymentsBySender(_ context.Context, _ int64, params model.PageParams) (model.PaymentPage, error) {
	f.mu.Lock()
	f.pageCalls = append(f.pageCalls, params)
	wait := f.block[params.Page]
	err := f.paymentsErr
	f.mu.Unlock()

	if f.started != nil {
		f.started <- params.Page
	}
	if wait != nil {
		<-wait
	}
	if err != nil {
		return model.PaymentPage{}, err
	}
	return model.PaymentPage{
		Items:      []model.PaymentRecord{rec("", "1000000", fmt.Sprint(params.Page))},
		TotalCount: 45,
		HasNext:    params.Page < 3,
	}, nil
}

func TestLoader(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a loader over a healthy source", t, func() {
		src := &fakeSource{}
		l := history.NewLoader(src)

		convey.Convey("When it has not loaded yet", func() {
			convey.So(l.Snapshot().State, convey.ShouldEqual, history.StateIdle)
		})

		convey.Convey("When loading page 2 for a sender with a login", func() {
			snap, err := l.Load(ctx, history.Key{SenderID: 7, Login: "octocat", Page: 2})

			convey.Convey("Then balance and payments are stored", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(snap.State, convey.ShouldEqual, history.StateSuccess)
				convey.So(snap.Balance.Formatted, convey.ShouldEqual, "$5.00")
				convey.So(snap.Page, convey.ShouldResemble, history.Page{Number: 2, Size: 20, TotalCount: 45, HasNext: true})
				convey.So(src.pageCalls[0], convey.ShouldResemble, model.PageParams{Page: 2, PageSize: 20})
				convey.So(len(snap.Groups()), convey.ShouldEqual, 1)
			})

			convey.Convey("Then refreshing keeps the key", func() {
				snap, err := l.Refresh(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(snap.Key.Page, convey.ShouldEqual, 2)
				convey.So(snap.Refreshing, convey.ShouldBeFalse)
				convey.So(src.balanceCall, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When the sender has no login", func() {
			snap, err := l.Load(ctx, history.Key{SenderID: 7})

			convey.Convey("Then the balance fetch is skipped", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(src.balanceCall, convey.ShouldEqual, 0)
				convey.So(snap.Balance, convey.ShouldBeNil)
				convey.So(snap.Page.Number, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When no sender is selected", func() {
			_, err := l.Load(ctx, history.Key{Login: "octocat"})

			convey.Convey("Then nothing is fetched", func() {
				convey.So(errors.Is(err, history.ErrNoSender), convey.ShouldBeTrue)
				convey.So(src.pageCalls, convey.ShouldBeEmpty)
			})
		})
	})

	convey.Convey("Given a source whose balance fails", t, func() {
		src := &fakeSource{balanceErr: &model.APIError{Op: "balance", Kind: model.ErrUnauthorized, Status: 401}}
		l := history.NewLoader(src, history.WithPageSize(10))

		snap, err := l.Load(ctx, history.Key{SenderID: 7, Login: "octocat", Page: 1})

		convey.Convey("Then payments are not fetched and the view is in error", func() {
			convey.So(errors.Is(err, model.ErrUnauthorized), convey.ShouldBeTrue)
			convey.So(snap.State, convey.ShouldEqual, history.StateError)
			convey.So(src.pageCalls, convey.ShouldBeEmpty)
			convey.So(history.DescribeError(snap.Err).ShowHint, convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a source whose payments fail", t, func() {
		src := &fakeSource{paymentsErr: errors.New("timeout")}
		l := history.NewLoader(src)

		snap, err := l.Load(ctx, history.Key{SenderID: 7, Login: "octocat"})

		convey.Convey("Then the view is in error", func() {
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(snap.State, convey.ShouldEqual, history.StateError)
			convey.So(snap.Err.Error(), convey.ShouldContainSubstring, "timeout")
		})
	})

	convey.Convey("Given a slow page 1 load overtaken by page 2", t, func() {
		release := make(chan struct{})
		src := &fakeSource{
			block:   map[int]chan struct{}{1: release},
			started: make(chan int, 4),
		}
		l := history.NewLoader(src)

		type result struct {
			snap history.Snapshot
			err  error
		}
		slow := make(chan result, 1)
		go func() {
			s, err := l.Load(ctx, history.Key{SenderID: 7, Page: 1})
			slow <- result{s, err}
		}()
		<-src.started

		fast, err := l.Load(ctx, history.Key{SenderID: 7, Page: 2})
		<-src.started
		close(release)
		stale := <-slow

		convey.Convey("Then the newer result wins and the old one is discarded", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(fast.Page.Number, convey.ShouldEqual, 2)
			convey.So(errors.Is(stale.err, history.ErrStale), convey.ShouldBeTrue)
			convey.So(l.Snapshot().Key.Page, convey.ShouldEqual, 2)
			convey.So(l.Snapshot().State, convey.ShouldEqual, history.StateSuccess)
		})
	})
}
