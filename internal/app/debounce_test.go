package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	service "github.com/okian/tinymerit/internal/app"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDebouncer(t *testing.T) {
	Convey("Given a debouncer", t, func() {
		d := service.NewDebouncer(50 * time.Millisecond)
		ctx := context.Background()

		Convey("When two calls for the same key arrive close together", func() {
			first := make(chan bool, 1)
			go func() {
				fire, _ := d.Wait(ctx, "s1")
				first <- fire
			}()
			time.Sleep(10 * time.Millisecond)
			second, err := d.Wait(ctx, "s1")

			Convey("Then only the last one fires", func() {
				So(err, ShouldBeNil)
				So(second, ShouldBeTrue)
				So(<-first, ShouldBeFalse)
			})
		})

		Convey("When calls use different keys", func() {
			other := make(chan bool, 1)
			go func() {
				fire, _ := d.Wait(ctx, "s2")
				other <- fire
			}()
			fire, err := d.Wait(ctx, "s1")

			Convey("Then both fire", func() {
				So(err, ShouldBeNil)
				So(fire, ShouldBeTrue)
				So(<-other, ShouldBeTrue)
			})
		})

		Convey("When the context ends first", func() {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
			defer cancel()
			fire, err := d.Wait(cctx, "s1")

			Convey("Then the context error is returned", func() {
				So(fire, ShouldBeFalse)
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})

			Convey("Then the next call still fires", func() {
				fire, err := d.Wait(ctx, "s1")
				So(err, ShouldBeNil)
				So(fire, ShouldBeTrue)
			})
		})
	})
}
