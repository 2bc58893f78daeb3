package service_test

import (
	"context"
	"testing"

	service "github.com/okian/tinymerit/internal/app"
	"github.com/okian/tinymerit/internal/adapters/repository"
	"github.com/okian/tinymerit/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStore_Account(t *testing.T) {
	ctx := context.Background()

	Convey("Given a store over empty settings", t, func() {
		settings := repository.NewMemoryStore()
		store, err := service.NewStore(ctx, settings)
		So(err, ShouldBeNil)

		Convey("Then no account is selected", func() {
			_, ok := store.Account()
			So(ok, ShouldBeFalse)
		})

		Convey("When an account is selected", func() {
			var notified int
			store.Subscribe(service.TopicAccountChanged, func() { notified++ })
			err := store.SetAccount(ctx, model.UserProfile{ID: 42, Login: " octocat "})

			Convey("Then it is returned and subscribers hear about it", func() {
				So(err, ShouldBeNil)
				acct, ok := store.Account()
				So(ok, ShouldBeTrue)
				So(acct.Login, ShouldEqual, "octocat")
				So(notified, ShouldEqual, 1)
			})

			Convey("Then a new store over the same settings loads it", func() {
				again, err := service.NewStore(ctx, settings)
				So(err, ShouldBeNil)
				acct, ok := again.Account()
				So(ok, ShouldBeTrue)
				So(acct.ID, ShouldEqual, 42)
			})

			Convey("And then cleared", func() {
				So(store.ClearAccount(ctx), ShouldBeNil)
				_, ok := store.Account()
				So(ok, ShouldBeFalse)
				So(notified, ShouldEqual, 2)
			})
		})

		Convey("When the account has no login", func() {
			err := store.SetAccount(ctx, model.UserProfile{ID: 42})

			Convey("Then it is rejected", func() {
				So(err, ShouldEqual, service.ErrInvalidAccount)
			})
		})
	})

	Convey("Given a fallback account", t, func() {
		store, err := service.NewStore(ctx, repository.NewMemoryStore(),
			service.WithFallbackAccount(&model.UserProfile{ID: 7, Login: "default"}))
		So(err, ShouldBeNil)

		Convey("Then it is used until one is saved", func() {
			acct, ok := store.Account()
			So(ok, ShouldBeTrue)
			So(acct.Login, ShouldEqual, "default")

			So(store.SetAccount(ctx, model.UserProfile{ID: 8, Login: "saved"}), ShouldBeNil)
			acct, _ = store.Account()
			So(acct.Login, ShouldEqual, "saved")
		})
	})

	Convey("Given a corrupt saved account", t, func() {
		settings := repository.NewMemoryStore(repository.WithValues(map[string]string{
			repository.KeyAccount: "{not json",
		}))

		Convey("When the store loads", func() {
			store, err := service.NewStore(ctx, settings)

			Convey("Then the value is removed", func() {
				So(err, ShouldBeNil)
				_, ok := store.Account()
				So(ok, ShouldBeFalse)
				_, err := settings.Get(ctx, repository.KeyAccount)
				So(repository.IsNotFound(err), ShouldBeTrue)
			})
		})
	})
}

func TestStore_APIKey(t *testing.T) {
	ctx := context.Background()

	Convey("Given a store with a default key", t, func() {
		store, err := service.NewStore(ctx, repository.NewMemoryStore(), service.WithFallbackAPIKey("env-key"))
		So(err, ShouldBeNil)

		var notified int
		unsubscribe := store.Subscribe(service.TopicAPIKeyChanged, func() { notified++ })

		Convey("Then the default applies", func() {
			So(store.APIKey(ctx), ShouldEqual, "env-key")
			So(store.HasStoredAPIKey(), ShouldBeFalse)
		})

		Convey("When a key is saved", func() {
			So(store.SetAPIKey(ctx, "  sk_saved\n"), ShouldBeNil)

			Convey("Then it wins over the default", func() {
				So(store.APIKey(ctx), ShouldEqual, "sk_saved")
				So(store.HasStoredAPIKey(), ShouldBeTrue)
				So(notified, ShouldEqual, 1)
			})

			Convey("And then cleared, the default is back", func() {
				So(store.ClearAPIKey(ctx), ShouldBeNil)
				So(store.APIKey(ctx), ShouldEqual, "env-key")
				So(notified, ShouldEqual, 2)
			})
		})

		Convey("When a blank key is saved", func() {
			err := store.SetAPIKey(ctx, "   ")

			Convey("Then it is rejected without notifying", func() {
				So(err, ShouldEqual, service.ErrEmptyAPIKey)
				So(notified, ShouldEqual, 0)
			})
		})

		Convey("When the subscriber unsubscribes", func() {
			unsubscribe()
			So(store.SetAPIKey(ctx, "sk"), ShouldBeNil)

			Convey("Then it is not called", func() {
				So(notified, ShouldEqual, 0)
			})
		})
	})
}
