package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/tinymerit/internal/adapters/http/api"
	app "github.com/okian/tinymerit/internal/app"
	"github.com/okian/tinymerit/internal/config"
	"github.com/okian/tinymerit/internal/domain/model"
	"github.com/okian/tinymerit/pkg/logger"
	"github.com/okian/tinymerit/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			t.Setenv("TINYMERIT_ADDR", ":8080")
			t.Setenv("TINYMERIT_ENRICH_WORKERS", "4")
			t.Setenv("TINYMERIT_HISTORY_PAGE_SIZE", "10")

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load()
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.EnrichWorkers, convey.ShouldEqual, 4)
				convey.So(cfg.HistoryPageSize, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When testing service creation from configuration", func() {
			cfg := config.New()
			cfg.SettingsPath = filepath.Join(t.TempDir(), "settings.db")
			cfg.DefaultSenderID = 42
			cfg.DefaultSenderLogin = "octocat"

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			svc, err := app.FromConfig(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			convey.Convey("Then the default account and key apply", func() {
				acct, ok := svc.Store().Account()
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(acct.Login, convey.ShouldEqual, "octocat")
				convey.So(svc.APIKey(ctx), convey.ShouldEqual, cfg.MeritAPIKey)
			})

			convey.Convey("Then saved settings land in the sqlite file", func() {
				convey.So(svc.Store().SetAccount(ctx, model.UserProfile{ID: 7, Login: "saved"}), convey.ShouldBeNil)
				_, err := os.Stat(cfg.SettingsPath)
				convey.So(err, convey.ShouldBeNil)
			})

			convey.Convey("Then the HTTP server serves health", func() {
				server := api.NewServer(svc, svc, api.WithAllowedOrigins(cfg.CORSAllowedOrigins))
				w := httptest.NewRecorder()
				server.Handler(ctx).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			convey.Convey("Then it should stop with its context", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startSystemMetricsUpdater(ctx)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing service metrics updater", func() {
			svc := app.New()

			convey.Convey("Then it should stop with its context", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startServiceMetricsUpdater(ctx, svc)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing system metrics update", func() {
			convey.Convey("Then it should update metrics without panicking", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing service metrics update on an unstarted service", func() {
			svc := app.New()

			convey.Convey("Then it should not panic", func() {
				convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing metrics manager creation", func() {
			manager := metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))

			convey.Convey("Then it should be created", func() {
				convey.So(manager, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given main application error handling", t, func() {
		convey.Convey("When the listen address is empty", func() {
			t.Setenv("TINYMERIT_ADDR", "")

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the settings path cannot be created", func() {
			dir := t.TempDir()
			blocker := filepath.Join(dir, "file")
			convey.So(os.WriteFile(blocker, []byte("x"), 0o600), convey.ShouldBeNil)
			cfg := config.New()
			cfg.SettingsPath = filepath.Join(blocker, "settings.db")

			convey.Convey("Then building the service fails", func() {
				_, err := app.FromConfig(context.Background(), cfg, logger.Get())
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}
