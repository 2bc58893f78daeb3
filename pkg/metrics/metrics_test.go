package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created with the default namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "tinymerit")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("test_"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.checkoutURLs.WithLabelValues("sdk").Inc()

			Convey("Then metric names carry the namespace and prefix", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_test_checkout_urls_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording checkout URLs", func() {
			before := testutil.ToFloat64(globalManager.checkoutURLs.WithLabelValues("fallback"))
			RecordCheckoutURL("fallback")

			Convey("Then the labelled counter increases", func() {
				after := testutil.ToFloat64(globalManager.checkoutURLs.WithLabelValues("fallback"))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When recording upstream calls", func() {
			So(func() {
				RecordGitHubCall("search_users", OutcomeOK, 12.5)
				RecordMeritCall("balance_by_login", OutcomeError, 40)
				RecordEnrichJob(OutcomeOK, 3)
				RecordHistoryLoad(OutcomeOK)
				RecordStaleResult()
				RecordPayeeOperation("add")
				RecordSettingsChange("merit-api-key-changed")
				RecordDebouncedQuery()
			}, ShouldNotPanic)
		})

		Convey("When updating gauges", func() {
			UpdateActiveSessions(3)
			UpdateQueueSize(7)
			UpdateQueueCapacity(64)
			UpdateWorkerCount(4)
			AddWorkerBusy(1)
			AddWorkerBusy(-1)

			Convey("Then the gauges reflect the last value", func() {
				So(testutil.ToFloat64(globalManager.activeSessions), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
			})
		})

		Convey("When recording HTTP and error metrics", func() {
			So(func() {
				RecordHTTPRequest("history", "GET", "200")
				RecordHTTPRequestDuration("history", "GET", "200", 5)
				RecordErrorByComponent("merit", "unauthorized")
				RecordErrorByType("client_error", "medium")
				RecordErrorByEndpoint("checkout", "POST", "client_error")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.5)
			}, ShouldNotPanic)
		})

		Convey("When gathering the registry", func() {
			RecordGitHubCall("user_by_id", OutcomeOK, 1)
			families, err := GetRegistry().Gather()

			Convey("Then the tinymerit metrics are exported", func() {
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(strings.Join(names, ","), ShouldContainSubstring, "tinymerit_app_github_calls_total")
			})
		})

		Convey("When measuring elapsed time", func() {
			start := time.Now().Add(-5 * time.Millisecond)
			So(Since(start), ShouldBeGreaterThanOrEqualTo, 5)
		})
	})
}
