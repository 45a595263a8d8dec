package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	// buildInfo: gauge со значением 1 и метками версии/коммита.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storozh_build_info",
			Help: "Storozh moderation bot build information.",
		},
		[]string{"version", "commit"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storozh_ready",
		Help: "1 when the persistent store answers pings.",
	})
)

// InitBuildInfo регистрирует build_info и ready (однократно) и выставляет версию.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo, ready)
	})
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// SetReady отражает последнюю проверку готовности.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}
