package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ServiceName identifies the service in logs, metrics and health payloads.
const ServiceName = "hmpps-complexity-of-need"

var (
	buildInfoOnce sync.Once

	// build_info{version,git_ref} is always 1.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Complexity of Need build information.",
		},
		[]string{"version", "git_ref"},
	)
)

// InitBuildInfo registers build_info once and sets it for this build.
func InitBuildInfo(version, gitRef string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(version, gitRef).Set(1)
}
