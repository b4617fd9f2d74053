package middleware

import "github.com/prometheus/client_golang/prometheus"

// GateMetrics は認可ゲートの判定結果を記録するPrometheusメトリクス。
type GateMetrics struct {
	decisions *prometheus.CounterVec
}

// NewGateMetrics は GateMetrics を生成してレジストリに登録する。
// reg がnilの場合は登録しない。
func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	m := &GateMetrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "auth",
				Name:      "decisions_total",
				Help:      "Total number of authorization gate decisions by outcome",
			},
			[]string{"outcome"},
		),
	}
	// /metrics に起動直後から出力されるよう主要なラベルを初期化する
	for _, outcome := range []string{"public", "admitted", "missing_credential", "token_expired", "invalid_signature"} {
		m.decisions.WithLabelValues(outcome)
	}
	if reg != nil {
		reg.MustRegister(m.decisions)
	}
	return m
}

func (m *GateMetrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}
