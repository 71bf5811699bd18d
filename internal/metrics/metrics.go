// Package metrics declares the Prometheus collectors the server package
// updates as sessions come up, exchange messages, and go down.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_session_state",
			Help: "Current FSM state per peer (0=Idle..5=Established).",
		},
		[]string{"peer"},
	)

	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_messages_total",
			Help: "BGP messages exchanged, by peer, direction and type.",
		},
		[]string{"peer", "direction", "type"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_notifications_total",
			Help: "NOTIFICATION messages exchanged, by peer, direction and code.",
		},
		[]string{"peer", "direction", "code"},
	)

	LocRIBRoutes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_loc_rib_routes",
			Help: "Routes currently held in the Loc-RIB, by protocol.",
		},
		[]string{"afi", "safi"},
	)

	AdjRIBInRoutes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bgpd_adj_rib_in_routes",
			Help: "Routes currently held in a peer's Adj-RIB-In.",
		},
		[]string{"peer", "afi", "safi"},
	)

	SessionFlapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_session_flaps_total",
			Help: "Times a registered peer session has been shut down.",
		},
		[]string{"peer"},
	)

	CollisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bgpd_collisions_total",
			Help: "Connection collisions resolved, by peer.",
		},
		[]string{"peer"},
	)
)

// MustRegister registers every collector in this package against reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		SessionState,
		MessagesTotal,
		NotificationsTotal,
		LocRIBRoutes,
		AdjRIBInRoutes,
		SessionFlapsTotal,
		CollisionsTotal,
	)
}
